// Package page implements the page context: a trigger that asks the worker to update its data and a
// listener that logs whatever the worker sends back.
package page

import (
	"context"

	"github.com/apex/log"
	"github.com/betafish-inc/dualthread"
	"github.com/betafish-inc/dualthread/worker"
)

// Controller bridges the user facing trigger to the worker port. It keeps no state besides the port.
type Controller struct {
	port  dualthread.Port
	log   log.Interface
	spawn dualthread.Worker
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger worker messages are written to; the default is the apex/log global logger.
func WithLogger(logger log.Interface) Option {
	return func(c *Controller) {
		c.log = logger
	}
}

// WithWorker makes the Controller start w when the Controller itself starts.
func WithWorker(w dualthread.Worker) Option {
	return func(c *Controller) {
		c.spawn = w
	}
}

// NewController creates a Controller that talks to the worker over port.
func NewController(port dualthread.Port, opts ...Option) *Controller {
	c := &Controller{port: port, log: log.Log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromHost opens the page port on h and uses the Host logger.
func NewFromHost(ctx context.Context, h *dualthread.Host, opts ...Option) (*Controller, error) {
	port, err := h.PagePort(ctx)
	if err != nil {
		return nil, err
	}
	base := []Option{WithLogger(h.Logger().WithField("context", "page"))}
	return NewController(port, append(base, opts...)...), nil
}

// OnTriggerActivated asks the worker to update its data. It returns as soon as the command is queued.
func (c *Controller) OnTriggerActivated(ctx context.Context) error {
	c.log.WithField("command", string(worker.UpdateData)).Debug("page sending command")
	return c.port.PostMessage(ctx, []byte(worker.UpdateData))
}

// OnWorkerMessage writes a payload received from the worker to the log.
func (c *Controller) OnWorkerMessage(_ context.Context, payload []byte) {
	c.log.WithField("data", string(payload)).Info("page received message from worker")
}

// Message implements dualthread.Subscriber.
func (c *Controller) Message(ctx context.Context, _ string, msg []byte) error {
	c.OnWorkerMessage(ctx, msg)
	return nil
}

// Start implements dualthread.Worker. The configured worker, if any, is started first; then worker
// messages are handled until ctx is done.
func (c *Controller) Start(ctx context.Context, h *dualthread.Host) {
	defer c.port.Close()
	if c.spawn != nil {
		h.Go(c.spawn)
	}
	c.Run(ctx)
}

// Run handles worker messages until ctx is done or the port is closed.
func (c *Controller) Run(ctx context.Context) {
	dualthread.Serve(ctx, c.port, c, c.log)
}
