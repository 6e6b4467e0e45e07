// Package worker implements the background context. It owns the page text, applies the commands the page
// sends and reports the text back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/betafish-inc/dualthread"
)

const (
	// InitialText is the text a fresh worker starts with.
	InitialText = "我是来自 worker 的数据"
	// Suffix is appended to the text by UpdateData.
	Suffix = "!!!"
	// InitialPushDelay is how long after startup the worker sends its text unprompted.
	InitialPushDelay = 1000 * time.Millisecond
)

// Command names an operation the page may ask the worker to run.
type Command string

// UpdateData appends Suffix to the text and sends the result back.
const UpdateData Command = "updateData"

// ErrUnknownCommand is returned for command names outside the command table. Nothing is sent back.
var ErrUnknownCommand = errors.New("worker: unknown command")

// PageState is the state owned by the worker loop. It never leaves the worker; the page only ever sees
// copies of Text carried in messages.
type PageState struct {
	Text string
}

// Worker runs the worker context over a port. All state is confined to the goroutine running Run.
type Worker struct {
	port     dualthread.Port
	log      log.Interface
	rejected func()
	delay    time.Duration
	state    *PageState
	commands map[Command]func(ctx context.Context) error
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger; the default is the apex/log global logger.
func WithLogger(logger log.Interface) Option {
	return func(w *Worker) {
		w.log = logger
	}
}

// WithRejectedCounter sets a callback run for every unknown command.
func WithRejectedCounter(inc func()) Option {
	return func(w *Worker) {
		w.rejected = inc
	}
}

// New creates a Worker with InitialText that talks over port.
func New(port dualthread.Port, opts ...Option) *Worker {
	w := &Worker{
		port:     port,
		log:      log.Log,
		rejected: func() {},
		delay:    InitialPushDelay,
		state:    &PageState{Text: InitialText},
	}
	w.commands = map[Command]func(ctx context.Context) error{
		UpdateData: w.updateData,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start implements dualthread.Worker. It runs until ctx is done and closes the port on the way out.
func (w *Worker) Start(ctx context.Context, _ *dualthread.Host) {
	defer w.port.Close()
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.log.WithError(err).Error("worker stopped")
	}
}

// Run processes commands until ctx is done or the port is closed. The initial text is sent once,
// InitialPushDelay after Run starts; the timer is stopped when Run returns.
func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.delay)
	defer timer.Stop()

	msgs := w.port.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := w.post(ctx); err != nil {
				w.log.WithError(err).Error("sending initial text")
			}
		case ev, ok := <-msgs:
			if !ok {
				return dualthread.ErrPortClosed
			}
			w.onControllerMessage(ctx, string(ev.Data))
		}
	}
}

func (w *Worker) onControllerMessage(ctx context.Context, name string) {
	w.log.WithField("command", name).Info("worker received message from page")
	if err := w.dispatch(ctx, Command(name)); err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			w.rejected()
		}
		w.log.WithError(err).WithField("command", name).Error("command failed")
	}
}

func (w *Worker) dispatch(ctx context.Context, cmd Command) error {
	handler, ok := w.commands[cmd]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd))
	}
	return handler(ctx)
}

func (w *Worker) updateData(ctx context.Context) error {
	w.state.Text += Suffix
	return w.post(ctx)
}

func (w *Worker) post(ctx context.Context) error {
	return w.port.PostMessage(ctx, []byte(w.state.Text))
}

// NewFromHost opens the worker port on h and wires the Host logger and metrics.
func NewFromHost(ctx context.Context, h *dualthread.Host, opts ...Option) (*Worker, error) {
	port, err := h.WorkerPort(ctx)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithLogger(h.Logger().WithField("context", "worker")),
		WithRejectedCounter(h.Metrics().Rejected.Inc),
	}
	return New(port, append(base, opts...)...), nil
}
