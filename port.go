package dualthread

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
)

// Subjects the two contexts talk over. The page posts to SubjectToWorker and listens on SubjectToPage,
// the worker does the opposite.
const (
	SubjectToWorker = "to-worker"
	SubjectToPage   = "to-page"

	subjectPrefix = "dualthread"
)

var (
	// ErrPortClosed is returned when posting to a port that has been closed.
	ErrPortClosed = errors.New("dualthread: port closed")
	// ErrPortInUse is returned when a second port tries to receive from a subject that already has a receiver.
	ErrPortInUse = errors.New("dualthread: subject already has a receiver")
	// ErrUnknownTransport is returned when TRANSPORT names a transport that does not exist.
	ErrUnknownTransport = errors.New("dualthread: unknown transport")
)

// MessageEvent is a single message delivered by a Port. Data is owned by the receiver; it is never shared
// with the sender.
type MessageEvent struct {
	Subject string
	Data    []byte
}

// Port is one end of the message channel between the page and the worker. Messages posted to a Port are
// delivered asynchronously, in order, to the port listening on the send subject.
type Port interface {
	// PostMessage queues data for the other context and returns without waiting for delivery.
	PostMessage(ctx context.Context, data []byte) error
	// Messages returns the channel received messages are delivered on. The channel is closed when the
	// port is closed or the context it was opened with is done.
	Messages() <-chan MessageEvent
	// Close releases the port. Messages still in flight may be dropped.
	Close() error
}

// Transport opens ports on top of a concrete message system. Open must subscribe to recv before it returns
// so no message posted after Open returns is lost.
type Transport interface {
	Open(ctx context.Context, send, recv string) (Port, error)
}

// The TransportFunc type is an adapter to allow ordinary functions to act as Transports.
type TransportFunc func(ctx context.Context, send, recv string) (Port, error)

// Open calls f(ctx, send, recv).
func (f TransportFunc) Open(ctx context.Context, send, recv string) (Port, error) {
	return f(ctx, send, recv)
}

// Subject returns the fully qualified subject name for the configured SESSION.
func (h *Host) Subject(ctx context.Context, name string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, h.OptionDefault(ctx, "SESSION", "default"), name)
}

// Transport returns the transport selected by the TRANSPORT option (memory, nats, redis or nsq). The
// transport is created on first use and shared by every port the Host opens.
func (h *Host) Transport(ctx context.Context) (Transport, error) {
	h.mu.Lock()
	tr := h.transport
	h.mu.Unlock()
	if tr != nil {
		return tr, nil
	}

	name := h.OptionDefault(ctx, "TRANSPORT", "memory")
	switch name {
	case "memory":
		tr = NewMemoryTransport()
	case "nats":
		conn, err := h.NATS(ctx)
		if err != nil {
			return nil, err
		}
		tr = NewNATSTransport(conn, h.logger)
	case "redis":
		rdb, err := h.Redis(ctx)
		if err != nil {
			return nil, err
		}
		tr = NewRedisTransport(rdb, h.logger)
	case "nsq":
		tr = NewNSQTransport(h.ServiceAddr(ctx, "nsqd", 4150), h.logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
	h.logger.WithField("transport", name).Debug("transport ready")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.transport == nil {
		h.transport = tr
	}
	return h.transport, nil
}

// SetTransport replaces the transport used by Open. It must be called before the first port is opened.
func (h *Host) SetTransport(tr Transport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transport = tr
}

// Open opens an instrumented port posting to the send subject and receiving from the recv subject. Both
// names are qualified with Subject. The port is closed when the Host context is done.
func (h *Host) Open(ctx context.Context, send, recv string) (Port, error) {
	tr, err := h.Transport(ctx)
	if err != nil {
		return nil, err
	}
	port, err := tr.Open(h.Context(), h.Subject(ctx, send), h.Subject(ctx, recv))
	if err != nil {
		return nil, fmt.Errorf("opening %s/%s: %w", send, recv, err)
	}
	return h.metrics.Instrument(h.Context(), port, send, recv), nil
}

// PagePort opens the port used by the page context.
func (h *Host) PagePort(ctx context.Context) (Port, error) {
	return h.Open(ctx, SubjectToWorker, SubjectToPage)
}

// WorkerPort opens the port used by the worker context.
func (h *Host) WorkerPort(ctx context.Context) (Port, error) {
	return h.Open(ctx, SubjectToPage, SubjectToWorker)
}

// Subscriber allows a context to process port messages without dealing directly with the underlying
// transport. Instead, contexts implement Subscriber and Serve a port.
type Subscriber interface {
	// Message is called for each received message, one at a time and in arrival order.
	// A returned error is logged; the message is not redelivered.
	Message(ctx context.Context, subject string, msg []byte) error
}

// The SubscriberFunc type is an adapter to allow ordinary functions to act as Subscribers.
// If f is a function with the appropriate signature, SubscriberFunc(f) is a Subscriber that calls f.
type SubscriberFunc func(ctx context.Context, subject string, msg []byte) error

// Message calls f(ctx, subject, msg).
func (f SubscriberFunc) Message(ctx context.Context, subject string, msg []byte) error {
	return f(ctx, subject, msg)
}

// Serve delivers every message received on port to sub until ctx is done or the port is closed. Handler
// errors are logged to logger.
func Serve(ctx context.Context, port Port, sub Subscriber, logger log.Interface) {
	msgs := port.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-msgs:
			if !ok {
				return
			}
			if err := sub.Message(ctx, ev.Subject, ev.Data); err != nil {
				logger.WithError(err).WithField("subject", ev.Subject).Error("message handler failed")
			}
		}
	}
}
