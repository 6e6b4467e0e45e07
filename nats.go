package dualthread

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/nats-io/nats.go"
)

// natsBuffer bounds the messages a NATS subscription holds before the receiver reads them.
const natsBuffer = 1024

// NATS returns a NATS connection ready to use. The first call dials every server ServiceAddrs finds for
// "nats"; later calls return the same connection.
func (h *Host) NATS(ctx context.Context) (*nats.Conn, error) {
	h.mu.Lock()
	conn := h.natsConn
	h.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	servers := h.ServiceAddrs(ctx, "nats", 4222)
	addrs := make([]string, len(servers))
	for i, s := range servers {
		if strings.Contains(s, "://") {
			addrs[i] = s
		} else {
			addrs[i] = "nats://" + s
		}
	}
	logger := h.logger
	opts := nats.GetDefaultOptions()
	opts.Servers = addrs
	opts.ClosedCB = func(_ *nats.Conn) {
		logger.Debug("nats connection closed")
	}
	opts.DisconnectedErrCB = func(_ *nats.Conn, err error) {
		if err != nil {
			logger.WithError(err).Warn("nats disconnected")
		}
	}
	conn, err := opts.Connect()
	if err != nil {
		return nil, fmt.Errorf("nats: connecting to %s: %w", strings.Join(addrs, ","), err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.natsConn != nil {
		conn.Close()
		return h.natsConn, nil
	}
	h.natsConn = conn
	return conn, nil
}

// NATSTransport carries messages as NATS core messages. A single connection preserves publish order per
// subject, which gives the FIFO guarantee between the two contexts.
type NATSTransport struct {
	conn *nats.Conn
	log  log.Interface
}

// NewNATSTransport creates a transport over an established connection.
func NewNATSTransport(conn *nats.Conn, logger log.Interface) *NATSTransport {
	return &NATSTransport{conn: conn, log: logger}
}

// Open subscribes to recv and flushes so the subscription is known to the server before returning.
func (t *NATSTransport) Open(ctx context.Context, send, recv string) (Port, error) {
	ch := make(chan *nats.Msg, natsBuffer)
	sub, err := t.conn.ChanSubscribe(recv, ch)
	if err != nil {
		return nil, fmt.Errorf("nats: subscribing to %s: %w", recv, err)
	}
	if err := t.conn.FlushTimeout(nats.DefaultTimeout); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats: flushing subscription: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &natsPort{
		conn:   t.conn,
		sub:    sub,
		send:   send,
		msgs:   make(chan MessageEvent),
		cancel: cancel,
		done:   make(chan struct{}),
		log:    t.log.WithField("subject", recv),
	}
	go p.pump(ctx, ch)
	return p, nil
}

type natsPort struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	send   string
	msgs   chan MessageEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	log    log.Interface
}

func (p *natsPort) pump(ctx context.Context, ch <-chan *nats.Msg) {
	defer close(p.done)
	defer close(p.msgs)
	defer func() {
		if err := p.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			p.log.WithError(err).Debug("unsubscribe")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			ev := MessageEvent{Subject: msg.Subject, Data: append([]byte(nil), msg.Data...)}
			select {
			case p.msgs <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *natsPort) PostMessage(_ context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}
	return p.conn.Publish(p.send, data)
}

func (p *natsPort) Messages() <-chan MessageEvent {
	return p.msgs
}

func (p *natsPort) Close() error {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}
