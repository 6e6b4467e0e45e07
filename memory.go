package dualthread

import (
	"context"
	"sync"
)

// MemoryTransport connects contexts living in the same process. Each subject is an unbounded FIFO
// mailbox, so posting never blocks and messages posted before the receiver opens are kept.
type MemoryTransport struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
}

// NewMemoryTransport creates an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{mailboxes: map[string]*mailbox{}}
}

func (t *MemoryTransport) mailbox(subject string) *mailbox {
	t.mu.Lock()
	defer t.mu.Unlock()
	mb, ok := t.mailboxes[subject]
	if !ok {
		mb = &mailbox{subject: subject, notify: make(chan struct{}, 1)}
		t.mailboxes[subject] = mb
	}
	return mb
}

// Open returns a port posting to send and receiving from recv. Only one open port may receive from a
// subject at a time.
func (t *MemoryTransport) Open(ctx context.Context, send, recv string) (Port, error) {
	in := t.mailbox(recv)
	if !in.claim() {
		return nil, ErrPortInUse
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &memoryPort{
		out:    t.mailbox(send),
		in:     in,
		msgs:   make(chan MessageEvent),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.pump(ctx)
	return p, nil
}

type mailbox struct {
	subject string
	notify  chan struct{}

	mu      sync.Mutex
	queue   [][]byte
	claimed bool
}

func (mb *mailbox) claim() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.claimed {
		return false
	}
	mb.claimed = true
	return true
}

func (mb *mailbox) release() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.claimed = false
}

func (mb *mailbox) push(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	mb.mu.Lock()
	mb.queue = append(mb.queue, buf)
	mb.mu.Unlock()
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

func (mb *mailbox) pop() ([]byte, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil, false
	}
	data := mb.queue[0]
	mb.queue[0] = nil
	mb.queue = mb.queue[1:]
	return data, true
}

type memoryPort struct {
	out    *mailbox
	in     *mailbox
	msgs   chan MessageEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (p *memoryPort) pump(ctx context.Context) {
	defer close(p.done)
	defer close(p.msgs)
	defer p.in.release()
	for {
		data, ok := p.in.pop()
		if !ok {
			select {
			case <-p.in.notify:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case p.msgs <- MessageEvent{Subject: p.in.subject, Data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (p *memoryPort) PostMessage(_ context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}
	p.out.push(data)
	return nil
}

func (p *memoryPort) Messages() <-chan MessageEvent {
	return p.msgs
}

func (p *memoryPort) Close() error {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}
