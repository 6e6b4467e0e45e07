package dualthread

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/nsqio/go-nsq"
)

// nsqChannel is the channel every receiver consumes its topic through.
const nsqChannel = "dualthread"

var errNSQClosing = errors.New("dualthread: nsq port closing")

// NSQTransport carries messages through a single nsqd. Receivers run with one message in flight and a
// single handler, so messages are handled in the order nsqd hands them out.
type NSQTransport struct {
	addr string
	log  log.Interface
}

// NewNSQTransport creates a transport publishing to and consuming from the nsqd at addr.
func NewNSQTransport(addr string, logger log.Interface) *NSQTransport {
	return &NSQTransport{addr: addr, log: logger}
}

// Config returns the nsq configuration used by producers and consumers.
func (t *NSQTransport) Config() *nsq.Config {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = 1
	return cfg
}

// Open connects a producer for send and a consumer for recv.
func (t *NSQTransport) Open(ctx context.Context, send, recv string) (Port, error) {
	cfg := t.Config()
	logger := t.log.WithField("subject", recv)

	producer, err := nsq.NewProducer(t.addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("nsq: producer: %w", err)
	}
	producer.SetLogger(nsqLogger{logger}, nsq.LogLevelWarning)

	consumer, err := nsq.NewConsumer(recv, nsqChannel, cfg)
	if err != nil {
		producer.Stop()
		return nil, fmt.Errorf("nsq: consumer: %w", err)
	}
	consumer.SetLogger(nsqLogger{logger}, nsq.LogLevelWarning)

	ctx, cancel := context.WithCancel(ctx)
	p := &nsqPort{
		producer: producer,
		consumer: consumer,
		send:     send,
		msgs:     make(chan MessageEvent),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		ev := MessageEvent{Subject: recv, Data: append([]byte(nil), m.Body...)}
		select {
		case p.msgs <- ev:
			return nil
		case <-ctx.Done():
			// Requeued for whoever consumes the topic next.
			return errNSQClosing
		}
	}))
	if err := consumer.ConnectToNSQD(t.addr); err != nil {
		cancel()
		consumer.Stop()
		producer.Stop()
		return nil, fmt.Errorf("nsq: connecting to %s: %w", t.addr, err)
	}
	go p.wait(ctx)
	return p, nil
}

type nsqPort struct {
	producer *nsq.Producer
	consumer *nsq.Consumer
	send     string
	msgs     chan MessageEvent
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (p *nsqPort) wait(ctx context.Context) {
	<-ctx.Done()
	p.consumer.Stop()
	<-p.consumer.StopChan
	p.producer.Stop()
	close(p.msgs)
	close(p.done)
}

func (p *nsqPort) PostMessage(_ context.Context, data []byte) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}
	return p.producer.Publish(p.send, data)
}

func (p *nsqPort) Messages() <-chan MessageEvent {
	return p.msgs
}

func (p *nsqPort) Close() error {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}

// nsqLogger forwards go-nsq log lines to apex/log.
type nsqLogger struct {
	log log.Interface
}

func (l nsqLogger) Output(_ int, s string) error {
	l.log.Warn(s)
	return nil
}
