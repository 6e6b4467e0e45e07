package dualthread

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of a Host. Every Host has its own registry so several hosts can live in
// one process.
type Metrics struct {
	Registry *prometheus.Registry
	Posted   *prometheus.CounterVec
	Received *prometheus.CounterVec
	Rejected prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Posted:   prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualthread",
			Name:      "messages_posted_total",
			Help:      "Messages posted to a subject.",
		}, []string{"subject"}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualthread",
			Name:      "messages_received_total",
			Help:      "Messages received from a subject.",
		}, []string{"subject"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dualthread",
			Name:      "commands_rejected_total",
			Help:      "Commands the worker did not recognize.",
		}),
	}
	m.Registry.MustRegister(m.Posted, m.Received, m.Rejected)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Instrument wraps port so posted and received messages are counted under the send and recv labels.
func (m *Metrics) Instrument(ctx context.Context, port Port, send, recv string) Port {
	ip := &instrumentedPort{
		Port:   port,
		posted: m.Posted.WithLabelValues(send),
		out:    make(chan MessageEvent),
	}
	received := m.Received.WithLabelValues(recv)
	go func() {
		defer close(ip.out)
		for ev := range port.Messages() {
			received.Inc()
			select {
			case ip.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ip
}

type instrumentedPort struct {
	Port
	posted prometheus.Counter
	out    chan MessageEvent
}

func (p *instrumentedPort) PostMessage(ctx context.Context, data []byte) error {
	if err := p.Port.PostMessage(ctx, data); err != nil {
		return err
	}
	p.posted.Inc()
	return nil
}

func (p *instrumentedPort) Messages() <-chan MessageEvent {
	return p.out
}
