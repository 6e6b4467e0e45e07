package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betafish-inc/dualthread"
)

type harness struct {
	page    dualthread.Port
	worker  *Worker
	entries *memory.Handler
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T, delay time.Duration, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tr := dualthread.NewMemoryTransport()
	page, err := tr.Open(ctx, "to-worker", "to-page")
	require.NoError(t, err)
	port, err := tr.Open(ctx, "to-page", "to-worker")
	require.NoError(t, err)

	handler := memory.New()
	h := &harness{
		page:    page,
		entries: handler,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	opts = append([]Option{WithLogger(&log.Logger{Handler: handler, Level: log.DebugLevel})}, opts...)
	h.worker = New(port, opts...)
	h.worker.delay = delay
	go func() { h.done <- h.worker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) send(t *testing.T, cmd string) {
	t.Helper()
	require.NoError(t, h.page.PostMessage(context.Background(), []byte(cmd)))
}

func (h *harness) receive(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-h.page.Messages():
		return string(ev.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker message")
		return ""
	}
}

func (h *harness) assertSilent(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-h.page.Messages():
		t.Fatalf("unexpected message %q", ev.Data)
	case <-time.After(d):
	}
}

func TestInitialPushAfterDelay(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond)

	h.assertSilent(t, 100*time.Millisecond)
	assert.Equal(t, InitialText, h.receive(t))
	h.assertSilent(t, 300*time.Millisecond)
}

func TestInitialPushUsesDefaultDelay(t *testing.T) {
	h := newHarness(t, InitialPushDelay)

	start := time.Now()
	assert.Equal(t, "我是来自 worker 的数据", h.receive(t))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestUpdateDataAppendsSuffix(t *testing.T) {
	h := newHarness(t, time.Hour)

	const n = 5
	for i := 1; i <= n; i++ {
		h.send(t, string(UpdateData))
		assert.Equal(t, InitialText+strings.Repeat(Suffix, i), h.receive(t))
	}
}

func TestUpdateDataRepliesInSendOrder(t *testing.T) {
	h := newHarness(t, time.Hour)

	h.send(t, "updateData")
	h.send(t, "updateData")
	assert.Equal(t, InitialText+"!!!", h.receive(t))
	assert.Equal(t, InitialText+"!!!!!!", h.receive(t))
}

func TestUnknownCommandIsRejected(t *testing.T) {
	rejected := 0
	h := newHarness(t, time.Hour, WithRejectedCounter(func() { rejected++ }))

	h.send(t, "resetData")
	h.assertSilent(t, 200*time.Millisecond)

	// The worker keeps serving after a rejected command.
	h.send(t, "updateData")
	assert.Equal(t, InitialText+Suffix, h.receive(t))
	assert.Equal(t, 1, rejected)

	var failed *log.Entry
	for _, e := range h.entries.Entries {
		if e.Level == log.ErrorLevel {
			failed = e
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "resetData", failed.Fields.Get("command"))
}

func TestInitialPushCarriesCurrentText(t *testing.T) {
	h := newHarness(t, 300*time.Millisecond)

	h.send(t, "updateData")
	assert.Equal(t, InitialText+Suffix, h.receive(t))
	assert.Equal(t, InitialText+Suffix, h.receive(t))
}

func TestDispatch(t *testing.T) {
	w := New(nopPort{})

	err := w.dispatch(context.Background(), Command("page"))
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, InitialText, w.state.Text)

	require.NoError(t, w.dispatch(context.Background(), UpdateData))
	assert.Equal(t, InitialText+Suffix, w.state.Text)
}

func TestRunStopsWhenPortCloses(t *testing.T) {
	ctx := context.Background()
	port, err := dualthread.NewMemoryTransport().Open(ctx, "out", "in")
	require.NoError(t, err)
	w := New(port)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, dualthread.ErrPortClosed)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

type nopPort struct{}

func (nopPort) PostMessage(context.Context, []byte) error { return nil }
func (nopPort) Messages() <-chan dualthread.MessageEvent { return nil }
func (nopPort) Close() error { return nil }
