package dualthread

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTransportContract checks the guarantees every Transport gives the page and the worker.
func runTransportContract(t *testing.T, tr Transport) {
	t.Run("FIFO", func(t *testing.T) {
		a, b := openPair(t, tr, "fifo")
		for i := 0; i < 20; i++ {
			require.NoError(t, a.PostMessage(context.Background(), []byte(fmt.Sprint(i))))
		}
		for i := 0; i < 20; i++ {
			assert.Equal(t, fmt.Sprint(i), string(receive(t, b).Data))
		}
	})

	t.Run("BothDirections", func(t *testing.T) {
		a, b := openPair(t, tr, "both")
		require.NoError(t, a.PostMessage(context.Background(), []byte("ping")))
		assert.Equal(t, "ping", string(receive(t, b).Data))
		require.NoError(t, b.PostMessage(context.Background(), []byte("pong")))
		assert.Equal(t, "pong", string(receive(t, a).Data))
	})

	t.Run("PayloadIsCopied", func(t *testing.T) {
		a, b := openPair(t, tr, "copy")
		data := []byte("text")
		require.NoError(t, a.PostMessage(context.Background(), data))
		copy(data, "XXXX")
		assert.Equal(t, "text", string(receive(t, b).Data))
	})

	t.Run("SubjectIsReported", func(t *testing.T) {
		a, b := openPair(t, tr, "subject")
		require.NoError(t, a.PostMessage(context.Background(), []byte("x")))
		assert.Equal(t, "subject.b", receive(t, b).Subject)
	})

	t.Run("Close", func(t *testing.T) {
		a, _ := openPair(t, tr, "close")
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
		_, open := <-a.Messages()
		assert.False(t, open)
		assert.ErrorIs(t, a.PostMessage(context.Background(), []byte("x")), ErrPortClosed)
	})

	t.Run("ContextEndsPort", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p, err := tr.Open(ctx, "ctx.a", "ctx.b")
		require.NoError(t, err)
		cancel()
		select {
		case _, open := <-p.Messages():
			assert.False(t, open)
		case <-time.After(3 * time.Second):
			t.Fatal("port stayed open after its context ended")
		}
		require.NoError(t, p.Close())
	})
}

// openPair opens two ports talking to each other: a posts to prefix.b and b posts to prefix.a.
func openPair(t *testing.T, tr Transport, prefix string) (Port, Port) {
	t.Helper()
	a, err := tr.Open(context.Background(), prefix+".b", prefix+".a")
	require.NoError(t, err)
	b, err := tr.Open(context.Background(), prefix+".a", prefix+".b")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func receive(t *testing.T, p Port) MessageEvent {
	t.Helper()
	select {
	case ev, ok := <-p.Messages():
		require.True(t, ok, "port closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return MessageEvent{}
	}
}
