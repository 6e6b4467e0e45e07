package dualthread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransport(t *testing.T) {
	runTransportContract(t, NewMemoryTransport())
}

func TestMemoryTransportKeepsMessagesUntilReceiverOpens(t *testing.T) {
	tr := NewMemoryTransport()
	sender, err := tr.Open(context.Background(), "late", "sender")
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.PostMessage(context.Background(), []byte("early")))

	receiver, err := tr.Open(context.Background(), "sender", "late")
	require.NoError(t, err)
	defer receiver.Close()
	assert.Equal(t, "early", string(receive(t, receiver).Data))
}

func TestMemoryTransportSingleReceiver(t *testing.T) {
	tr := NewMemoryTransport()
	first, err := tr.Open(context.Background(), "x", "inbox")
	require.NoError(t, err)

	_, err = tr.Open(context.Background(), "x", "inbox")
	assert.ErrorIs(t, err, ErrPortInUse)

	require.NoError(t, first.Close())
	second, err := tr.Open(context.Background(), "x", "inbox")
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
