package dualthread

import (
	"context"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNSQTransportConfigKeepsOneMessageInFlight(t *testing.T) {
	tr := NewNSQTransport("127.0.0.1:4150", log.Log)
	assert.Equal(t, 1, tr.Config().MaxInFlight)
}

func TestNSQTransportOpenFailsWithoutNSQD(t *testing.T) {
	tr := NewNSQTransport("127.0.0.1:1", log.Log)
	_, err := tr.Open(context.Background(), "dualthread.default.to-worker", "dualthread.default.to-page")
	assert.Error(t, err)
}

func TestHostSelectsNSQ(t *testing.T) {
	h := NewHost()
	h.Set("TRANSPORT", "nsq")
	h.Set("NSQD_ADDR", "10.1.1.1:4150")

	tr, err := h.Transport(context.Background())
	require.NoError(t, err)
	require.IsType(t, &NSQTransport{}, tr)
	assert.Equal(t, "10.1.1.1:4150", tr.(*NSQTransport).addr)
}
