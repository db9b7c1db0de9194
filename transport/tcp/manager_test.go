package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/opcua-core/eventloop"
)

func TestListenAcceptsConnections(t *testing.T) {
	m := New(nil, nil)
	require.Equal(t, eventloop.EventSourceStateStarted, m.State())

	events := make(chan eventloop.ConnectionState, 4)
	id, err := m.OpenConnection(context.Background(), eventloop.ConnectionParams{
		"listen":  "true",
		"port":    "0",
		"address": "127.0.0.1",
	}, func(_ eventloop.ConnectionID, st eventloop.ConnectionState, _ []byte) {
		events <- st
	})
	if err != nil {
		t.Skipf("listen on 127.0.0.1:0 unavailable in this sandbox: %v", err)
	}
	require.NotZero(t, id)

	require.NoError(t, m.Stop())
	assert.Equal(t, eventloop.EventSourceStateStopped, m.State())
}

func TestDialUnreachableFails(t *testing.T) {
	m := New(nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := m.OpenConnection(ctx, eventloop.ConnectionParams{
		"address": "127.0.0.1",
		"port":    "1", // reserved, never accepting
	}, nil)
	assert.Error(t, err)
}

func TestCloseUnknownConnectionIsNotFound(t *testing.T) {
	m := New(nil, nil)
	err := m.CloseConnection(999)
	assert.Error(t, err)
}
