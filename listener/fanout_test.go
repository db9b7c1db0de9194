package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/opcua-core/eventloop"
	"github.com/nabbar/opcua-core/eventloop/testloop"
)

type fakeCM struct {
	protocol string
	fail     bool
	params   []eventloop.ConnectionParams
}

func (f *fakeCM) Kind() eventloop.EventSourceKind   { return eventloop.EventSourceKindConnectionManager }
func (f *fakeCM) State() eventloop.EventSourceState { return eventloop.EventSourceStateStarted }
func (f *fakeCM) Protocol() string                  { return f.protocol }

func (f *fakeCM) OpenConnection(ctx context.Context, params eventloop.ConnectionParams, cb eventloop.NetworkCallback) (eventloop.ConnectionID, error) {
	f.params = append(f.params, params)
	if f.fail {
		return 0, errOpen
	}
	return eventloop.ConnectionID(len(f.params)), nil
}

func (f *fakeCM) CloseConnection(id eventloop.ConnectionID) error { return nil }

type openErr struct{}

func (openErr) Error() string { return "listen failed" }

var errOpen = openErr{}

func TestOpenAllUsesDefaultURLWhenListEmpty(t *testing.T) {
	loop := testloopNew()
	cm := &fakeCM{protocol: "tcp"}
	require.NoError(t, loop.AddEventSource(cm))

	slots := OpenAll(loop, nil, nil, nil)

	require.Len(t, slots, 1)
	assert.Equal(t, DefaultURL, slots[0].URL)
	assert.True(t, slots[0].Opened)
	require.Len(t, cm.params, 1)
	assert.Equal(t, "4840", cm.params[0]["port"])
	assert.Equal(t, "true", cm.params[0]["listen"])
	_, hasAddr := cm.params[0]["address"]
	assert.False(t, hasAddr, "empty hostname must omit the address param")
}

func TestOpenAllPassesHostWhenPresent(t *testing.T) {
	loop := testloopNew()
	cm := &fakeCM{protocol: "tcp"}
	require.NoError(t, loop.AddEventSource(cm))

	slots := OpenAll(loop, []string{"opc.tcp://192.168.1.1:4841"}, nil, nil)

	require.Len(t, slots, 1)
	assert.True(t, slots[0].Opened)
	assert.Equal(t, "192.168.1.1", cm.params[0]["address"])
	assert.Equal(t, "4841", cm.params[0]["port"])
}

func TestOpenAllIsSoftOnFailure(t *testing.T) {
	loop := testloopNew()
	cm := &fakeCM{protocol: "tcp", fail: true}
	require.NoError(t, loop.AddEventSource(cm))

	slots := OpenAll(loop, []string{"opc.tcp://:4840", "opc.tcp://:4841"}, nil, nil)

	require.Len(t, slots, 2)
	assert.False(t, slots[0].Opened)
	assert.False(t, slots[1].Opened)
}

func TestOpenAllNoMatchingManager(t *testing.T) {
	loop := testloopNew()

	slots := OpenAll(loop, []string{"opc.tcp://:4840"}, nil, nil)

	require.Len(t, slots, 1)
	assert.False(t, slots[0].Opened)
}

func testloopNew() *testloop.Loop {
	l := testloop.New(time.Unix(0, 0))
	l.Start(context.Background())
	return l
}
