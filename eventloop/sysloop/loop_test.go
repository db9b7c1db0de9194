package sysloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/opcua-core/eventloop"
)

func startedLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(nil)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestAddTimedCallbackFiresOnce(t *testing.T) {
	l := startedLoop(t)

	fired := 0
	_, err := l.AddTimedCallback(func(ctx context.Context, id eventloop.CallbackID) {
		fired++
	}, time.Now())
	require.NoError(t, err)

	status, err := l.Run(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, eventloop.RunStatusTimeout, status)
	assert.Equal(t, 1, fired)

	status, err = l.Run(0)
	require.NoError(t, err)
	assert.Equal(t, eventloop.RunStatusNoWork, status)
	assert.Equal(t, 1, fired)
}

func TestAddCyclicCallbackRepeats(t *testing.T) {
	l := startedLoop(t)

	fired := 0
	_, err := l.AddCyclicCallback(func(ctx context.Context, id eventloop.CallbackID) {
		fired++
	}, 10*time.Millisecond, nil, eventloop.MissPolicySkipToNow)
	require.NoError(t, err)

	_, err = l.Run(60 * time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fired, 2)
}

func TestModifyCyclicCallbackWakesBlockedRun(t *testing.T) {
	l := startedLoop(t)

	fired := make(chan struct{}, 1)
	id, err := l.AddCyclicCallback(func(ctx context.Context, id eventloop.CallbackID) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, time.Hour, nil, eventloop.MissPolicySkipToNow)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Run(200 * time.Millisecond)
	}()

	require.NoError(t, l.ModifyCyclicCallback(id, 5*time.Millisecond, nil, eventloop.MissPolicySkipToNow))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ModifyCyclicCallback did not wake a Run already blocked on the stale deadline")
	}

	<-done
}

func TestModifyCyclicCallbackRejectsUnknownID(t *testing.T) {
	l := startedLoop(t)
	assert.ErrorIs(t, l.ModifyCyclicCallback(9999, time.Second, nil, eventloop.MissPolicySkipToNow), errUnknownCallback)
}

func TestRemoveCallbackStopsFiring(t *testing.T) {
	l := startedLoop(t)

	fired := 0
	id, err := l.AddCyclicCallback(func(ctx context.Context, id eventloop.CallbackID) {
		fired++
	}, 5*time.Millisecond, nil, eventloop.MissPolicySkipToNow)
	require.NoError(t, err)

	require.NoError(t, l.RemoveCallback(id))
	assert.ErrorIs(t, l.RemoveCallback(id), errUnknownCallback)

	_, err = l.Run(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}

func TestAddTimedCallbackRejectsNilCallback(t *testing.T) {
	l := startedLoop(t)
	_, err := l.AddTimedCallback(nil, time.Now())
	assert.ErrorIs(t, err, errNilCallback)
}

func TestAddCyclicCallbackRejectsNonPositiveInterval(t *testing.T) {
	l := startedLoop(t)
	_, err := l.AddCyclicCallback(func(context.Context, eventloop.CallbackID) {}, 0, nil, eventloop.MissPolicySkipToNow)
	assert.ErrorIs(t, err, errInvalidInterval)
}

func TestAddDelayedCallbackRunsBeforeTimers(t *testing.T) {
	l := startedLoop(t)

	var order []string
	l.AddDelayedCallback(func() { order = append(order, "delayed") })
	_, err := l.AddTimedCallback(func(context.Context, eventloop.CallbackID) {
		order = append(order, "timed")
	}, time.Now())
	require.NoError(t, err)

	_, err = l.Run(20 * time.Millisecond)
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "delayed", order[0])
}

func TestRunOnStoppedLoopReturnsStopped(t *testing.T) {
	l := New(nil)
	status, err := l.Run(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, eventloop.RunStatusStopped, status)
}

func TestEventSourceRegistration(t *testing.T) {
	l := startedLoop(t)
	src := &fakeSource{}

	require.NoError(t, l.AddEventSource(src))
	assert.Len(t, l.EventSources(), 1)

	require.NoError(t, l.RemoveEventSource(src))
	assert.Len(t, l.EventSources(), 0)
}

type fakeSource struct{}

func (f *fakeSource) Kind() eventloop.EventSourceKind   { return eventloop.EventSourceKind(0) }
func (f *fakeSource) State() eventloop.EventSourceState { return eventloop.EventSourceState(0) }
