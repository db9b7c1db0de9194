// Package eventloop declares the cooperative, single-threaded event loop
// contract that the server core runs on. The loop itself is an external
// capability (a real implementation lives in eventloop/sysloop, a fake one
// for tests in eventloop/testloop); everything under server/, listener/,
// reverseconnect/ and namespace/ is written purely against this contract.
package eventloop

import (
	"context"
	"time"
)

// CallbackID identifies a registered timed or cyclic callback so it can be
// modified or removed later. Zero is never issued by a Loop implementation.
type CallbackID uint64

// TimedCallbackFunc is invoked by the loop on its own goroutine. It must
// never block for long: a housekeeping tick, a retry sweep, a one-shot
// delayed free.
type TimedCallbackFunc func(ctx context.Context, id CallbackID)

// MissPolicy controls what happens to a cyclic callback's next deadline
// when the loop falls behind schedule.
type MissPolicy uint8

const (
	// MissPolicyCatchUp fires once per missed interval until caught up.
	MissPolicyCatchUp MissPolicy = iota
	// MissPolicySkipToNow reschedules from now, dropping missed ticks.
	MissPolicySkipToNow
)

// RunStatus reports why a bounded call to Loop.Run returned.
type RunStatus uint8

const (
	RunStatusTimeout RunStatus = iota
	RunStatusStopped
	RunStatusNoWork
)

// EventSourceKind distinguishes the flavors of EventSource a Loop may poll.
type EventSourceKind uint8

const (
	EventSourceKindConnectionManager EventSourceKind = iota
	EventSourceKindTimer
	EventSourceKindCustom
)

// EventSourceState is the lifecycle state of one EventSource within a Loop.
type EventSourceState uint8

const (
	EventSourceStateStopped EventSourceState = iota
	EventSourceStateStarting
	EventSourceStateStarted
	EventSourceStateStopping
)

// EventSource is anything the loop polls on each iteration: a connection
// manager, a timer source, or a custom source registered by an embedder.
type EventSource interface {
	Kind() EventSourceKind
	State() EventSourceState
}

// ConnectionID identifies one open network connection handed out by a
// ConnectionManager.
type ConnectionID uint64

// ConnectionParams carries the minimal dial/listen parameters a
// ConnectionManager needs; protocol-specific managers read the keys they
// recognize (e.g. "port", "address", "listen") and ignore the rest.
type ConnectionParams map[string]string

// NetworkCallback is invoked by a ConnectionManager when a connection it
// owns changes state (accepted, data arrived, closed).
type NetworkCallback func(id ConnectionID, state ConnectionState, data []byte)

// ConnectionState reports the lifecycle of one managed connection.
type ConnectionState uint8

const (
	ConnectionStateOpening ConnectionState = iota
	ConnectionStateOpen
	ConnectionStateClosed
	ConnectionStateFaulted
)

// ConnectionManager is an EventSource that also knows how to open and close
// connections for one transport protocol (e.g. "tcp").
type ConnectionManager interface {
	EventSource
	Protocol() string
	OpenConnection(ctx context.Context, params ConnectionParams, cb NetworkCallback) (ConnectionID, error)
	CloseConnection(id ConnectionID) error
}

// Loop is the cooperative event loop the server core runs its entire
// lifecycle on: one goroutine, one mutex upstream in the server, all
// callbacks serialized against each other by construction.
type Loop interface {
	// Start starts the loop; it does not block. Registered EventSources
	// are not started by it: each source manages its own state.
	Start(ctx context.Context) error
	// Stop stops the loop; it does not block. Registered EventSources are
	// not stopped by it.
	Stop() error

	// Run processes ready callbacks and I/O for up to timeout and returns
	// why it stopped. A zero timeout processes whatever is immediately
	// ready and returns.
	Run(timeout time.Duration) (RunStatus, error)

	// NextCyclicDeadline reports when the next cyclic callback is due, if
	// any are registered.
	NextCyclicDeadline() (time.Time, bool)

	AddTimedCallback(cb TimedCallbackFunc, deadline time.Time) (CallbackID, error)
	AddCyclicCallback(cb TimedCallbackFunc, interval time.Duration, initial *time.Time, missPolicy MissPolicy) (CallbackID, error)
	ModifyCyclicCallback(id CallbackID, interval time.Duration, initial *time.Time, missPolicy MissPolicy) error
	RemoveCallback(id CallbackID) error

	// AddDelayedCallback schedules fn to run on the loop's own goroutine
	// on the next iteration; used to defer frees past in-flight callbacks.
	AddDelayedCallback(fn func())

	// EventSources lists every source currently registered with the loop.
	EventSources() []EventSource

	// AddEventSource registers a new source (typically a ConnectionManager)
	// with the loop.
	AddEventSource(src EventSource) error
	// RemoveEventSource unregisters a source previously added.
	RemoveEventSource(src EventSource) error
}
