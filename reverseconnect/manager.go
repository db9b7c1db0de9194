// Package reverseconnect implements the server's reverse-connect manager:
// a table of outbound dial targets the server retries on a 1 Hz cyclic
// callback, each carrying its own state machine and a state-change
// callback the embedder uses to react to connect/disconnect.
//
// Entries live in a handle-indexed map rather than the intrusive linked
// list the manager is traditionally built on, so Remove and the retry
// tick can both operate by collect-then-act instead of pointer surgery.
package reverseconnect

import (
	"context"
	"net"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/opcua-core/eventloop"
	"github.com/nabbar/opcua-core/status"
)

// Handle identifies one reverse-connect entry. Handles are monotonically
// issued and never reused, even after the entry they named is freed.
type Handle uint64

// State mirrors the secure-channel states a reverse-connect target can be
// in. It never goes backward except through Closed.
type State uint8

const (
	StateClosed State = iota
	StateConnecting
	StateConnected
)

// StateChangeFunc is invoked whenever an entry's State transitions. ctx is
// the opaque value passed to Add, returned unchanged.
type StateChangeFunc func(handle Handle, state State, ctx any)

const retryInterval = time.Second

// entry's state/connID are touched from more than one goroutine: attempt
// and networkCallback run wherever the loop dispatches them (the server's
// service-mutex-holding Iterate goroutine for retryTick/networkCallback,
// the caller's own goroutine for Add's synchronous first attempt), and
// Remove/requestClose run on whatever goroutine calls them, outside the
// service mutex (server/reverseconnect.go releases it before delegating
// here). mu guards exactly those two fields.
type entry struct {
	handle  Handle
	host    string
	port    string
	stateCb StateChangeFunc
	ctx     any

	mu     sync.Mutex
	state  State
	connID *eventloop.ConnectionID

	destruction atomic.Bool
	freed       atomic.Bool
}

// Manager owns the reverse-connect table for one server instance. It
// guards the table with its own mutex and each entry's state with the
// entry's mutex, so callers need not serialize calls to it (the server
// calls Add and Remove outside its service mutex).
type Manager struct {
	log  liblog.FuncLog
	loop eventloop.Loop

	mu       sync.Mutex
	entries  map[Handle]*entry
	nextID   uint64
	retryID  eventloop.CallbackID
	hasRetry bool
}

// New builds a Manager driving its retries through loop.
func New(loop eventloop.Loop, defLog liblog.FuncLog) *Manager {
	return &Manager{
		loop:    loop,
		log:     defLog,
		entries: make(map[Handle]*entry),
	}
}

// Count returns the number of reverse-connect entries currently registered,
// regardless of their connection state.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Add parses rawURL (expected form "opc.tcp://host:port"), allocates a new
// entry, installs the 1 Hz retry callback if this is the first entry, and
// attempts an immediate connect.
func (m *Manager) Add(rawURL string, cb StateChangeFunc, ctx any) (Handle, error) {
	host, port, err := parseTarget(rawURL)
	if err != nil {
		return 0, status.InvalidArgument("invalid reverse-connect url", err)
	}

	m.mu.Lock()
	m.nextID++
	h := Handle(m.nextID)
	e := &entry{handle: h, host: host, port: port, state: StateClosed, stateCb: cb, ctx: ctx}
	m.entries[h] = e

	if !m.hasRetry {
		id, err := m.loop.AddCyclicCallback(m.retryTick, retryInterval, nil, eventloop.MissPolicySkipToNow)
		if err != nil {
			delete(m.entries, h)
			m.mu.Unlock()
			return 0, status.Internal("cannot install reverse-connect retry callback", err)
		}
		m.retryID = id
		m.hasRetry = true
	}
	m.mu.Unlock()

	m.attempt(e)
	return h, nil
}

// Remove tears down the entry identified by handle. If it has no live
// connection it is freed immediately; otherwise it is quarantined, a
// delayed callback frees it after the loop's current iteration, and
// transport close is requested.
func (m *Manager) Remove(handle Handle) error {
	m.mu.Lock()
	e, ok := m.entries[handle]
	if !ok {
		m.mu.Unlock()
		return status.NotFound("no reverse-connect entry for this handle")
	}
	delete(m.entries, handle)
	last := len(m.entries) == 0
	var retryID eventloop.CallbackID
	if last && m.hasRetry {
		retryID = m.retryID
		m.hasRetry = false
	}
	m.mu.Unlock()

	if last {
		_ = m.loop.RemoveCallback(retryID)
	}

	e.mu.Lock()
	hasConn := e.connID != nil
	if !hasConn {
		e.state = StateClosed
	}
	e.mu.Unlock()

	if !hasConn {
		m.free(e)
		return nil
	}

	e.destruction.Store(true)
	m.loop.AddDelayedCallback(func() { m.free(e) })
	m.requestClose(e)
	return nil
}

// ShutdownAll tears down every entry, used by the server's shutdown path
// which marks every reverse-connect entry for destruction and requests
// transport close for each, mirroring Remove's quarantine behavior.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	handles := make([]Handle, 0, len(m.entries))
	for h := range m.entries {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		_ = m.Remove(h)
	}
}

func (m *Manager) free(e *entry) {
	if e.freed.CompareAndSwap(false, true) {
		e.host = ""
	}
}

func (m *Manager) requestClose(e *entry) {
	e.mu.Lock()
	connID := e.connID
	e.mu.Unlock()

	if connID == nil {
		return
	}
	cm := m.firstTCPManager()
	if cm == nil {
		return
	}
	_ = cm.CloseConnection(*connID)
}

// attempt dials out for e through the first started tcp ConnectionManager
// registered with the loop.
func (m *Manager) attempt(e *entry) {
	var cm eventloop.ConnectionManager
	sawTCP := false
	for _, src := range m.loop.EventSources() {
		c, ok := src.(eventloop.ConnectionManager)
		if !ok || c.Protocol() != "tcp" {
			continue
		}
		sawTCP = true
		if c.State() == eventloop.EventSourceStateStarted {
			cm = c
			break
		}
	}
	if !sawTCP {
		m.logWarn("no tcp connection manager available for reverse-connect")
		return
	}
	if cm == nil {
		return // async-in-progress: retried on the next 1 Hz tick
	}

	e.mu.Lock()
	wasClosed := e.state == StateClosed
	e.mu.Unlock()

	params := eventloop.ConnectionParams{"address": e.host, "port": e.port}
	id, err := cm.OpenConnection(context.Background(), params, m.networkCallback(e))

	if wasClosed {
		e.mu.Lock()
		e.state = StateConnecting
		e.mu.Unlock()
		m.notify(e, StateConnecting)
	}

	if err != nil {
		m.logWarn("reverse-connect attempt failed: " + err.Error())
		e.mu.Lock()
		e.connID = nil
		if wasClosed {
			e.state = StateClosed
		}
		e.mu.Unlock()
		if wasClosed {
			m.notify(e, StateClosed)
		}
		return
	}

	e.mu.Lock()
	e.connID = &id
	e.mu.Unlock()
}

func (m *Manager) networkCallback(e *entry) eventloop.NetworkCallback {
	return func(id eventloop.ConnectionID, st eventloop.ConnectionState, data []byte) {
		if e.destruction.Load() {
			if st == eventloop.ConnectionStateClosed || st == eventloop.ConnectionStateFaulted {
				e.mu.Lock()
				e.connID = nil
				e.mu.Unlock()
			}
			return
		}

		switch st {
		case eventloop.ConnectionStateOpen:
			e.mu.Lock()
			e.connID = &id
			e.state = StateConnected
			e.mu.Unlock()
			m.notify(e, StateConnected)
		case eventloop.ConnectionStateClosed, eventloop.ConnectionStateFaulted:
			e.mu.Lock()
			e.connID = nil
			e.state = StateClosed
			e.mu.Unlock()
			m.notify(e, StateClosed)
		}
	}
}

// notify invokes e's state-change callback with state, which the caller
// must pass explicitly: notify never re-reads e.state itself, so the
// notification always reports the state the caller just transitioned to.
func (m *Manager) notify(e *entry, state State) {
	if e.stateCb != nil {
		e.stateCb(e.handle, state, e.ctx)
	}
}

// retryTick is installed as the 1 Hz cyclic callback; it retries every
// entry currently closed and not quarantined for destruction.
func (m *Manager) retryTick(ctx context.Context, id eventloop.CallbackID) {
	m.mu.Lock()
	due := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		e.mu.Lock()
		closed := e.state == StateClosed
		e.mu.Unlock()
		if closed && !e.destruction.Load() {
			due = append(due, e)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].handle < due[j].handle })
	for _, e := range due {
		m.attempt(e)
	}
}

func (m *Manager) firstTCPManager() eventloop.ConnectionManager {
	for _, src := range m.loop.EventSources() {
		if cm, ok := src.(eventloop.ConnectionManager); ok && cm.Protocol() == "tcp" {
			return cm
		}
	}
	return nil
}

func (m *Manager) logWarn(msg string) {
	if m.log == nil {
		return
	}
	if l := m.log(); l != nil {
		l.Warning(msg, nil)
	}
}

func parseTarget(rawURL string) (host, port string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	h, p, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host, "4840", nil
	}
	if _, convErr := strconv.Atoi(p); convErr != nil {
		return "", "", convErr
	}
	return h, p, nil
}
