// Package tcp implements the real, net.Listener-backed
// eventloop.ConnectionManager for the "tcp" transport: the only scheme the
// listener fan-out and the reverse-connect manager currently dial through.
//
// Grounded on the API shape of the teacher's socket/server/tcp test suite
// (no production source survived retrieval for that package, see
// DESIGN.md) and generalized to also dial outbound for reverse-connect.
package tcp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/opcua-core/eventloop"
	"github.com/nabbar/opcua-core/status"
)

type conn struct {
	id  eventloop.ConnectionID
	c   net.Conn
	ln  net.Listener
	cb  eventloop.NetworkCallback
}

// Manager is a ConnectionManager over plain TCP. The same instance serves
// both listen requests (from the listener fan-out) and dial requests (from
// reverse-connect), distinguished by the "listen" parameter.
//
// Accept/read/dial each run on their own goroutine (net.Conn has no
// single-threaded event notification of its own), but every NetworkCallback
// invocation they produce is marshaled onto loop's goroutine via
// AddDelayedCallback before it runs, so they stay serialized with the
// server's timed and cyclic callbacks under the same loop thread. A Manager
// built with a nil loop calls them inline from those goroutines instead.
type Manager struct {
	log  liblog.FuncLog
	loop eventloop.Loop

	state atomic.Int32

	mu     sync.Mutex
	nextID uint64
	conns  map[eventloop.ConnectionID]*conn
}

// New builds a Manager bound to loop. It starts in the "started" state:
// there is no separate activation step for plain TCP beyond accepting
// OpenConnection calls, unlike a TLS-wrapped manager which would need
// certificates loaded first.
func New(loop eventloop.Loop, defLog liblog.FuncLog) *Manager {
	m := &Manager{log: defLog, loop: loop, conns: make(map[eventloop.ConnectionID]*conn)}
	m.state.Store(int32(eventloop.EventSourceStateStarted))
	return m
}

// dispatch hands cb off to the event loop's own goroutine instead of
// invoking it inline, so accept/read/dial goroutines never call user code
// directly.
func (m *Manager) dispatch(cb eventloop.NetworkCallback, id eventloop.ConnectionID, state eventloop.ConnectionState, data []byte) {
	if cb == nil {
		return
	}
	if m.loop == nil {
		cb(id, state, data)
		return
	}
	m.loop.AddDelayedCallback(func() { cb(id, state, data) })
}

func (m *Manager) Kind() eventloop.EventSourceKind { return eventloop.EventSourceKindConnectionManager }
func (m *Manager) Protocol() string                { return "tcp" }

func (m *Manager) State() eventloop.EventSourceState {
	return eventloop.EventSourceState(m.state.Load())
}

// Stop closes every listener and connection this manager owns and marks it
// stopped.
func (m *Manager) Stop() error {
	m.state.Store(int32(eventloop.EventSourceStateStopping))
	m.mu.Lock()
	entries := make([]*conn, 0, len(m.conns))
	for _, c := range m.conns {
		entries = append(entries, c)
	}
	m.conns = make(map[eventloop.ConnectionID]*conn)
	m.mu.Unlock()

	for _, c := range entries {
		m.closeEntry(c)
	}
	m.state.Store(int32(eventloop.EventSourceStateStopped))
	return nil
}

// OpenConnection either starts listening (params["listen"] == "true") or
// dials out, depending on the parameter map built by the listener fan-out
// or the reverse-connect manager respectively.
func (m *Manager) OpenConnection(ctx context.Context, params eventloop.ConnectionParams, cb eventloop.NetworkCallback) (eventloop.ConnectionID, error) {
	port := params["port"]
	addr := params["address"]

	if params["listen"] == "true" {
		return m.listen(addr, port, cb)
	}
	return m.dial(ctx, addr, port, cb)
}

func (m *Manager) listen(host, port string, cb eventloop.NetworkCallback) (eventloop.ConnectionID, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return 0, status.Internal("tcp listen failed", err)
	}

	id := m.register(&conn{ln: ln, cb: cb})
	go m.acceptLoop(id, ln, cb)
	return id, nil
}

func (m *Manager) acceptLoop(listenerID eventloop.ConnectionID, ln net.Listener, cb eventloop.NetworkCallback) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		id := m.register(&conn{c: c, cb: cb})
		m.dispatch(cb, id, eventloop.ConnectionStateOpen, nil)
		go m.readLoop(id, c, cb)
	}
}

func (m *Manager) readLoop(id eventloop.ConnectionID, c net.Conn, cb eventloop.NetworkCallback) {
	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			m.dispatch(cb, id, eventloop.ConnectionStateOpen, data)
		}
		if err != nil {
			m.unregister(id)
			m.dispatch(cb, id, eventloop.ConnectionStateClosed, nil)
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context, host, port string, cb eventloop.NetworkCallback) (eventloop.ConnectionID, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return 0, status.Internal("tcp dial failed", err)
	}

	id := m.register(&conn{c: c, cb: cb})
	m.dispatch(cb, id, eventloop.ConnectionStateOpen, nil)
	go m.readLoop(id, c, cb)
	return id, nil
}

// CloseConnection closes the listener or dialed connection identified by
// id. Closing an unknown or already-closed id returns a NotFound error.
func (m *Manager) CloseConnection(id eventloop.ConnectionID) error {
	m.mu.Lock()
	c, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()

	if !ok {
		return status.NotFound("no connection for this id")
	}
	return m.closeEntry(c)
}

func (m *Manager) closeEntry(c *conn) error {
	if c.ln != nil {
		return c.ln.Close()
	}
	if c.c != nil {
		return c.c.Close()
	}
	return nil
}

func (m *Manager) register(c *conn) eventloop.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := eventloop.ConnectionID(m.nextID)
	c.id = id
	m.conns[id] = c
	return id
}

func (m *Manager) unregister(id eventloop.ConnectionID) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
}

var _ eventloop.ConnectionManager = (*Manager)(nil)
