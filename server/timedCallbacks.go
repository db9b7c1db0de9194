package server

import (
	"time"

	"github.com/nabbar/opcua-core/eventloop"
)

// AddTimedCallback registers a one-shot callback under the service mutex.
func (s *Server) AddTimedCallback(cb eventloop.TimedCallbackFunc, deadline time.Time) (eventloop.CallbackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop.AddTimedCallback(cb, deadline)
}

// AddRepeatedCallback registers a cyclic callback under the service mutex.
func (s *Server) AddRepeatedCallback(cb eventloop.TimedCallbackFunc, interval time.Duration, initial *time.Time, missPolicy eventloop.MissPolicy) (eventloop.CallbackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop.AddCyclicCallback(cb, interval, initial, missPolicy)
}

// ChangeRepeatedCallbackInterval reschedules an existing cyclic callback
// under the service mutex.
func (s *Server) ChangeRepeatedCallbackInterval(id eventloop.CallbackID, interval time.Duration, initial *time.Time, missPolicy eventloop.MissPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop.ModifyCyclicCallback(id, interval, initial, missPolicy)
}

// RemoveCallback unregisters a timed or cyclic callback under the service
// mutex.
func (s *Server) RemoveCallback(id eventloop.CallbackID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop.RemoveCallback(id)
}

// AddDelayedCallback schedules fn to run on the loop's own goroutine after
// the current iteration finishes. Unlike the above, this does not take
// the service mutex itself: fn is expected to take it if it needs to
// touch server state, mirroring the reverse-connect manager's deferred
// free.
func (s *Server) AddDelayedCallback(fn func()) {
	s.loop.AddDelayedCallback(fn)
}
