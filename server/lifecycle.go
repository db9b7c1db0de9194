package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nabbar/opcua-core/config"
	"github.com/nabbar/opcua-core/listener"
	"github.com/nabbar/opcua-core/status"
)

const iteratePumpCap = 50 * time.Millisecond
const shutdownDrainStep = 100 * time.Millisecond

// Startup is idempotent past *started*. It starts the event loop, opens
// listeners per the configured server URLs, and registers housekeeping as
// a 1 Hz cyclic callback.
func (s *Server) Startup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStarted {
		return nil
	}
	if s.state != StateFresh {
		return status.InvalidArgument("startup called outside the fresh state")
	}

	s.ns.SetupNs1(s.cfg.ApplicationURI)

	if err := s.loop.Start(ctx); err != nil {
		return status.FatalInit("cannot start event loop", err)
	}

	s.slots = listener.OpenAll(s.loop, s.cfg.ServerURLs, s.onNetworkEvent, s.log)
	opened := 0
	for _, slot := range s.slots {
		if slot.Opened {
			opened++
		}
	}
	if opened == 0 {
		s.logWarn("startup: no listener could be opened, server remains reachable only via reverse-connect")
	}

	if err := s.installHousekeepingLocked(); err != nil {
		return err
	}

	s.buildEndpointsLocked()

	s.startTime = time.Now()
	s.state = StateStarted
	s.logInfo("server started")
	return nil
}

// Iterate pumps the event loop for at most 50 ms and returns the
// milliseconds until the next cyclic deadline, truncated to fit a u16 the
// way the original wire API does.
func (s *Server) Iterate(waitInternal time.Duration) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStarted {
		return 0, status.InvalidArgument("iterate called outside the started state")
	}

	wait := waitInternal
	if wait > iteratePumpCap || wait <= 0 {
		wait = iteratePumpCap
	}

	started := time.Now()
	_, err := s.loop.Run(wait)
	if s.recorder != nil {
		s.recorder.ObserveIterate(time.Since(started))
	}
	if err != nil {
		return 0, status.Internal("event loop run failed", err)
	}

	next, ok := s.loop.NextCyclicDeadline()
	if !ok {
		return 0, nil
	}
	ms := time.Until(next).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 0xFFFF {
		ms = 0xFFFF
	}
	return uint16(ms), nil
}

// Run drives Iterate in a loop until ctx is canceled, running is set to
// false, or the server leaves the started state, sleeping between calls
// for the wait Iterate reports until its next cyclic deadline, capped at
// 50 ms (and 50 ms when Iterate reports no wait). This is
// the CLI's steady-state pump: Startup alone never fires housekeeping or
// reverse-connect retries, something must call Iterate repeatedly after
// it, and Run is that something for the runningFlag-driven embedding
// surface.
func (s *Server) Run(ctx context.Context, running *atomic.Bool) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if running != nil && !running.Load() {
			return nil
		}

		s.mu.Lock()
		state := s.state
		s.mu.Unlock()
		if state != StateStarted {
			return nil
		}

		nextMs, err := s.Iterate(iteratePumpCap)
		if err != nil {
			return err
		}

		wait := time.Duration(nextMs) * time.Millisecond
		if wait <= 0 || wait > iteratePumpCap {
			wait = iteratePumpCap
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// RequestShutdown implements setServerShutdown: with no delay it reports
// stop-now; with a delay it records the deadline and reports continue, so
// the caller keeps iterating until the grace period elapses.
func (s *Server) RequestShutdown(delay time.Duration) ShutdownDisposition {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateShuttingDown
	if delay <= 0 {
		return ShutdownStopNow
	}
	s.endTime = time.Now().Add(delay)
	s.delaying = true
	return ShutdownContinue
}

// Shutdown cancels housekeeping, tears down reverse-connect and listener
// slots, closes every secure channel, and drives the event loop to
// stopped. If a shutdown delay is pending it drains the loop in 100 ms
// steps, releasing and reacquiring the service mutex each step, until the
// deadline passes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateShuttingDown

	s.removeHousekeepingLocked()
	if s.rc != nil {
		s.rc.ShutdownAll()
	}
	s.channels.CloseAll()

	for _, slot := range s.slots {
		if slot.Opened && slot.Manager != nil {
			_ = slot.Manager.CloseConnection(slot.ConnectionID)
		}
	}
	s.slots = nil

	delaying := s.delaying
	endTime := s.endTime
	s.mu.Unlock()

	if delaying {
		for time.Now().Before(endTime) {
			s.mu.Lock()
			_, _ = s.loop.Run(shutdownDrainStep)
			s.mu.Unlock()
		}
	} else {
		if _, err := s.loop.Run(0); err != nil {
			s.logWarn("shutdown: final zero-timeout iteration failed: " + err.Error())
		}
	}

	if err := s.loop.Stop(); err != nil {
		s.logWarn("shutdown: event loop stop failed: " + err.Error())
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.logInfo("server stopped")
	return nil
}

// Delete requires shutdown to have completed (or the server never to have
// started). It drains the remaining in-core state (sessions, the
// reverse-connect manager, listener slots) and clears the configuration, matching the spec's move-semantics "free the server"
// step — Go's GC performs the actual reclamation.
func (s *Server) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped && s.state != StateFresh {
		return status.InvalidArgument("delete called before shutdown completed")
	}

	s.sessions.ExpireSessions(time.Now().Add(24 * 365 * time.Hour))
	s.cfg = config.Config{}
	s.rc = nil
	s.slots = nil
	return nil
}
