package server

import (
	"context"
	"time"

	"github.com/nabbar/opcua-core/eventloop"
)

const defaultHousekeepingInterval = time.Second

// installHousekeepingLocked registers the 1 Hz housekeeping callback.
// Caller must hold mu. Cycle-miss policy is SkipToNow, the closest
// equivalent this loop exposes to the spec's "fire-with-current-time"
// policy: a miss reschedules from now rather than firing once per missed
// tick.
func (s *Server) installHousekeepingLocked() error {
	interval := s.cfg.HousekeepingInterval
	if interval <= 0 {
		interval = defaultHousekeepingInterval
	}

	id, err := s.loop.AddCyclicCallback(s.housekeepingTick, interval, nil, eventloop.MissPolicySkipToNow)
	if err != nil {
		return err
	}
	s.housekeepingID = id
	s.hasHousekeeping = true
	return nil
}

func (s *Server) removeHousekeepingLocked() {
	if !s.hasHousekeeping {
		return
	}
	_ = s.loop.RemoveCallback(s.housekeepingID)
	s.hasHousekeeping = false
}

// housekeepingTick samples now and forwards to the three injected
// collaborators: session expiry, secure-channel timeout, and (if enabled)
// discovery timeout. It runs from the event loop's callback, which the
// service mutex is already held across (Iterate calls loop.Run without
// releasing mu) — this is the unlocked variant every callback uses per
// the concurrency model: callbacks assume the lock is already theirs.
func (s *Server) housekeepingTick(ctx context.Context, id eventloop.CallbackID) {
	now := time.Now()
	s.sessions.ExpireSessions(now)
	s.channels.ExpireChannels(now)
	s.discovery.ExpireDiscovery(now)

	if s.recorder != nil {
		st := s.GetStatistics()
		s.recorder.SetSessions(st.CurrentSessions)
		s.recorder.SetChannels(st.CurrentChannels)
		s.recorder.SetReverseConnects(st.CurrentReverseConnects)
		s.recorder.IncHousekeepingTick()
	}
}
