package server

// Stats is a read-only snapshot of the server's channel and session
// counters. It is not taken under a single atomic lock-step with every
// other field: per spec, readers may observe a torn-but-consistent-per-
// field view across two fast-changing counters.
type Stats struct {
	CurrentChannels        int
	CurrentSessions        int
	CurrentReverseConnects int
}

// counter is satisfied by the default memSessions/memChannels
// collaborators; a custom SessionExpirer/ChannelExpirer that also wants
// to report counts into GetStatistics should implement it too.
type counter interface {
	Count() int
}

// GetStatistics returns the current channel/session counts. Collaborators
// that don't implement the optional counter interface report zero.
func (s *Server) GetStatistics() Stats {
	var st Stats
	if c, ok := s.channels.(counter); ok {
		st.CurrentChannels = c.Count()
	}
	if c, ok := s.sessions.(counter); ok {
		st.CurrentSessions = c.Count()
	}
	if s.rc != nil {
		st.CurrentReverseConnects = s.rc.Count()
	}
	return st
}
