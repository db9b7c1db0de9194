package server

import "github.com/nabbar/opcua-core/reverseconnect"

// AddReverseConnect registers a new outbound reverse-connect target. The
// reverse-connect manager serializes its own internal state independently
// of the service mutex's critical section here (Add already performs its
// own immediate attempt synchronously before returning).
func (s *Server) AddReverseConnect(url string, cb reverseconnect.StateChangeFunc, ctx any) (reverseconnect.Handle, error) {
	s.mu.Lock()
	rc := s.rc
	s.mu.Unlock()
	return rc.Add(url, cb, ctx)
}

// RemoveReverseConnect tears down a previously added reverse-connect
// target by handle.
func (s *Server) RemoveReverseConnect(handle reverseconnect.Handle) error {
	s.mu.Lock()
	rc := s.rc
	s.mu.Unlock()
	return rc.Remove(handle)
}
