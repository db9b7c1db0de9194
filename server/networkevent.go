package server

import "github.com/nabbar/opcua-core/eventloop"

// onNetworkEvent is the network callback every opened listener slot is
// given. Full secure-channel establishment is out of scope for this core;
// this only logs connection lifecycle so the listener fan-out has a real,
// non-nil callback to hand connection managers.
func (s *Server) onNetworkEvent(id eventloop.ConnectionID, state eventloop.ConnectionState, data []byte) {
	switch state {
	case eventloop.ConnectionStateOpen:
		s.logInfo("listener: connection opened")
	case eventloop.ConnectionStateClosed, eventloop.ConnectionStateFaulted:
		s.logInfo("listener: connection closed")
	}
}

var _ eventloop.NetworkCallback = (*Server)(nil).onNetworkEvent
