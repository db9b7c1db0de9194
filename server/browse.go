package server

import "github.com/nabbar/opcua-core/status"

// ChildCallback is invoked once per local child found by
// ForEachChildNodeCall. Returning false short-circuits the browse.
type ChildCallback func(child ChildRef, userHandle any) bool

// ForEachChildNodeCall browses nodeID's children (in both reference
// directions, local-only per the spec's filter) through the injected
// AddressSpace, invoking cb per child and stopping at the first cb that
// returns false.
func (s *Server) ForEachChildNodeCall(nodeID string, cb ChildCallback, userHandle any) error {
	if s.addrSpace == nil {
		return status.FatalInit("no address space configured")
	}
	if cb == nil {
		return status.InvalidArgument("callback is nil")
	}

	for _, child := range s.addrSpace.ChildrenOf(nodeID) {
		if !cb(child, userHandle) {
			break
		}
	}
	return nil
}
