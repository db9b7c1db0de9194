package server

import "github.com/nabbar/opcua-core/namespace"

// AddNamespace calls setupNs1 then appends uri, returning its index. Per
// the namespace registry's idempotence, adding an already-present URI
// returns the existing index unchanged.
func (s *Server) AddNamespace(uri string) namespace.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ns.SetupNs1(s.cfg.ApplicationURI)
	return s.ns.Add(uri)
}

// GetNamespaceByIndex calls setupNs1 then looks up idx.
func (s *Server) GetNamespaceByIndex(idx namespace.Index) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ns.SetupNs1(s.cfg.ApplicationURI)
	return s.ns.LookupByIndex(idx)
}

// GetNamespaceByName calls setupNs1 then looks up uri.
func (s *Server) GetNamespaceByName(uri string) (namespace.Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ns.SetupNs1(s.cfg.ApplicationURI)
	return s.ns.LookupByURI(uri)
}
