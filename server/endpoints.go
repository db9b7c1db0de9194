package server

import (
	"net/url"
	"os"

	"github.com/nabbar/opcua-core/listener"
)

// buildEndpointsLocked populates s.endpoints from the configured server
// URLs: one Endpoint per URL, all sharing the discovery URL set (every
// configured URL whose host is non-empty, per the spec's "discovery URLs
// derived from server URLs" rule) and the first configured security
// policy, seeded with whatever certificate the configuration names on
// disk. Caller must hold mu.
func (s *Server) buildEndpointsLocked() {
	urls := s.cfg.ServerURLs
	if len(urls) == 0 {
		urls = []string{listener.DefaultURL}
	}

	discovery := discoveryURLs(urls)

	var policyURI string
	if len(s.policies) > 0 {
		policyURI = s.policies[0].URI()
	}

	cert := s.readConfiguredCertificateLocked()

	endpoints := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, Endpoint{
			URL:               u,
			SecurityPolicyURI: policyURI,
			ServerCertificate: cert,
			DiscoveryURLs:     discovery,
		})
	}
	s.endpoints = endpoints
}

// readConfiguredCertificateLocked loads the server certificate named by
// the configuration, if any. A missing or unreadable file is soft: it is
// logged and endpoints start with no certificate, matching startup's
// tolerance for other missing optional capabilities.
func (s *Server) readConfiguredCertificateLocked() []byte {
	path := s.cfg.Certificate.CertFile
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		s.logWarn("startup: cannot read configured server certificate: " + err.Error())
		return nil
	}
	return b
}

// discoveryURLs returns every entry of urls whose host component is
// non-empty: a bind-all URL like opc.tcp://:4840 publishes no discovery
// URL of its own.
func discoveryURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if u.Hostname() != "" {
			out = append(out, raw)
		}
	}
	return out
}

// Endpoints returns a snapshot of the server's published endpoints.
func (s *Server) Endpoints() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}
