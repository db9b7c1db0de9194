package server

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nabbar/opcua-core/status"
)

// CertHash is the comparison key used to find which sessions, channels,
// and security policies are bound to a given certificate. It is not a
// cryptographic identity beyond that comparison.
func CertHash(cert []byte) string {
	sum := sha256.Sum256(cert)
	return hex.EncodeToString(sum[:])
}

// UpdateCertificate rotates the certificate+key pair for every endpoint
// whose ServerCertificate matches oldCert (spec.md §4.G step 3), updating
// the endpoint's own certificate and the security policy it references by
// URI, optionally closing sessions and secure channels bound to the old
// certificate first.
//
// Argument validation only covers the receiver and the three byte-string
// arguments; closeSessions and closeSecureChannels are taken as given —
// in the original C API this reflects that only pointer arguments can be
// null, a distinction Go's bool type makes moot, but the asymmetry is
// kept here because a caller passing an empty oldCert/newCert/newKey is a
// programming error in a way that false/false never is.
func (s *Server) UpdateCertificate(oldCert, newCert, newKey []byte, closeSessions, closeSecureChannels bool) error {
	if len(oldCert) == 0 || len(newCert) == 0 || len(newKey) == 0 {
		return status.InvalidArgument("certificate and key arguments must be non-empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldHash := CertHash(oldCert)

	if closeSessions {
		s.sessions.CloseSessionsByCert(oldHash)
	}
	if closeSecureChannels {
		s.channels.ShutdownChannelsByCert(oldHash)
	}

	matched := 0
	for i := range s.endpoints {
		ep := &s.endpoints[i]
		if CertHash(ep.ServerCertificate) != oldHash {
			continue
		}
		ep.ServerCertificate = newCert
		matched++

		for _, p := range s.policies {
			if p.URI() != ep.SecurityPolicyURI {
				continue
			}
			if err := p.SetCertificateKeyPair(newCert, newKey); err != nil {
				return status.Internal("certificate swap failed for security policy "+p.URI(), err)
			}
		}
	}

	if matched == 0 {
		s.logWarn("updateCertificate: no endpoint matched the old certificate")
	}
	return nil
}
