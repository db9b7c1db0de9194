package server

import (
	"sync"
	"time"
)

// memSessions is the default SessionExpirer: a mutex-guarded map, enough
// to exercise housekeeping and certificate rotation for real without the
// secure-channel handshake this core does not implement.
type memSessions struct {
	mu sync.Mutex
	m  map[string]*Session
}

func newMemSessions() *memSessions {
	return &memSessions{m: make(map[string]*Session)}
}

func (s *memSessions) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.AuthToken] = sess
}

func (s *memSessions) Remove(authToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, authToken)
}

func (s *memSessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *memSessions) ExpireSessions(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.m {
		if !sess.ValidTill.After(now) {
			delete(s.m, token)
		}
	}
}

func (s *memSessions) CloseSessionsByCert(certHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.m {
		if sess.CertHash == certHash {
			delete(s.m, token)
		}
	}
}

// memChannels is the default ChannelExpirer.
type memChannels struct {
	mu sync.Mutex
	m  map[string]*Channel
}

func newMemChannels() *memChannels {
	return &memChannels{m: make(map[string]*Channel)}
}

func (c *memChannels) Add(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[ch.ID] = ch
}

func (c *memChannels) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *memChannels) ExpireChannels(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.m {
		if !ch.ExpiresAt.After(now) {
			delete(c.m, id)
		}
	}
}

func (c *memChannels) ShutdownChannelsByCert(certHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.m {
		if ch.CertHash == certHash {
			delete(c.m, id)
		}
	}
}

func (c *memChannels) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]*Channel)
}

// noopDiscovery is used when discovery is disabled; multicast discovery
// and the rest of the PubSub/discovery subsystem are macro-gated
// subsystems out of scope for this core (see REDESIGN FLAG).
type noopDiscovery struct{}

func (noopDiscovery) ExpireDiscovery(time.Time) {}
