// Package server implements the OPC UA server core: the lifecycle state
// machine, the timed-callback façade over the event loop, housekeeping,
// certificate rotation, statistics, and the forEachChildNodeCall browse
// utility. Everything below the event-loop contract (the binary codec,
// the node store, the secure-channel crypto handshake and session
// dispatcher) is out of scope and reached only through the small
// collaborator interfaces in types.go.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	liblog "github.com/nabbar/golib/logger"

	"github.com/nabbar/opcua-core/config"
	"github.com/nabbar/opcua-core/eventloop"
	"github.com/nabbar/opcua-core/listener"
	"github.com/nabbar/opcua-core/namespace"
	"github.com/nabbar/opcua-core/reverseconnect"
	"github.com/nabbar/opcua-core/status"
)

// adminSessionNamespace seeds the deterministic admin session GUID: the
// same application URI always yields the same admin session identity
// across restarts, matching the spec's "deterministic GUID" requirement.
var adminSessionNamespace = uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")

// Server is the root aggregate. Public methods serialize through mu, the
// single service mutex, except AddDelayedCallback, GetStatistics and
// ForEachChildNodeCall, which do not take it, and the reverse-connect
// wrappers, which release it before delegating; internal code already
// holding mu calls the unlocked *Locked variants instead.
type Server struct {
	log liblog.FuncLog

	mu    sync.Mutex
	state State
	cfg   config.Config

	loop  eventloop.Loop
	ns    *namespace.Registry
	rc    *reverseconnect.Manager
	slots []listener.Slot

	sessions  SessionExpirer
	channels  ChannelExpirer
	discovery DiscoveryExpirer
	addrSpace AddressSpace
	policies  []SecurityPolicy
	recorder  Recorder

	endpoints []Endpoint

	housekeepingID  eventloop.CallbackID
	hasHousekeeping bool

	startTime time.Time
	endTime   time.Time
	delaying  bool

	adminSessionID uuid.UUID
}

// Option customizes collaborators New would otherwise default.
type Option func(*Server)

// WithAddressSpace injects the node-store/browse capability
// forEachChildNodeCall needs. Without one, ForEachChildNodeCall returns a
// FatalInit-flavored error rather than silently browsing nothing.
func WithAddressSpace(as AddressSpace) Option {
	return func(s *Server) { s.addrSpace = as }
}

// WithDiscoveryExpirer overrides the default no-op discovery expirer.
func WithDiscoveryExpirer(d DiscoveryExpirer) Option {
	return func(s *Server) { s.discovery = d }
}

// WithSecurityPolicies adds the security policies that endpoints reference
// by URI and that certificate rotation swaps key pairs on.
func WithSecurityPolicies(policies ...SecurityPolicy) Option {
	return func(s *Server) { s.policies = append(s.policies, policies...) }
}

// WithRecorder wires a metrics sink into the server core. Without one,
// statistics and iterate timing are computed but never published.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// New validates cfg, builds a Server, and runs init: installs namespaces 0
// and 1, and wires the default in-memory session/channel collaborators.
// On any init failure the partially-built server is torn down and the
// error is returned, matching the spec's "on any failure, delete is
// invoked" init contract.
func New(cfg config.Config, loop eventloop.Loop, defLog liblog.FuncLog, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loop == nil {
		return nil, status.FatalInit("event loop is required")
	}

	s := &Server{
		log:       defLog,
		cfg:       cfg,
		loop:      loop,
		ns:        namespace.New(),
		sessions:  newMemSessions(),
		channels:  newMemChannels(),
		discovery: noopDiscovery{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(); err != nil {
		_ = s.Delete()
		return nil, err
	}
	return s, nil
}

// init installs namespaces 0 and 1, the reverse-connect manager, and the
// deterministic admin session ID. The secure-channel/session/async/
// discovery/PubSub manager initialization named in spec.md §4.H belongs to
// the out-of-scope subsystems and is not modeled here beyond the
// collaborator seams above.
func (s *Server) init() error {
	s.ns.SetupNs1(s.cfg.ApplicationURI)
	s.rc = reverseconnect.New(s.loop, s.log)
	s.adminSessionID = uuid.NewSHA1(adminSessionNamespace, []byte(s.cfg.ApplicationURI))
	return nil
}

// AdminSessionID returns the deterministic GUID identifying the server's
// administrative session, derived from the application URI so it is
// stable across restarts with the same configuration.
func (s *Server) AdminSessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminSessionID
}

func (s *Server) logInfo(msg string) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Info(msg, nil)
	}
}

func (s *Server) logWarn(msg string) {
	if s.log == nil {
		return
	}
	if l := s.log(); l != nil {
		l.Warning(msg, nil)
	}
}

// Config returns the server's immutable-after-New configuration.
func (s *Server) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns the server's current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
