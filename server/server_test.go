package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/opcua-core/config"
	"github.com/nabbar/opcua-core/eventloop"
	"github.com/nabbar/opcua-core/eventloop/testloop"
	"github.com/nabbar/opcua-core/reverseconnect"
)

type fakeRecorder struct {
	mu              sync.Mutex
	sessions        int
	channels        int
	reverseConnects int
	ticks           int
	iterateSamples  int
}

func (r *fakeRecorder) SetSessions(n int)        { r.mu.Lock(); defer r.mu.Unlock(); r.sessions = n }
func (r *fakeRecorder) SetChannels(n int)        { r.mu.Lock(); defer r.mu.Unlock(); r.channels = n }
func (r *fakeRecorder) SetReverseConnects(n int) { r.mu.Lock(); defer r.mu.Unlock(); r.reverseConnects = n }
func (r *fakeRecorder) IncHousekeepingTick()     { r.mu.Lock(); defer r.mu.Unlock(); r.ticks++ }
func (r *fakeRecorder) ObserveIterate(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterateSamples++
}

type fakeCM struct {
	protocol string
	state    eventloop.EventSourceState
	opened   int
}

func (f *fakeCM) Kind() eventloop.EventSourceKind   { return eventloop.EventSourceKindConnectionManager }
func (f *fakeCM) State() eventloop.EventSourceState { return f.state }
func (f *fakeCM) Protocol() string                  { return f.protocol }
func (f *fakeCM) OpenConnection(ctx context.Context, params eventloop.ConnectionParams, cb eventloop.NetworkCallback) (eventloop.ConnectionID, error) {
	f.opened++
	return eventloop.ConnectionID(f.opened), nil
}
func (f *fakeCM) CloseConnection(id eventloop.ConnectionID) error { return nil }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ApplicationURI = "urn:test:server"
	cfg.ServerName = "test"
	return cfg
}

func TestEmptyConfigStartupOpensDefaultListener(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	cm := &fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}
	require.NoError(t, loop.AddEventSource(cm))

	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)

	require.NoError(t, srv.Startup(context.Background()))
	assert.Equal(t, StateStarted, srv.State())
	assert.Equal(t, 1, cm.opened, "default opc.tcp://:4840 listener must be opened")

	ms, err := srv.Iterate(0)
	require.NoError(t, err)
	assert.LessOrEqual(t, ms, uint16(50))
}

func TestNamespacesInstalledAfterStartup(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	require.NoError(t, loop.AddEventSource(&fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}))

	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Startup(context.Background()))

	uri, ok := srv.GetNamespaceByIndex(0)
	require.True(t, ok)
	assert.Equal(t, "http://opcfoundation.org/UA/", uri)

	uri, ok = srv.GetNamespaceByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "urn:test:server", uri)
}

func TestNamespaceGrowth(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)

	a := srv.AddNamespace("A")
	b := srv.AddNamespace("B")
	a2 := srv.AddNamespace("A")
	c := srv.AddNamespace("C")

	assert.EqualValues(t, 2, a)
	assert.EqualValues(t, 3, b)
	assert.Equal(t, a, a2)
	assert.EqualValues(t, 4, c)
}

func TestShutdownWithoutDelayStopsNow(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	require.NoError(t, loop.AddEventSource(&fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}))

	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Startup(context.Background()))

	disp := srv.RequestShutdown(0)
	assert.Equal(t, ShutdownStopNow, disp)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, srv.State())

	require.NoError(t, srv.Delete())
}

func TestCertificateRotationSwapsMatchingPolicyOnly(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))

	oldCert := []byte("old-cert-bytes")
	newCert := []byte("new-cert-bytes")
	newKey := []byte("new-key-bytes")

	matching := &fakePolicy{uri: "policy-a", hash: CertHash(oldCert)}
	other := &fakePolicy{uri: "policy-b", hash: CertHash([]byte("unrelated"))}

	srv, err := New(testConfig(), loop, nil, WithSecurityPolicies(matching, other))
	require.NoError(t, err)

	srv.endpoints = []Endpoint{
		{URL: "opc.tcp://127.0.0.1:4840", SecurityPolicyURI: "policy-a", ServerCertificate: oldCert},
		{URL: "opc.tcp://127.0.0.1:4841", SecurityPolicyURI: "policy-b", ServerCertificate: []byte("unrelated")},
	}

	require.NoError(t, srv.UpdateCertificate(oldCert, newCert, newKey, false, false))
	assert.Equal(t, newCert, matching.cert)
	assert.Equal(t, newKey, matching.key)
	assert.Nil(t, other.cert)
	assert.Equal(t, newCert, srv.endpoints[0].ServerCertificate)
	assert.Equal(t, []byte("unrelated"), srv.endpoints[1].ServerCertificate)
}

func TestStartupBuildsEndpointsWithDiscoveryURLs(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	require.NoError(t, loop.AddEventSource(&fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}))

	cfg := testConfig()
	cfg.ServerURLs = []string{"opc.tcp://203.0.113.9:4840", "opc.tcp://:4841"}

	srv, err := New(cfg, loop, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Startup(context.Background()))

	eps := srv.Endpoints()
	require.Len(t, eps, 2)
	assert.Equal(t, []string{"opc.tcp://203.0.113.9:4840"}, eps[0].DiscoveryURLs,
		"a bind-all URL contributes no discovery URL of its own")
	assert.Equal(t, eps[0].DiscoveryURLs, eps[1].DiscoveryURLs, "every endpoint shares the same discovery URL set")
}

func TestCertificateRotationRejectsEmptyArgs(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)

	err = srv.UpdateCertificate(nil, []byte("n"), []byte("k"), false, false)
	assert.Error(t, err)
}

type fakePolicy struct {
	uri  string
	hash string
	cert []byte
	key  []byte
}

func (p *fakePolicy) URI() string             { return p.uri }
func (p *fakePolicy) CertificateHash() string { return p.hash }
func (p *fakePolicy) SetCertificateKeyPair(cert, key []byte) error {
	p.cert = cert
	p.key = key
	p.hash = CertHash(cert)
	return nil
}

func TestRunPumpsIterateUntilContextCanceled(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	require.NoError(t, loop.AddEventSource(&fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}))

	rec := &fakeRecorder{}
	srv, err := New(testConfig(), loop, nil, WithRecorder(rec))
	require.NoError(t, err)
	require.NoError(t, srv.Startup(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	running := &atomic.Bool{}
	running.Store(true)

	require.NoError(t, srv.Run(ctx, running))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Greater(t, rec.iterateSamples, 0, "Run must drive at least one Iterate call before the context expires")
}

func TestRunStopsWhenRunningFlagClears(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	require.NoError(t, loop.AddEventSource(&fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}))

	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Startup(context.Background()))

	running := &atomic.Bool{}
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), running) }()

	running.Store(false)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after the running flag was cleared")
	}
}

func TestReverseConnectAddAndRemove(t *testing.T) {
	loop := testloop.New(time.Unix(0, 0))
	loop.Start(context.Background())
	cm := &fakeCM{protocol: "tcp", state: eventloop.EventSourceStateStarted}
	require.NoError(t, loop.AddEventSource(cm))

	srv, err := New(testConfig(), loop, nil)
	require.NoError(t, err)

	var got []reverseconnect.State
	h, err := srv.AddReverseConnect("opc.tcp://10.0.0.1:4840", func(_ reverseconnect.Handle, st reverseconnect.State, _ any) {
		got = append(got, st)
	}, nil)
	require.NoError(t, err)
	require.NotZero(t, h)
	require.NotEmpty(t, got)

	require.NoError(t, srv.RemoveReverseConnect(h))
	err = srv.RemoveReverseConnect(h)
	assert.Error(t, err, "removing an already-removed handle must fail")
}
