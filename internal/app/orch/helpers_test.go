package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Stream/internal/adapters/memnet"
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// Fire runs every timer that is neither stopped nor fired.
func (c *manualClock) Fire() int {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = t.fired || run
		t.mu.Unlock()
		if run {
			t.f()
			n++
		}
	}
	return n
}

// Active counts timers still armed.
func (c *manualClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

func (c *manualClock) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type harness struct {
	t     *testing.T
	net   *memnet.Network
	clock *manualClock
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, net: memnet.New(), clock: &manualClock{}}
}

func (h *harness) connectWith(tr core.Transport, role domain.Role, name string, mut func(*Config)) *Coordinator {
	h.t.Helper()
	cfg := Config{
		Role:        role,
		StreamID:    "abc123",
		DisplayName: name,
		AfterFunc:   h.clock.AfterFunc,
	}
	if mut != nil {
		mut(&cfg)
	}
	c, err := Connect(context.Background(), tr, cfg)
	if err != nil {
		h.t.Fatalf("Connect(%s): %v", role, err)
	}
	h.t.Cleanup(c.Teardown)
	return c
}

func (h *harness) host() *Coordinator {
	return h.connectWith(h.net, domain.RoleHost, "Host", nil)
}

func (h *harness) viewer(name string) *Coordinator {
	return h.connectWith(h.net, domain.RoleViewer, name, nil)
}

// joined connects a viewer and joins, waiting until the host counts it.
func (h *harness) joined(host *Coordinator, name string) *Coordinator {
	h.t.Helper()
	before := host.State().ViewerCount
	v := h.viewer(name)
	if err := v.JoinAsViewer(context.Background()); err != nil {
		h.t.Fatalf("JoinAsViewer: %v", err)
	}
	if host.State().Live {
		waitFor(h.t, "viewer counted", func() bool { return host.State().ViewerCount == before+1 })
		waitFor(h.t, "host media received", func() bool { return v.State().RemoteMedia != nil })
	}
	waitFor(h.t, "chat link open", func() bool { return hostLinkOpen(v) })
	waitFor(h.t, "host side chat link open", func() bool { return dataOpen(host, v.Identity()) })
	return v
}

func hostLinkOpen(v *Coordinator) bool { return dataOpen(v, v.hostID()) }

// dataOpen reports whether c holds an open data link to peer.
func dataOpen(c *Coordinator, peer domain.PeerID) bool {
	open := false
	_ = c.do(func() error {
		e, ok := c.reg.Data(peer)
		open = ok && e.State == app.DataOpen
		return nil
	})
	return open
}

// settle waits until c has processed everything queued before the call.
func settle(c *Coordinator) {
	_ = c.do(func() error { return nil })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// wrapTransport lets a test decorate the sessions a transport opens.
type wrapTransport struct {
	core.Transport
	wrap func(core.TransportSession) core.TransportSession
}

func (w wrapTransport) Open(ctx context.Context, id domain.PeerID) (core.TransportSession, error) {
	s, err := w.Transport.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.wrap(s), nil
}

var errInjected = errors.New("injected failure")

// failRelaySession refuses relay calls to selected recipients.
type failRelaySession struct {
	core.TransportSession
	mu   sync.Mutex
	fail map[domain.PeerID]bool
}

func (s *failRelaySession) block(peer domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = make(map[domain.PeerID]bool)
	}
	s.fail[peer] = true
}

func (s *failRelaySession) Call(ctx context.Context, remote domain.PeerID, local core.Media, md core.CallMetadata) (core.MediaLink, error) {
	s.mu.Lock()
	failing := md.Intent == core.IntentRelay && s.fail[remote]
	s.mu.Unlock()
	if failing {
		return nil, errInjected
	}
	return s.TransportSession.Call(ctx, remote, local, md)
}

// failSendSession wraps inbound data links so chat sends to peers matching
// fail are refused.
type failSendSession struct {
	core.TransportSession
	fail func(domain.PeerID) bool
}

func (s *failSendSession) OnIncomingData(fn func(core.DataLink)) {
	s.TransportSession.OnIncomingData(func(l core.DataLink) {
		fn(&failSendLink{DataLink: l, fail: s.fail})
	})
}

type failSendLink struct {
	core.DataLink
	fail func(domain.PeerID) bool
}

func (l *failSendLink) Send(b []byte) error {
	if l.fail(l.Peer()) {
		if m, err := app.DecodeDataMessage(b); err == nil && m.Type == app.MsgChat {
			return errInjected
		}
	}
	return l.DataLink.Send(b)
}

// rawPeer is a bare transport session used to act as a misbehaving or
// metadata-less client.
func (h *harness) rawPeer(id domain.PeerID) core.TransportSession {
	h.t.Helper()
	s, err := h.net.Open(context.Background(), id)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(s.Destroy)
	return s
}

func timeout() <-chan time.Time { return time.After(2 * time.Second) }
