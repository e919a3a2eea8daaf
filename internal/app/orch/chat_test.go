package orch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dkeye/Stream/internal/adapters/memnet"
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

func TestHostChatReachesEveryViewerOnce(t *testing.T) {
	for _, j := range []int{0, 3} {
		h := newHarness(t)
		host := h.host()
		var viewers []*Coordinator
		for i := 0; i < j; i++ {
			viewers = append(viewers, h.joined(host, "v"))
		}

		m, err := host.SendChatMessage("  welcome  ")
		if err != nil {
			t.Fatal(err)
		}
		if m.Text != "welcome" || m.SenderPeerID != host.Identity() || m.StreamID != "abc123" {
			t.Fatalf("message = %+v", m)
		}
		if got := host.State().ChatLog; len(got) != 1 || got[0].ID != m.ID {
			t.Fatalf("host chat log = %+v", got)
		}
		for _, v := range viewers {
			waitFor(t, "viewer receives chat", func() bool { return len(v.State().ChatLog) == 1 })
			settle(v)
			log := v.State().ChatLog
			if len(log) != 1 || log[0].ID != m.ID || log[0].SenderName != "Host" {
				t.Fatalf("viewer chat log = %+v", log)
			}
		}
	}
}

// TestScenario_ViewerEchoDeduplicated: a viewer's message comes back from the
// host and is not appended twice.
func TestScenario_ViewerEchoDeduplicated(t *testing.T) {
	h := newHarness(t)
	host := h.host()
	a := h.joined(host, "A")
	b := h.joined(host, "B")

	m, err := a.SendChatMessage("hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.State().ChatLog) != 1 {
		t.Fatal("sender appends its message right away")
	}
	waitFor(t, "host receives", func() bool { return len(host.State().ChatLog) == 1 })
	waitFor(t, "B receives", func() bool { return len(b.State().ChatLog) == 1 })
	settle(a)

	log := a.State().ChatLog
	if len(log) != 1 || log[0].ID != m.ID {
		t.Fatalf("sender chat log = %+v", log)
	}
	if b.State().ChatLog[0].SenderName != "A" {
		t.Fatalf("sender name = %q", b.State().ChatLog[0].SenderName)
	}
}

func TestChatValidation(t *testing.T) {
	h := newHarness(t)
	host := h.connectWith(h.net, domain.RoleHost, "Host", func(c *Config) { c.MaxChatLen = 5 })

	if _, err := host.SendChatMessage("   "); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("blank = %v", err)
	}
	if _, err := host.SendChatMessage("toolong"); !errors.Is(err, domain.ErrMessageTooLong) {
		t.Fatalf("long = %v", err)
	}
	if _, err := host.SendChatMessage("héllo"); err != nil {
		t.Fatalf("five runes = %v", err)
	}
	if n := len(host.State().ChatLog); n != 1 {
		t.Fatalf("chat log len = %d", n)
	}
}

func TestViewerChatWithoutHostLink(t *testing.T) {
	h := newHarness(t)
	h.host()
	v := h.viewer("A")

	_, err := v.SendChatMessage("hello?")
	if !errors.Is(err, ErrNoHostLink) || core.KindOf(err) != core.KindTransport {
		t.Fatalf("SendChatMessage = %v", err)
	}
	if len(v.State().ChatLog) != 0 {
		t.Fatal("unsent message must not be appended")
	}
}

func TestHostDropsBadChat(t *testing.T) {
	h := newHarness(t)
	host := h.host()
	rawID := domain.PeerID("viewer-abc123-raw000001")
	raw := h.rawPeer(rawID)
	link, err := raw.Connect(context.Background(), host.Identity())
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "host side link open", func() bool { return dataOpen(host, rawID) })
	send := func(m domain.ChatMessage) {
		t.Helper()
		b, err := app.EncodeDataMessage(app.ChatEnvelope(m))
		if err != nil {
			t.Fatal(err)
		}
		if err := link.Send(b); err != nil {
			t.Fatal(err)
		}
	}

	good := domain.NewChatMessage("abc123", rawID, "Raw", "hello")
	send(good)
	send(good)
	send(domain.NewChatMessage("abc123", "viewer-abc123-someone01", "Spoof", "not me"))
	send(domain.NewChatMessage("other", rawID, "Raw", "wrong stream"))
	send(domain.NewChatMessage("abc123", rawID, "Raw", strings.Repeat("x", domain.DefaultMaxChatLen+1)))
	send(domain.NewChatMessage("abc123", rawID, "Raw", "   "))
	if err := link.Send([]byte("{not json")); err != nil {
		t.Fatal(err)
	}
	settle(host)

	log := host.State().ChatLog
	if len(log) != 1 || log[0].ID != good.ID {
		t.Fatalf("host chat log = %+v", log)
	}
}

func TestHelloNameLabelsViewerStream(t *testing.T) {
	h := newHarness(t)
	host := h.host()
	raw := h.rawPeer("viewer-abc123-raw000002")
	link, err := raw.Connect(context.Background(), host.Identity())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := app.EncodeDataMessage(app.HelloMessage("Zed"))
	if err := link.Send(b); err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Call(context.Background(), host.Identity(), memnet.NewMedia("video"), core.CallMetadata{}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "viewer stream", func() bool { return len(host.State().ViewerStreams) == 1 })
	if name := host.State().ViewerStreams[0].DisplayName; name != "Zed" {
		t.Fatalf("DisplayName = %q", name)
	}
}

func TestChatSendFailureClosesLink(t *testing.T) {
	h := newHarness(t)
	var (
		mu  sync.Mutex
		bad domain.PeerID
	)
	failing := func(p domain.PeerID) bool {
		mu.Lock()
		defer mu.Unlock()
		return p == bad
	}
	tr := wrapTransport{Transport: h.net, wrap: func(s core.TransportSession) core.TransportSession {
		return &failSendSession{TransportSession: s, fail: failing}
	}}
	host := h.connectWith(tr, domain.RoleHost, "Host", nil)
	a := h.joined(host, "A")
	b := h.joined(host, "B")
	mu.Lock()
	bad = b.Identity()
	mu.Unlock()

	if _, err := host.SendChatMessage("one"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "A receives", func() bool { return len(a.State().ChatLog) == 1 })
	waitFor(t, "B link closed", func() bool { return !hostLinkOpen(b) })
	if len(b.State().ChatLog) != 0 {
		t.Fatal("failed send must not deliver")
	}
	_, err := b.SendChatMessage("anyone?")
	if !errors.Is(err, ErrNoHostLink) {
		t.Fatalf("send after link loss = %v", err)
	}

	if _, err := host.SendChatMessage("two"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "A keeps receiving", func() bool { return len(a.State().ChatLog) == 2 })
}

func TestChatLogIsACopy(t *testing.T) {
	h := newHarness(t)
	host := h.host()
	if _, err := host.SendChatMessage("x"); err != nil {
		t.Fatal(err)
	}
	log := host.State().ChatLog
	log[0].Text = strings.ToUpper(log[0].Text)
	if host.State().ChatLog[0].Text != "x" {
		t.Fatal("State must not expose the internal chat log")
	}
}
