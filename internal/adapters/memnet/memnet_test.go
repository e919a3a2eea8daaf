package memnet

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

func open(t *testing.T, n *Network, id domain.PeerID) *Session {
	t.Helper()
	s, err := n.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("Open(%s): %v", id, err)
	}
	return s.(*Session)
}

func TestOpen_IdentityTaken(t *testing.T) {
	n := New()
	first := open(t, n, "stream-host-abc123")

	_, err := n.Open(context.Background(), "stream-host-abc123")
	if !errors.Is(err, core.ErrIdentityTaken) {
		t.Fatalf("second Open = %v, want IdentityTaken", err)
	}

	first.Destroy()
	if n.Online("stream-host-abc123") {
		t.Fatal("destroyed session must release its identity")
	}
	open(t, n, "stream-host-abc123")
}

func TestCall_PeerUnreachable(t *testing.T) {
	n := New()
	s := open(t, n, "viewer")
	if _, err := s.Call(context.Background(), "stream-host-x", nil, core.CallMetadata{}); !errors.Is(err, core.ErrPeerUnreachable) {
		t.Fatalf("Call = %v", err)
	}
	if _, err := s.Connect(context.Background(), "stream-host-x"); !errors.Is(err, core.ErrPeerUnreachable) {
		t.Fatalf("Connect = %v", err)
	}
}

// TestCall_StreamsBothWays checks that the callee sees the caller's media on
// arrival and the caller sees the answer media after Answer.
func TestCall_StreamsBothWays(t *testing.T) {
	n := New()
	host := open(t, n, "host")
	viewer := open(t, n, "viewer")

	var inbound core.MediaLink
	var calleeGot core.Media
	host.OnIncomingCall(func(l core.MediaLink) {
		inbound = l
		l.OnStream(func(m core.Media) { calleeGot = m })
	})

	share := NewMedia("video")
	out, err := viewer.Call(context.Background(), "host", share, core.CallMetadata{Intent: core.IntentShare})
	if err != nil {
		t.Fatal(err)
	}
	if inbound == nil || inbound.Peer() != "viewer" || inbound.Metadata().Intent != core.IntentShare {
		t.Fatalf("inbound = %+v", inbound)
	}
	if calleeGot != share {
		t.Fatal("callee should receive the caller media")
	}

	var callerGot core.Media
	out.OnStream(func(m core.Media) { callerGot = m })
	hostMedia := NewMedia("audio", "video")
	if err := inbound.Answer(hostMedia); err != nil {
		t.Fatal(err)
	}
	if callerGot != hostMedia {
		t.Fatal("caller should receive the answer media")
	}
	if err := inbound.Answer(nil); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second Answer = %v", err)
	}
	if err := out.Answer(nil); !errors.Is(err, ErrNotInbound) {
		t.Fatalf("outbound Answer = %v", err)
	}

	closes := 0
	out.OnClose(func() { closes++ })
	inbound.OnClose(func() { closes++ })
	inbound.Close()
	out.Close()
	if closes != 2 {
		t.Fatalf("close fired %d times, want 2", closes)
	}
	if host.LinkCount() != 0 || viewer.LinkCount() != 0 {
		t.Fatal("closed links must be untracked")
	}
}

func TestHookBacklogReplays(t *testing.T) {
	n := New()
	host := open(t, n, "host")
	viewer := open(t, n, "viewer")

	// No handler yet: the call and its stream are buffered.
	if _, err := viewer.Call(context.Background(), "host", NewMedia("video"), core.CallMetadata{}); err != nil {
		t.Fatal(err)
	}
	var got core.MediaLink
	host.OnIncomingCall(func(l core.MediaLink) { got = l })
	if got == nil {
		t.Fatal("buffered call not replayed")
	}
	streams := 0
	got.OnStream(func(core.Media) { streams++ })
	if streams != 1 {
		t.Fatalf("streams = %d", streams)
	}
}

func TestDataLink(t *testing.T) {
	n := New()
	host := open(t, n, "host")
	viewer := open(t, n, "viewer")

	var received [][]byte
	var hostSide core.DataLink
	host.OnIncomingData(func(l core.DataLink) {
		hostSide = l
		l.OnData(func(b []byte) { received = append(received, b) })
	})

	dl, err := viewer.Connect(context.Background(), "host")
	if err != nil {
		t.Fatal(err)
	}
	opened := false
	dl.OnOpen(func() { opened = true })
	if !opened {
		t.Fatal("open should be replayed to a late handler")
	}

	payload := []byte("hello")
	if err := dl.Send(payload); err != nil {
		t.Fatal(err)
	}
	payload[0] = 'j'
	if len(received) != 1 || string(received[0]) != "hello" {
		t.Fatalf("received = %q", received)
	}

	closed := false
	dl.OnClose(func() { closed = true })
	hostSide.Close()
	if !closed {
		t.Fatal("remote close must reach the other end")
	}
	if err := dl.Send([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send after close = %v", err)
	}
}

func TestDestroyAndDisconnect(t *testing.T) {
	n := New()
	host := open(t, n, "host")
	viewer := open(t, n, "viewer")

	out, _ := viewer.Call(context.Background(), "host", nil, core.CallMetadata{})
	closed := false
	out.OnClose(func() { closed = true })

	host.Destroy()
	host.Destroy()
	if !closed {
		t.Fatal("destroying the host must close the viewer's call")
	}
	if _, err := host.Call(context.Background(), "viewer", nil, core.CallMetadata{}); !errors.Is(err, core.ErrTransport) {
		t.Fatalf("Call after Destroy = %v", err)
	}

	lost := false
	viewer.OnDisconnected(func() { lost = true })
	if !n.Disconnect("viewer") || !lost {
		t.Fatal("Disconnect should fire the disconnected handler")
	}
	if n.Disconnect("viewer") {
		t.Fatal("second Disconnect must report false")
	}
}

func TestMediaEnd(t *testing.T) {
	m := NewMedia("audio", "video")
	ended := false
	m.OnEnded(func() { ended = true })
	m.End()
	if !ended || !m.Stopped() {
		t.Fatal("End should stop tracks and notify")
	}
}
