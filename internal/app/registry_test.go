package app

import (
	"testing"

	"github.com/dkeye/Stream/internal/app/sfu"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type stubMediaLink struct {
	peer   domain.PeerID
	md     core.CallMetadata
	closed int
}

func (l *stubMediaLink) Peer() domain.PeerID         { return l.peer }
func (l *stubMediaLink) Metadata() core.CallMetadata { return l.md }
func (l *stubMediaLink) Answer(core.Media) error     { return nil }
func (l *stubMediaLink) Close()                      { l.closed++ }
func (l *stubMediaLink) OnStream(func(core.Media))   {}
func (l *stubMediaLink) OnClose(func())              {}
func (l *stubMediaLink) OnError(func(error))         {}

type stubDataLink struct {
	peer   domain.PeerID
	closed int
}

func (l *stubDataLink) Peer() domain.PeerID { return l.peer }
func (l *stubDataLink) Send([]byte) error   { return nil }
func (l *stubDataLink) Close()              { l.closed++ }
func (l *stubDataLink) OnOpen(func())       {}
func (l *stubDataLink) OnData(func([]byte)) {}
func (l *stubDataLink) OnClose(func())      {}

type stubTimer struct{ stopped bool }

func (t *stubTimer) Stop() bool { t.stopped = true; return true }

func answered(peer domain.PeerID) *MediaEntry {
	e := NewMediaEntry(&stubMediaLink{peer: peer}, Inbound, RoleHostMedia)
	e.State = LinkAnswered
	return e
}

func TestViewerCountRecomputed(t *testing.T) {
	r := NewRegistry("stream-host-x")
	entries := []*MediaEntry{answered("a"), answered("b"), answered("c")}
	for _, e := range entries {
		r.AddViewer(e)
	}
	if got := r.ViewerCount(); got != 3 {
		t.Fatalf("ViewerCount = %d, want 3", got)
	}

	// A link that went away without an event no longer counts.
	entries[1].State = LinkClosed
	if got := r.ViewerCount(); got != 2 {
		t.Fatalf("ViewerCount = %d, want 2", got)
	}

	if !r.RemoveViewer(entries[0]) {
		t.Fatal("RemoveViewer should remove current entry")
	}
	if r.RemoveViewer(entries[0]) {
		t.Fatal("second RemoveViewer must be a no-op")
	}
	if got := r.ViewerCount(); got != 1 {
		t.Fatalf("ViewerCount = %d, want 1", got)
	}
}

func TestAddViewerReplacesSamePeer(t *testing.T) {
	r := NewRegistry("h")
	first := answered("a")
	second := answered("a")
	r.AddViewer(first)
	r.AddViewer(second)

	if first.State != LinkClosed || first.Link.(*stubMediaLink).closed != 1 {
		t.Fatal("replaced link must be closed")
	}
	if r.RemoveViewer(first) {
		t.Fatal("stale entry must not remove the replacement")
	}
	if r.ViewerCount() != 1 {
		t.Fatalf("ViewerCount = %d", r.ViewerCount())
	}
}

func TestPendingQueue(t *testing.T) {
	r := NewRegistry("h")
	a := NewMediaEntry(&stubMediaLink{peer: "a"}, Inbound, RoleClassifying)
	b := NewMediaEntry(&stubMediaLink{peer: "b"}, Inbound, RoleClassifying)
	c := NewMediaEntry(&stubMediaLink{peer: "c"}, Inbound, RoleClassifying)
	r.EnqueuePending(a)
	r.EnqueuePending(b)
	r.EnqueuePending(c)

	if !r.RemovePending(b) || r.RemovePending(b) {
		t.Fatal("RemovePending should succeed exactly once")
	}
	got := r.DrainPending()
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("drain order = %v", got)
	}
	if r.Pending() != 0 || len(r.DrainPending()) != 0 {
		t.Fatal("queue must be empty after drain")
	}
}

func TestDropDataForgetsName(t *testing.T) {
	r := NewRegistry("h")
	e := NewDataEntry(&stubDataLink{peer: "a"}, false)
	r.AddData(e)
	e.State = DataOpen
	r.SetName("a", "Alice")

	if open := r.OpenData(); len(open) != 1 || open[0] != e {
		t.Fatalf("OpenData = %v", open)
	}
	if !r.DropData(e) {
		t.Fatal("DropData should remove current entry")
	}
	if _, ok := r.Name("a"); ok {
		t.Fatal("display name must be dropped with its link")
	}
	if e.Link.(*stubDataLink).closed != 1 {
		t.Fatal("dropped link must be closed once")
	}
	if r.DropData(e) {
		t.Fatal("second DropData must be a no-op")
	}
}

func TestShareUsesCachedName(t *testing.T) {
	r := NewRegistry("h")
	r.SetName("a", "Alice")
	vs := r.AddShare(NewMediaEntry(&stubMediaLink{peer: "a"}, Inbound, RoleClassifying))
	if vs.DisplayName != "Alice" {
		t.Fatalf("DisplayName = %q", vs.DisplayName)
	}
	vs2 := r.AddShare(NewMediaEntry(&stubMediaLink{peer: "b", md: core.CallMetadata{DisplayName: "Bob"}}, Inbound, RoleClassifying))
	if vs2.DisplayName != "Bob" {
		t.Fatalf("DisplayName = %q", vs2.DisplayName)
	}
	r.SetName("b", "Robert")
	if vs2.DisplayName != "Robert" {
		t.Fatal("late hello should rename the viewer stream")
	}
}

func TestLateHelloRenamesRelay(t *testing.T) {
	r := NewRegistry("h")
	r.Relays.StartRelay("b", "Bob", nil)
	r.SetName("b", "Robert")
	rel, ok := r.Relays.Relay("b")
	if !ok || rel.DisplayName != "Robert" {
		t.Fatalf("relay = %+v", rel)
	}
	if r.Relays.Rename("nobody", "x") {
		t.Fatal("rename of a missing relay must report false")
	}
}

func TestCloseAllIsIdempotent(t *testing.T) {
	r := NewRegistry("h")
	timer := &stubTimer{}
	cls := NewMediaEntry(&stubMediaLink{peer: "c"}, Inbound, RoleClassifying)
	r.StartClassify(cls, timer)
	r.EnqueuePending(NewMediaEntry(&stubMediaLink{peer: "p"}, Inbound, RoleClassifying))
	r.AddViewer(answered("v"))
	r.AddShare(NewMediaEntry(&stubMediaLink{peer: "s"}, Inbound, RoleClassifying))
	r.AddData(NewDataEntry(&stubDataLink{peer: "v"}, false))
	r.Relays.StartRelay("s", "S", nil)
	r.Relays.Fanout("s", []domain.PeerID{"v"}, func(target domain.PeerID, _ *sfu.Relay) (core.MediaLink, error) {
		return &stubMediaLink{peer: target}, nil
	})

	if r.Len() != 6 {
		t.Fatalf("Len = %d, want 6", r.Len())
	}
	if n := r.CloseAll(); n != 6 {
		t.Fatalf("CloseAll closed %d, want 6", n)
	}
	if !timer.stopped {
		t.Fatal("grace timer must be cancelled")
	}
	if r.Len() != 0 {
		t.Fatalf("Len after CloseAll = %d", r.Len())
	}
	if n := r.CloseAll(); n != 0 || r.Len() != 0 {
		t.Fatalf("second CloseAll = %d", n)
	}
}
