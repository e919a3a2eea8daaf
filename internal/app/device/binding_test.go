package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Stream/internal/adapters/memnet"
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type fakeSource struct {
	cameraErr error
	screenErr error
	acquired  []*memnet.Media
}

func (s *fakeSource) CameraStream(context.Context) (core.Media, error) {
	if s.cameraErr != nil {
		return nil, s.cameraErr
	}
	m := memnet.NewMedia("audio", "video")
	s.acquired = append(s.acquired, m)
	return m, nil
}

func (s *fakeSource) ScreenStream(context.Context) (core.Media, error) {
	if s.screenErr != nil {
		return nil, s.screenErr
	}
	m := memnet.NewMedia("video")
	s.acquired = append(s.acquired, m)
	return m, nil
}

type fakeFeed struct {
	live  []core.Media
	ended int
}

func (f *fakeFeed) GoLive(m core.Media) error {
	f.live = append(f.live, m)
	return nil
}

func (f *fakeFeed) EndBroadcast() error {
	f.ended++
	return nil
}

func TestStartThenGoLive(t *testing.T) {
	src, feed := &fakeSource{}, &fakeFeed{}
	b := New(src, feed)

	if err := b.GoLive(); !errors.Is(err, ErrNoMedia) {
		t.Fatalf("GoLive without capture = %v", err)
	}
	m, err := b.StartCamera(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.live) != 0 {
		t.Fatal("starting a capture must not go live by itself")
	}
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}
	if !b.Live() || len(feed.live) != 1 || feed.live[0] != m {
		t.Fatalf("feed = %+v", feed.live)
	}
}

func TestReplaceStopsPreviousCapture(t *testing.T) {
	src, feed := &fakeSource{}, &fakeFeed{}
	b := New(src, feed)
	if _, err := b.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}
	screen, err := b.StartScreen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !src.acquired[0].Stopped() {
		t.Fatal("previous capture must be stopped")
	}
	if src.acquired[1].Stopped() {
		t.Fatal("new capture must stay running")
	}
	if len(feed.live) != 2 || feed.live[1] != screen {
		t.Fatal("live binding must push the replacement media")
	}
	if b.Active() != screen {
		t.Fatal("Active must be the new capture")
	}
}

func TestAcquisitionFailureKeepsBroadcast(t *testing.T) {
	src, feed := &fakeSource{}, &fakeFeed{}
	b := New(src, feed)
	cam, err := b.StartCamera(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}

	src.screenErr = core.ErrUserCancelled
	_, err = b.StartScreen(context.Background())
	if !errors.Is(err, core.ErrMediaAcquisition) || !errors.Is(err, core.ErrUserCancelled) {
		t.Fatalf("StartScreen = %v", err)
	}
	if src.acquired[0].Stopped() || b.Active() != cam || !b.Live() {
		t.Fatal("failed acquisition must leave the broadcast untouched")
	}
	if len(feed.live) != 1 || feed.ended != 0 {
		t.Fatalf("feed calls = %d live, %d ended", len(feed.live), feed.ended)
	}
}

func TestStopReleasesTracks(t *testing.T) {
	src, feed := &fakeSource{}, &fakeFeed{}
	b := New(src, feed)
	if _, err := b.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	if !src.acquired[0].Stopped() || b.Active() != nil || b.Live() {
		t.Fatal("Stop must release the capture")
	}
	if feed.ended != 1 {
		t.Fatalf("EndBroadcast calls = %d", feed.ended)
	}
	if err := b.Stop(); err != nil || feed.ended != 1 {
		t.Fatal("second Stop is a no-op")
	}
}

func TestCaptureEndedOutside(t *testing.T) {
	src, feed := &fakeSource{}, &fakeFeed{}
	b := New(src, feed)
	first, _ := b.StartScreen(context.Background())
	second, _ := b.StartScreen(context.Background())
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}

	// A replaced capture ending later is ignored.
	first.(*memnet.Media).End()
	if b.Active() != second || feed.ended != 0 {
		t.Fatal("stale end notification must be ignored")
	}

	second.(*memnet.Media).End()
	if b.Active() != nil || b.Live() || feed.ended != 1 {
		t.Fatal("ended capture must end the broadcast")
	}
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"camera": SourceCamera, "screen": SourceScreen} {
		got, err := ParseSource(in)
		if err != nil || got != want {
			t.Fatalf("ParseSource(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSource("mic"); err == nil {
		t.Fatal("expected error")
	}
}

func TestBindingDrivesCoordinator(t *testing.T) {
	net := memnet.New()
	host, err := orch.Connect(context.Background(), net, orch.Config{Role: domain.RoleHost, StreamID: "cam1", DisplayName: "Host"})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Teardown()
	viewer, err := orch.Connect(context.Background(), net, orch.Config{Role: domain.RoleViewer, StreamID: "cam1", DisplayName: "V"})
	if err != nil {
		t.Fatal(err)
	}
	defer viewer.Teardown()

	b := New(&fakeSource{}, host)
	m, err := b.StartCamera(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}
	if err := viewer.JoinAsViewer(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for viewer.State().RemoteMedia != m {
		if time.Now().After(deadline) {
			t.Fatal("viewer never received the capture")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	if host.State().Live {
		t.Fatal("host still live after Stop")
	}
}

// endedMedia reports its end as soon as a callback is registered.
type endedMedia struct {
	*memnet.Media
}

func (m endedMedia) OnEnded(fn func()) { fn() }

type endedSource struct{ fakeSource }

func (s *endedSource) ScreenStream(context.Context) (core.Media, error) {
	m := memnet.NewMedia("video")
	s.acquired = append(s.acquired, m)
	return endedMedia{m}, nil
}

func TestStartWithAlreadyEndedCapture(t *testing.T) {
	src, feed := &endedSource{}, &fakeFeed{}
	b := New(src, feed)

	done := make(chan error, 1)
	go func() {
		_, err := b.StartScreen(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartScreen blocked on an ended capture")
	}
	if b.Active() != nil || !src.acquired[0].Stopped() {
		t.Fatal("ended capture must be released")
	}
	if _, err := b.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.Active() == nil {
		t.Fatal("binding must stay usable")
	}
}

func TestToggleTracks(t *testing.T) {
	src, feed := &fakeSource{}, &fakeFeed{}
	b := New(src, feed)
	if _, err := b.Toggle("video"); !errors.Is(err, ErrNoMedia) {
		t.Fatalf("Toggle without capture = %v", err)
	}
	if _, err := b.StartCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.GoLive(); err != nil {
		t.Fatal(err)
	}
	if !b.Enabled("video") || !b.Enabled("audio") {
		t.Fatal("new capture starts enabled")
	}

	on, err := b.Toggle("video")
	if err != nil || on {
		t.Fatalf("Toggle(video) = %v, %v", on, err)
	}
	tracks := src.acquired[0].Tracks()
	for _, tr := range tracks {
		want := tr.Kind() != "video"
		if got := tr.(core.Switchable).Enabled(); got != want {
			t.Fatalf("%s enabled = %v, want %v", tr.Kind(), got, want)
		}
	}
	if src.acquired[0].Stopped() || !b.Live() || feed.ended != 0 {
		t.Fatal("disabling a track must not release the capture")
	}

	if on, err := b.Toggle("video"); err != nil || !on {
		t.Fatalf("second Toggle(video) = %v, %v", on, err)
	}
	if err := b.SetEnabled("audio", false); err != nil || b.Enabled("audio") {
		t.Fatalf("SetEnabled(audio) = %v", err)
	}

	if _, err := b.StartScreen(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.SetEnabled("audio", true); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("screen capture has no audio, got %v", err)
	}
}
