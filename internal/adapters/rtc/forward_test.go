package rtc

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type recordWriter struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (w *recordWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.seqs = append(w.seqs, p.SequenceNumber)
	return nil
}

func (w *recordWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seqs)
}

func TestOutTrackStates(t *testing.T) {
	ot := &OutTrack{}
	if ot.State() != TrackStateOk {
		t.Fatalf("initial state = %v", ot.State())
	}
	ot.Mute()
	if ot.State() != TrackStateMuted {
		t.Fatalf("muted state = %v", ot.State())
	}
	ot.Unmute()
	if ot.State() != TrackStateOk {
		t.Fatalf("unmuted state = %v", ot.State())
	}
	ot.Release()
	ot.Unmute()
	if ot.State() != TrackStateDelete {
		t.Fatalf("released track came back: %v", ot.State())
	}
}

func TestForwarderFanout(t *testing.T) {
	f := &Forwarder{logger: zerolog.Nop()}
	ok, muted, broken := &recordWriter{}, &recordWriter{}, &recordWriter{err: errors.New("closed pipe")}
	okTrack, mutedTrack, brokenTrack := &OutTrack{}, &OutTrack{}, &OutTrack{}
	mutedTrack.Mute()
	f.add(okTrack, ok)
	f.add(mutedTrack, muted)
	f.add(brokenTrack, broken)

	for i := range 3 {
		f.forward(&rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}})
	}

	if ok.count() != 3 {
		t.Fatalf("ok subscriber got %d packets", ok.count())
	}
	if muted.count() != 0 {
		t.Fatalf("muted subscriber got %d packets", muted.count())
	}
	if brokenTrack.State() != TrackStateDelete {
		t.Fatal("failing subscriber not marked for deletion")
	}
	if f.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", f.Subscribers())
	}
	if f.Packets() != 3 {
		t.Fatalf("packets = %d", f.Packets())
	}
}

func TestForwarderDropsReleasedSubscriber(t *testing.T) {
	f := &Forwarder{logger: zerolog.Nop()}
	w := &recordWriter{}
	ot := &OutTrack{}
	f.add(ot, w)

	f.forward(&rtp.Packet{})
	ot.Release()
	f.forward(&rtp.Packet{})

	if w.count() != 1 {
		t.Fatalf("released subscriber got %d packets", w.count())
	}
	if f.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", f.Subscribers())
	}
}

func TestForwarderMarkAllDelete(t *testing.T) {
	f := &Forwarder{logger: zerolog.Nop()}
	a, b := &OutTrack{}, &OutTrack{}
	f.add(a, &recordWriter{})
	f.add(b, &recordWriter{})
	f.markAllDelete()
	if a.State() != TrackStateDelete || b.State() != TrackStateDelete {
		t.Fatal("subscribers not released when the source ends")
	}
}

func TestForwarderMutePausesRelay(t *testing.T) {
	f := &Forwarder{logger: zerolog.Nop()}
	early := &recordWriter{}
	earlyTrack := &OutTrack{}
	f.add(earlyTrack, early)

	f.SetMuted(true)
	late := &recordWriter{}
	lateTrack := &OutTrack{}
	f.add(lateTrack, late)
	f.forward(&rtp.Packet{})
	if early.count() != 0 || late.count() != 0 {
		t.Fatal("muted forwarder must not relay")
	}
	if lateTrack.State() != TrackStateMuted {
		t.Fatalf("late subscriber state = %v", lateTrack.State())
	}

	rt := &RemoteTrack{fwd: f}
	if rt.Enabled() {
		t.Fatal("muted forwarder reports enabled track")
	}
	rt.SetEnabled(true)
	f.forward(&rtp.Packet{})
	if early.count() != 1 || late.count() != 1 {
		t.Fatalf("resumed relay counts = %d, %d", early.count(), late.count())
	}
	if f.Packets() != 2 {
		t.Fatalf("source must keep being read, packets = %d", f.Packets())
	}

	earlyTrack.Release()
	f.SetMuted(false)
	if earlyTrack.State() != TrackStateDelete {
		t.Fatal("unmute must not revive a released subscriber")
	}
}
