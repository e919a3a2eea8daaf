package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateOk:
		return "ok"
	case TrackStateMuted:
		return "muted"
	case TrackStateDelete:
		return "delete"
	}
	return "unknown"
}

// OutTrack is one relayed copy of a remote track, sent on one link. It is
// marked for deletion when that link closes.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

func (ot *OutTrack) State() TrackState { return TrackState(ot.state.Load()) }
func (ot *OutTrack) Mute()             { ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted)) }
func (ot *OutTrack) Unmute()           { ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk)) }
func (ot *OutTrack) Release()          { ot.state.Store(int32(TrackStateDelete)) }

// rtpWriter is the part of *webrtc.TrackLocalStaticRTP the forwarder uses.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
}

type subscriber struct {
	ot *OutTrack
	w  rtpWriter
}

// Forwarder reads one remote track and copies every packet to its
// subscribers. It runs for the lifetime of the link that received the
// track, with or without subscribers.
type Forwarder struct {
	src      *webrtc.TrackRemote
	keyframe func()
	logger   zerolog.Logger

	mu    sync.RWMutex
	subs  []subscriber
	muted bool

	packets atomic.Uint64
}

func newForwarder(src *webrtc.TrackRemote, keyframe func(), logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		src:      src,
		keyframe: keyframe,
		logger:   logger.With().Str("track_id", src.ID()).Str("kind", src.Kind().String()).Logger(),
	}
}

// Subscribe returns a new local track fed by the forwarder.
func (f *Forwarder) Subscribe(streamID string) (*OutTrack, error) {
	tr, err := webrtc.NewTrackLocalStaticRTP(f.src.Codec().RTPCodecCapability, f.src.ID(), streamID)
	if err != nil {
		return nil, err
	}
	ot := &OutTrack{Track: tr}
	f.add(ot, tr)
	if f.src.Kind() == webrtc.RTPCodecTypeVideo && f.keyframe != nil {
		f.keyframe()
	}
	return ot, nil
}

func (f *Forwarder) add(ot *OutTrack, w rtpWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.muted {
		ot.Mute()
	}
	f.subs = append(f.subs, subscriber{ot: ot, w: w})
}

// SetMuted pauses or resumes every subscriber, including later ones. The
// source keeps being read while muted.
func (f *Forwarder) SetMuted(muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = muted
	for _, s := range f.subs {
		if muted {
			s.ot.Mute()
		} else {
			s.ot.Unmute()
		}
	}
}

func (f *Forwarder) Muted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.muted
}

func (f *Forwarder) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Forwarder) Packets() uint64 { return f.packets.Load() }

// loop reads RTP packets from the source track and forwards them.
func (f *Forwarder) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.markAllDelete()
			return
		default:
		}
		pkt, _, err := f.src.ReadRTP()
		if err != nil {
			f.logger.Debug().Err(err).Msg("forwarder read RTP stopped")
			f.markAllDelete()
			return
		}
		f.forward(pkt)
	}
}

func (f *Forwarder) forward(pkt *rtp.Packet) {
	f.packets.Add(1)
	f.mu.RLock()
	snapshot := make([]subscriber, len(f.subs))
	copy(snapshot, f.subs)
	f.mu.RUnlock()

	dirty := false
	for _, s := range snapshot {
		switch s.ot.State() {
		case TrackStateDelete:
			dirty = true
		case TrackStateMuted:
		case TrackStateOk:
			if err := s.w.WriteRTP(pkt); err != nil {
				f.logger.Warn().Err(err).Msg("relay write failed, dropping subscriber")
				s.ot.Release()
				dirty = true
			}
		}
	}
	if dirty {
		f.cleanupDeleted()
	}
}

func (f *Forwarder) cleanupDeleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.subs[:0]
	for _, s := range f.subs {
		if s.ot.State() != TrackStateDelete {
			kept = append(kept, s)
		}
	}
	clear(f.subs[len(kept):])
	f.subs = kept
}

func (f *Forwarder) markAllDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s.ot.Release()
	}
}
