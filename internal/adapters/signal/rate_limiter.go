package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Stream/internal/domain"
)

// RateLimiter admits at most limit messages per peer within any interval.
// Each peer keeps a ring of its last limit admission times; a message is
// admitted once the oldest of them has left the window. A limit of zero
// admits everything.
type RateLimiter struct {
	limit    int
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	peers map[domain.PeerID]*window
}

type window struct {
	stamps  []time.Time
	next    int
	dropped uint64
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		interval: interval,
		now:      time.Now,
		peers:    make(map[domain.PeerID]*window),
	}
}

func (rl *RateLimiter) Allow(id domain.PeerID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.peers[id]
	if !ok {
		w = &window{stamps: make([]time.Time, rl.limit)}
		rl.peers[id] = w
	}
	now := rl.now()
	if oldest := w.stamps[w.next]; !oldest.IsZero() && now.Sub(oldest) < rl.interval {
		w.dropped++
		return false
	}
	w.stamps[w.next] = now
	w.next = (w.next + 1) % len(w.stamps)
	return true
}

// Dropped counts the refused messages of a connected peer.
func (rl *RateLimiter) Dropped(id domain.PeerID) uint64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok := rl.peers[id]; ok {
		return w.dropped
	}
	return 0
}

// Forget drops the state of a disconnected peer.
func (rl *RateLimiter) Forget(id domain.PeerID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.peers, id)
}
