package presence

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Stream/internal/domain"
	"github.com/rs/zerolog/log"
)

type claim struct {
	owner   string
	expires time.Time
}

// Memory is a single-process Store. Expired claims are treated as free.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	claims map[domain.PeerID]claim
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, claims: make(map[domain.PeerID]claim)}
}

func (m *Memory) live(c claim) bool {
	return m.ttl <= 0 || m.now().Before(c.expires)
}

func (m *Memory) Claim(_ context.Context, id domain.PeerID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[id]; ok && m.live(c) && c.owner != owner {
		return ErrTaken
	}
	m.claims[id] = claim{owner: owner, expires: m.now().Add(m.ttl)}
	log.Debug().Str("module", "presence").Str("peer", string(id)).Msg("claimed")
	return nil
}

func (m *Memory) Refresh(_ context.Context, id domain.PeerID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok || c.owner != owner {
		return ErrNotOwner
	}
	c.expires = m.now().Add(m.ttl)
	m.claims[id] = c
	return nil
}

func (m *Memory) Release(_ context.Context, id domain.PeerID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok || c.owner != owner {
		return ErrNotOwner
	}
	delete(m.claims, id)
	log.Debug().Str("module", "presence").Str("peer", string(id)).Msg("released")
	return nil
}

func (m *Memory) Exists(_ context.Context, id domain.PeerID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	return ok && m.live(c), nil
}
