// Package presence records which peer ids are currently claimed on the
// broker.
package presence

import (
	"context"
	"errors"

	"github.com/dkeye/Stream/internal/domain"
)

var (
	ErrTaken    = errors.New("peer id already claimed")
	ErrNotOwner = errors.New("peer id claimed by another connection")
)

// Store is shared by every broker connection. owner identifies the
// connection holding the claim.
type Store interface {
	Claim(ctx context.Context, id domain.PeerID, owner string) error
	// Refresh extends the claim's TTL.
	Refresh(ctx context.Context, id domain.PeerID, owner string) error
	// Release drops the claim if owner still holds it.
	Release(ctx context.Context, id domain.PeerID, owner string) error
	Exists(ctx context.Context, id domain.PeerID) (bool, error)
}
