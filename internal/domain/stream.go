// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxStreamIDLen = 64
	MaxPeerIDLen   = 128
	hostPrefix     = "stream-host-"
	viewerPrefix   = "viewer-"
	viewerSuffix   = 9
)

var (
	ErrStreamIDEmpty   = errors.New("stream id empty")
	ErrStreamIDTooLong = errors.New("stream id too long")
	ErrStreamIDInvalid = errors.New("stream id has invalid characters")
	ErrPeerIDInvalid   = errors.New("invalid peer id")
	ErrRoleInvalid     = errors.New("unknown role")
)

type StreamID string

// PeerID is the transport identity of one participant.
type PeerID string

type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleHost:
		return RoleHost, nil
	case RoleViewer:
		return RoleViewer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrRoleInvalid, s)
}

func (r Role) Validate() error {
	if r != RoleHost && r != RoleViewer {
		return fmt.Errorf("%w: %q", ErrRoleInvalid, string(r))
	}
	return nil
}

func idChars(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (id StreamID) Validate() error {
	if len(id) == 0 {
		return ErrStreamIDEmpty
	}
	if len(id) > MaxStreamIDLen {
		return ErrStreamIDTooLong
	}
	if !idChars(string(id)) {
		return ErrStreamIDInvalid
	}
	return nil
}

// Validate checks a peer id presented to the broker.
func (p PeerID) Validate() error {
	if len(p) == 0 || len(p) > MaxPeerIDLen || !idChars(string(p)) {
		return ErrPeerIDInvalid
	}
	return nil
}

// HostPeerID is deterministic so that transport identity uniqueness
// allows at most one host per stream.
func HostPeerID(id StreamID) PeerID {
	return PeerID(hostPrefix + string(id))
}

func NewViewerPeerID(id StreamID) PeerID {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return PeerID(viewerPrefix + string(id) + "-" + raw[:viewerSuffix])
}

// PeerIDFor derives the identity a participant opens its session with.
func PeerIDFor(role Role, id StreamID) PeerID {
	if role == RoleHost {
		return HostPeerID(id)
	}
	return NewViewerPeerID(id)
}

func (p PeerID) IsHostOf(id StreamID) bool {
	return p == HostPeerID(id)
}
