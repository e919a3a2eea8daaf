package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// Participant is the local end of a session.
type Participant struct {
	ID          PeerID `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
}

// NormalizeDisplayName trims and validates a user supplied name.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}

func NewParticipant(role Role, stream StreamID, name string) (*Participant, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	n, err := NormalizeDisplayName(name)
	if err != nil {
		return nil, err
	}
	return &Participant{ID: PeerIDFor(role, stream), Role: role, DisplayName: n}, nil
}

func (p *Participant) SetDisplayName(name string) error {
	n, err := NormalizeDisplayName(name)
	if err != nil {
		return err
	}
	p.DisplayName = n
	return nil
}
