// Package wire is the broker envelope shared by the broker and its clients.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type Type string

const (
	TypeOpen      Type = "open"
	TypeError     Type = "error"
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypeLeave     Type = "leave"
	TypeHeartbeat Type = "heartbeat"
)

// Error codes carried in Message.Error.
const (
	ErrUnavailableID   = "unavailable-id"
	ErrPeerUnavailable = "peer-unavailable"
	ErrBadMessage      = "bad-message"
	ErrRateLimited     = "rate-limited"
)

var ErrInvalid = errors.New("invalid broker message")

// Message is one websocket frame. Src is stamped by the broker.
type Message struct {
	Type    Type            `json:"type"`
	Src     domain.PeerID   `json:"src,omitempty"`
	Dst     domain.PeerID   `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// LinkKind says which link an offer sets up.
type LinkKind string

const (
	LinkMedia LinkKind = "media"
	LinkData  LinkKind = "data"
)

type SDPPayload struct {
	ConnectionID string            `json:"connectionId"`
	Kind         LinkKind          `json:"kind"`
	SDP          string            `json:"sdp"`
	Metadata     core.CallMetadata `json:"metadata"`
}

type CandidatePayload struct {
	ConnectionID     string  `json:"connectionId"`
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type LeavePayload struct {
	ConnectionID string `json:"connectionId"`
}

// New builds a message for dst with payload marshalled as JSON.
func New(t Type, dst domain.PeerID, payload any) (Message, error) {
	m := Message{Type: t, Dst: dst}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		m.Payload = b
	}
	return m, nil
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a frame and checks that relayed types name a destination.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch m.Type {
	case TypeOpen, TypeError, TypeHeartbeat:
	case TypeOffer, TypeAnswer, TypeCandidate, TypeLeave:
		if m.Dst == "" && m.Src == "" {
			return Message{}, fmt.Errorf("%w: %s without peer", ErrInvalid, m.Type)
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrInvalid, m.Type)
	}
	return m, nil
}

// Forwarded reports whether the broker relays m to m.Dst.
func (m Message) Forwarded() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeLeave:
		return true
	}
	return false
}

// Into unmarshals the payload into v.
func (m Message) Into(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrInvalid, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ErrorMessage reports code to a client. Src names the peer the error is
// about, if any.
func ErrorMessage(code string, about domain.PeerID, payload json.RawMessage) Message {
	return Message{Type: TypeError, Error: code, Src: about, Payload: payload}
}
