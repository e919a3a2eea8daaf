package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Stream/internal/domain"
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindIdentityTaken
	KindPeerUnreachable
	KindTransport
	KindMediaAcquisition
	KindRelayFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindIdentityTaken:
		return "IdentityTaken"
	case KindPeerUnreachable:
		return "PeerUnreachable"
	case KindTransport:
		return "TransportError"
	case KindMediaAcquisition:
		return "MediaAcquisitionError"
	case KindRelayFailure:
		return "RelayFailure"
	}
	return "Unknown"
}

// Error is a classified failure surfaced to callers.
type Error struct {
	Kind ErrorKind
	Op   string
	Peer domain.PeerID
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Peer != "" {
		msg += " (" + string(e.Peer) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels, so errors.Is(err, ErrPeerUnreachable) works
// for any *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Peer == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrIdentityTaken    = &Error{Kind: KindIdentityTaken}
	ErrPeerUnreachable  = &Error{Kind: KindPeerUnreachable}
	ErrTransport        = &Error{Kind: KindTransport}
	ErrMediaAcquisition = &Error{Kind: KindMediaAcquisition}
	ErrRelayFailure     = &Error{Kind: KindRelayFailure}
)

// Media acquisition reasons, wrapped in a KindMediaAcquisition error.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrUserCancelled     = errors.New("user cancelled")
)

func NewError(kind ErrorKind, op string, peer domain.PeerID, err error) *Error {
	return &Error{Kind: kind, Op: op, Peer: peer, Err: err}
}

// Classify keeps an existing classification or wraps err as kind.
func Classify(kind ErrorKind, op string, peer domain.PeerID, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return NewError(kind, op, peer, err)
}

func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Fatal reports whether the session cannot continue after err.
func Fatal(err error) bool {
	return KindOf(err) == KindIdentityTaken
}

// UserMessage renders err as an actionable message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindIdentityTaken:
		return "Stream is already being hosted"
	case KindPeerUnreachable:
		return "Stream not found or host is offline"
	case KindTransport:
		return "Connection error, please try again"
	case KindMediaAcquisition:
		switch {
		case errors.Is(err, ErrPermissionDenied):
			return "Permission to use the device was denied"
		case errors.Is(err, ErrUserCancelled):
			return "Screen sharing was cancelled"
		default:
			return "Camera or microphone is not available"
		}
	case KindRelayFailure:
		return "Could not relay a viewer stream"
	}
	return fmt.Sprintf("Unexpected error: %v", err)
}
