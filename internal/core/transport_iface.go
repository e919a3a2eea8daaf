package core

import (
	"context"

	"github.com/dkeye/Stream/internal/domain"
)

type CallIntent string

const (
	IntentUnknown CallIntent = ""
	// IntentReceive: the caller only wants the host's media.
	IntentReceive CallIntent = "receive"
	// IntentShare: the caller attaches its own media.
	IntentShare CallIntent = "share"
	// IntentRelay: host to viewer call carrying another viewer's media.
	IntentRelay CallIntent = "relay"
)

// CallMetadata travels with a call offer.
type CallMetadata struct {
	Intent      CallIntent    `json:"intent,omitempty"`
	Origin      domain.PeerID `json:"origin,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
}

// Transport opens sessions under a unique identity.
type Transport interface {
	// Open fails with ErrIdentityTaken when id is already in use.
	Open(ctx context.Context, id domain.PeerID) (TransportSession, error)
}

// TransportSession is a single open identity on the transport.
// Handlers may be invoked from any goroutine and must not block.
type TransportSession interface {
	ID() domain.PeerID
	// Call starts an outbound media link. local may be nil to receive only.
	// Handshake failures are reported through the link's OnError/OnClose.
	Call(ctx context.Context, remote domain.PeerID, local Media, md CallMetadata) (MediaLink, error)
	// Connect starts an outbound data link.
	Connect(ctx context.Context, remote domain.PeerID) (DataLink, error)

	OnIncomingCall(func(MediaLink))
	OnIncomingData(func(DataLink))
	// OnDisconnected fires when the session loses the transport.
	OnDisconnected(func())
	// OnError reports session scoped failures (already classified).
	OnError(func(error))

	Destroy()
}

// MediaLink is a point to point call.
type MediaLink interface {
	Peer() domain.PeerID
	Metadata() CallMetadata
	// Answer accepts an inbound call. A nil local answers with a
	// non-transmitting placeholder.
	Answer(local Media) error
	Close()

	OnStream(func(Media))
	OnClose(func())
	OnError(func(error))
}

// DataLink is an ordered message channel between two peers.
type DataLink interface {
	Peer() domain.PeerID
	Send(payload []byte) error
	Close()

	OnOpen(func())
	OnData(func([]byte))
	OnClose(func())
}
