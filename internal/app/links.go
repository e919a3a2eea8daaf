package app

import (
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type LinkState int

const (
	LinkPending LinkState = iota
	LinkAnswered
	LinkOpen
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkPending:
		return "pending"
	case LinkAnswered:
		return "answered"
	case LinkOpen:
		return "open"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

type DataState int

const (
	DataConnecting DataState = iota
	DataOpen
	DataClosed
)

type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// LinkRole says which registry slot a MediaEntry occupies.
type LinkRole int

const (
	RoleClassifying LinkRole = iota
	RolePending
	RoleHostMedia
	RoleViewerShare
	RoleRelayOut
	RoleUpstream
	RoleShareOut
	RoleRelayIn
)

func (r LinkRole) String() string {
	return [...]string{"classifying", "pending", "host-media", "viewer-share", "relay-out", "upstream", "share-out", "relay-in"}[r]
}

// Timer is the part of *time.Timer the registry needs.
type Timer interface {
	Stop() bool
}

type MediaEntry struct {
	Peer  domain.PeerID
	Link  core.MediaLink
	Dir   Direction
	State LinkState
	Role  LinkRole
	Meta  core.CallMetadata
	// Media is the remote stream once the link delivered one.
	Media core.Media
	// Origin is set on relay links: the viewer whose media is carried.
	Origin domain.PeerID
}

func NewMediaEntry(link core.MediaLink, dir Direction, role LinkRole) *MediaEntry {
	return &MediaEntry{
		Peer: link.Peer(),
		Link: link,
		Dir:  dir,
		Role: role,
		Meta: link.Metadata(),
	}
}

// Live reports whether the link counts as established.
func (e *MediaEntry) Live() bool {
	return e.State == LinkAnswered || e.State == LinkOpen
}

func (e *MediaEntry) close() bool {
	if e.State == LinkClosed {
		return false
	}
	e.State = LinkClosed
	e.Link.Close()
	return true
}

type DataEntry struct {
	Peer     domain.PeerID
	Link     core.DataLink
	State    DataState
	Outbound bool
}

func NewDataEntry(link core.DataLink, outbound bool) *DataEntry {
	return &DataEntry{Peer: link.Peer(), Link: link, Outbound: outbound}
}

func (e *DataEntry) close() bool {
	if e.State == DataClosed {
		return false
	}
	e.State = DataClosed
	e.Link.Close()
	return true
}

// ViewerStream is viewer-contributed media held by the host.
type ViewerStream struct {
	Entry       *MediaEntry
	DisplayName string
}
