package sfu

import (
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type LinkState int32

const (
	LinkStateOk LinkState = iota
	LinkStateDelete
)

// OutLink is a single relay call from the host to one recipient.
type OutLink struct {
	Target domain.PeerID
	Link   core.MediaLink
	state  LinkState
}

func NewOutLink(target domain.PeerID, link core.MediaLink) *OutLink {
	return &OutLink{Target: target, Link: link}
}

func (ol *OutLink) GetState() LinkState { return ol.state }

func (ol *OutLink) MarkDelete() { ol.state = LinkStateDelete }

// close marks the link deleted and closes the handle once.
func (ol *OutLink) close() bool {
	if ol.state == LinkStateDelete {
		return false
	}
	ol.MarkDelete()
	ol.Link.Close()
	return true
}
