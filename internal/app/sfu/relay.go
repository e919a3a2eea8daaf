package sfu

import (
	"slices"

	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

// Relay carries one viewer's contributed media to every other viewer.
type Relay struct {
	Origin      domain.PeerID
	DisplayName string
	Media       core.Media

	outLinks map[domain.PeerID]*OutLink
}

func NewRelay(origin domain.PeerID, name string, media core.Media) *Relay {
	return &Relay{
		Origin:      origin,
		DisplayName: name,
		Media:       media,
		outLinks:    make(map[domain.PeerID]*OutLink),
	}
}

func (r *Relay) Has(target domain.PeerID) bool {
	ol, ok := r.outLinks[target]
	return ok && ol.GetState() == LinkStateOk
}

// Targets returns recipients in stable order.
func (r *Relay) Targets() []domain.PeerID {
	out := make([]domain.PeerID, 0, len(r.outLinks))
	for t, ol := range r.outLinks {
		if ol.GetState() == LinkStateOk {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func (r *Relay) addOutLink(ol *OutLink) {
	if old, ok := r.outLinks[ol.Target]; ok && old.Link != ol.Link {
		old.close()
	}
	r.outLinks[ol.Target] = ol
}

func (r *Relay) closeAll() int {
	n := 0
	for t, ol := range r.outLinks {
		if ol.close() {
			n++
		}
		delete(r.outLinks, t)
	}
	return n
}
