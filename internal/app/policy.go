package app

import "github.com/dkeye/Stream/internal/domain"

type SendFailureAction int

const (
	NoAction SendFailureAction = iota
	CloseLink
)

// Policy decides what happens to a DataLink that failed a fan-out send.
type Policy interface {
	OnSendFailure(peer domain.PeerID, err error) SendFailureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(domain.PeerID, error) SendFailureAction {
	return CloseLink
}
