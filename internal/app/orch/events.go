package orch

import (
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

type (
	evIncomingCall struct{ link core.MediaLink }
	evIncomingData struct{ link core.DataLink }

	evCallStream struct {
		e     *app.MediaEntry
		media core.Media
	}
	evCallClosed struct{ e *app.MediaEntry }
	evCallError  struct {
		e   *app.MediaEntry
		err error
	}
	// evGraceExpired is the delayed message that ends a call's grace window.
	evGraceExpired struct{ e *app.MediaEntry }

	evRelayClosed struct {
		origin, target domain.PeerID
		link           core.MediaLink
	}
	evRelayError struct {
		origin, target domain.PeerID
		link           core.MediaLink
		err            error
	}

	evDataOpen struct{ e *app.DataEntry }
	evData     struct {
		e       *app.DataEntry
		payload []byte
	}
	evDataClosed struct{ e *app.DataEntry }

	evDisconnected struct{}
	evSessionError struct{ err error }

	command struct {
		run  func() error
		done chan error
	}
)

func (c *Coordinator) post(ev any) {
	c.queue.push(ev)
}

func (c *Coordinator) bindSession() {
	c.session.OnIncomingCall(func(l core.MediaLink) { c.post(evIncomingCall{l}) })
	c.session.OnIncomingData(func(l core.DataLink) { c.post(evIncomingData{l}) })
	c.session.OnDisconnected(func() { c.post(evDisconnected{}) })
	c.session.OnError(func(err error) { c.post(evSessionError{err}) })
}

func (c *Coordinator) watchCall(e *app.MediaEntry) {
	e.Link.OnStream(func(m core.Media) { c.post(evCallStream{e, m}) })
	e.Link.OnClose(func() { c.post(evCallClosed{e}) })
	e.Link.OnError(func(err error) { c.post(evCallError{e, err}) })
}

func (c *Coordinator) watchData(e *app.DataEntry) {
	e.Link.OnOpen(func() { c.post(evDataOpen{e}) })
	e.Link.OnData(func(b []byte) { c.post(evData{e, b}) })
	e.Link.OnClose(func() { c.post(evDataClosed{e}) })
}

func (c *Coordinator) dispatch(ev any) {
	switch ev := ev.(type) {
	case evIncomingCall:
		c.onIncomingCall(ev.link)
	case evIncomingData:
		c.onIncomingData(ev.link)
	case evCallStream:
		c.onCallStream(ev.e, ev.media)
	case evCallClosed:
		c.onCallClosed(ev.e)
	case evCallError:
		c.onCallError(ev.e, ev.err)
	case evGraceExpired:
		c.onGraceExpired(ev.e)
	case evRelayClosed:
		c.reg.Relays.Forget(ev.origin, ev.target, ev.link)
	case evRelayError:
		c.onRelayError(ev)
	case evDataOpen:
		c.onDataOpen(ev.e)
	case evData:
		c.onData(ev.e, ev.payload)
	case evDataClosed:
		c.reg.DropData(ev.e)
	case evDisconnected:
		c.onDisconnected()
	case evSessionError:
		c.onSessionError(ev.err)
	default:
		c.logger.Warn().Type("event", ev).Msg("unknown event")
	}
}
