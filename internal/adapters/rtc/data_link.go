package rtc

import (
	"sync"

	"github.com/dkeye/Stream/internal/adapters/hook"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/pion/webrtc/v4"
)

const dataLabel = "data"

type dataLink struct {
	*peer

	mu   sync.Mutex
	dc   *webrtc.DataChannel
	open bool

	openH hook.Hook[struct{}]
	dataH hook.Hook[[]byte]
}

func newDataLink(s *Session, id string, remote domain.PeerID, pc *webrtc.PeerConnection) *dataLink {
	l := &dataLink{peer: newPeer(s, id, remote, pc)}
	l.whenShutdown(func() {
		l.mu.Lock()
		dc := l.dc
		l.open = false
		l.mu.Unlock()
		if dc != nil {
			_ = dc.Close()
		}
	})
	return l
}

func (l *dataLink) bind(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()
	dc.OnOpen(func() {
		if l.isClosed() {
			return
		}
		l.mu.Lock()
		l.open = true
		l.mu.Unlock()
		l.openH.Fire(struct{}{})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.dataH.Fire(msg.Data)
	})
	dc.OnClose(func() { go l.shutdown(false) })
}

func (l *dataLink) Peer() domain.PeerID { return l.remote }

func (l *dataLink) Send(payload []byte) error {
	l.mu.Lock()
	dc, ok := l.dc, l.open
	l.mu.Unlock()
	if !ok || dc == nil {
		return ErrNotOpen
	}
	return dc.Send(payload)
}

func (l *dataLink) Close() { l.shutdown(true) }

func (l *dataLink) OnOpen(fn func())       { l.openH.Set(func(struct{}) { fn() }) }
func (l *dataLink) OnData(fn func([]byte)) { l.dataH.Set(fn) }
func (l *dataLink) OnClose(fn func())      { l.closeH.Set(func(struct{}) { fn() }) }
