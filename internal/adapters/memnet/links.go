package memnet

import (
	"errors"
	"sync"

	"github.com/dkeye/Stream/internal/adapters/hook"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
)

var (
	ErrLinkClosed      = errors.New("link closed")
	ErrAlreadyAnswered = errors.New("call already answered")
	ErrNotInbound      = errors.New("only inbound calls can be answered")
	ErrNotOpen         = errors.New("data link not open")
)

type mediaLink struct {
	owner   *Session
	peer    domain.PeerID
	md      core.CallMetadata
	inbound bool
	remote  *mediaLink

	mu       sync.Mutex
	answered bool
	closed   bool

	stream hook.Hook[core.Media]
	closeH hook.Hook[struct{}]
	errH   hook.Hook[error]
}

func (l *mediaLink) Peer() domain.PeerID         { return l.peer }
func (l *mediaLink) Metadata() core.CallMetadata { return l.md }

func (l *mediaLink) Answer(local core.Media) error {
	if !l.inbound {
		return ErrNotInbound
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if l.answered {
		l.mu.Unlock()
		return ErrAlreadyAnswered
	}
	l.answered = true
	l.mu.Unlock()

	if local != nil {
		l.remote.stream.Fire(local)
	}
	return nil
}

func (l *mediaLink) Close() {
	l.shutdown()
	l.remote.shutdown()
}

func (l *mediaLink) shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.owner.untrack(l)
	l.closeH.Fire(struct{}{})
}

func (l *mediaLink) OnStream(fn func(core.Media)) { l.stream.Set(fn) }
func (l *mediaLink) OnClose(fn func())            { l.closeH.Set(func(struct{}) { fn() }) }
func (l *mediaLink) OnError(fn func(error))       { l.errH.Set(fn) }

type dataLink struct {
	owner  *Session
	peer   domain.PeerID
	remote *dataLink

	mu     sync.Mutex
	open   bool
	closed bool

	openH  hook.Hook[struct{}]
	dataH  hook.Hook[[]byte]
	closeH hook.Hook[struct{}]
}

func (l *dataLink) Peer() domain.PeerID { return l.peer }

func (l *dataLink) markOpen() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.open = true
	l.mu.Unlock()
	l.openH.Fire(struct{}{})
}

func (l *dataLink) Send(payload []byte) error {
	l.mu.Lock()
	ok := l.open && !l.closed
	l.mu.Unlock()
	if !ok {
		return ErrNotOpen
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	l.remote.dataH.Fire(buf)
	return nil
}

func (l *dataLink) Close() {
	l.shutdown()
	l.remote.shutdown()
}

func (l *dataLink) shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.open = false
	l.mu.Unlock()
	l.owner.untrack(l)
	l.closeH.Fire(struct{}{})
}

func (l *dataLink) OnOpen(fn func())       { l.openH.Set(func(struct{}) { fn() }) }
func (l *dataLink) OnData(fn func([]byte)) { l.dataH.Set(fn) }
func (l *dataLink) OnClose(fn func())      { l.closeH.Set(func(struct{}) { fn() }) }
