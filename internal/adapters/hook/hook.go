// Package hook is a single-handler callback slot shared by the transports.
package hook

import "sync"

// Hook holds one handler. Values fired before a handler is set are kept
// and replayed, in order, once it is. Handlers run under the hook's lock
// and must not fire the same hook.
type Hook[T any] struct {
	mu      sync.Mutex
	fn      func(T)
	backlog []T
}

func (h *Hook[T]) Set(fn func(T)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
	backlog := h.backlog
	h.backlog = nil
	for _, v := range backlog {
		fn(v)
	}
}

func (h *Hook[T]) Fire(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fn == nil {
		h.backlog = append(h.backlog, v)
		return
	}
	h.fn(v)
}
