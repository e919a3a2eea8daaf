package app

import (
	"slices"

	"github.com/dkeye/Stream/internal/domain"
)

// ChatLog is the per-session ordered chat log. Ids already seen are
// rejected, which covers both at-least-once redelivery and self-echo.
type ChatLog struct {
	messages []domain.ChatMessage
	seen     map[string]struct{}
}

func NewChatLog() *ChatLog {
	return &ChatLog{seen: make(map[string]struct{})}
}

// Append adds m unless its id was seen before.
func (l *ChatLog) Append(m domain.ChatMessage) bool {
	if _, dup := l.seen[m.ID]; dup {
		return false
	}
	l.seen[m.ID] = struct{}{}
	l.messages = append(l.messages, m)
	return true
}

func (l *ChatLog) Seen(id string) bool {
	_, ok := l.seen[id]
	return ok
}

func (l *ChatLog) Len() int { return len(l.messages) }

func (l *ChatLog) Messages() []domain.ChatMessage {
	return slices.Clone(l.messages)
}
