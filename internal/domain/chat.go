package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const DefaultMaxChatLen = 1000

var (
	ErrEmptyMessage   = errors.New("chat message empty")
	ErrMessageTooLong = errors.New("chat message too long")
)

// ChatMessage is immutable once created. ID is the de-duplication key.
type ChatMessage struct {
	ID           string    `json:"id"`
	StreamID     StreamID  `json:"streamId"`
	SenderPeerID PeerID    `json:"userId"`
	SenderName   string    `json:"username"`
	Text         string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// NormalizeChatText trims text and enforces maxLen runes (0 means DefaultMaxChatLen).
func NormalizeChatText(text string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxChatLen
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxLen {
		return "", ErrMessageTooLong
	}
	return text, nil
}

func NewChatMessage(stream StreamID, sender PeerID, name, text string) ChatMessage {
	return ChatMessage{
		ID:           uuid.NewString(),
		StreamID:     stream,
		SenderPeerID: sender,
		SenderName:   name,
		Text:         text,
		Timestamp:    time.Now().UTC(),
	}
}

// Valid reports whether a message received from the wire is usable.
func (m ChatMessage) Valid() bool {
	return m.ID != "" && m.StreamID != "" && m.SenderPeerID != "" && strings.TrimSpace(m.Text) != ""
}
