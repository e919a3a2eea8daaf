package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Stream/internal/domain"
)

type DataMessageType string

const (
	MsgHello DataMessageType = "hello"
	MsgChat  DataMessageType = "chat"
)

var ErrBadDataMessage = errors.New("bad data message")

// DataMessage is the envelope exchanged over a DataLink.
type DataMessage struct {
	Type    DataMessageType     `json:"type"`
	Name    string              `json:"name,omitempty"`
	Message *domain.ChatMessage `json:"message,omitempty"`
}

func HelloMessage(name string) DataMessage {
	return DataMessage{Type: MsgHello, Name: name}
}

func ChatEnvelope(m domain.ChatMessage) DataMessage {
	return DataMessage{Type: MsgChat, Message: &m}
}

func EncodeDataMessage(m DataMessage) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeDataMessage(b []byte) (DataMessage, error) {
	var m DataMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return DataMessage{}, fmt.Errorf("%w: %v", ErrBadDataMessage, err)
	}
	switch m.Type {
	case MsgHello:
	case MsgChat:
		if m.Message == nil || !m.Message.Valid() {
			return DataMessage{}, fmt.Errorf("%w: invalid chat payload", ErrBadDataMessage)
		}
	default:
		return DataMessage{}, fmt.Errorf("%w: unknown type %q", ErrBadDataMessage, m.Type)
	}
	return m, nil
}
