package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType tags every websocket frame exchanged with a chat client.
type MessageType string

const (
	TypeUserMessage    MessageType = "user_message"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeErrorEvent     MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope carries just enough to dispatch on the concrete message type.
type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage is one chat utterance from the client.
type UserMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
}

// AssistantReply is the assistant's answer to one turn.
type AssistantReply struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	Outcome   string      `json:"outcome,omitempty"`
}

// ErrorEvent reports a per-connection failure to the client.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

// ParseClientMessage validates one inbound frame.
func ParseClientMessage(raw []byte) (UserMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return UserMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return UserMessage{}, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return UserMessage{}, errors.New("invalid user_message: empty text")
		}
		return msg, nil
	default:
		return UserMessage{}, ErrUnsupportedType
	}
}
