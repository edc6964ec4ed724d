// Package protocol defines the JSON frames of the developer chat websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientMessage MessageType = "client_message"
	TypeBotMessage    MessageType = "bot_message"
	TypeTurnDone      MessageType = "turn_done"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage is one user message. Text is a pointer so an absent field
// can be told apart from an empty one.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	ClientID  string      `json:"client_id,omitempty"`
	Text      *string     `json:"text,omitempty"`
	MediaRef  string      `json:"media_ref,omitempty"`
	MediaType string      `json:"media_type,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

// Payload converts the frame into transport-neutral fields for identity.
func (m ClientMessage) Payload(identity string) chat.Payload {
	p := chat.Payload{
		ID:        m.ClientID,
		Identity:  identity,
		Channel:   chat.ChannelWS,
		MediaRef:  m.MediaRef,
		MediaType: m.MediaType,
	}
	if m.Text != nil {
		p.Text = *m.Text
		p.HasText = true
	}
	return p
}

type BotMessage struct {
	Type     MessageType `json:"type"`
	Identity string      `json:"identity"`
	Seq      int         `json:"seq"`
	Text     string      `json:"text"`
	TSMs     int64       `json:"ts_ms"`
}

// TurnDone closes the server's handling of one client message.
type TurnDone struct {
	Type      MessageType `json:"type"`
	ClientID  string      `json:"client_id,omitempty"`
	Outcome   string      `json:"outcome"`
	State     string      `json:"state,omitempty"`
	Replies   int         `json:"replies"`
	LatencyMs int64       `json:"latency_ms"`
}

type SystemEvent struct {
	Type     MessageType `json:"type"`
	Identity string      `json:"identity"`
	Code     string      `json:"code"`
	Detail   string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	ClientID  string      `json:"client_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientMessage:
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return ClientMessage{}, err
		}
		if msg.Text == nil && strings.TrimSpace(msg.MediaRef) == "" {
			return ClientMessage{}, errors.New("invalid client_message: text or media_ref required")
		}
		return msg, nil
	default:
		return ClientMessage{}, ErrUnsupportedType
	}
}
