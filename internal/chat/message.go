// Package chat defines the channel-agnostic message shapes exchanged between
// transports and the dialogue controller.
package chat

import (
	"strings"
	"time"
)

// Kind is the closed set of inbound message variants.
type Kind string

const (
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindMalformed Kind = "malformed"
)

// Channel names the transport a message arrived on. Replies go back on the
// same channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWS       Channel = "ws"
	ChannelCLI      Channel = "cli"
)

// InboundMessage is a parsed message handed to the controller by a transport.
// Kind is decided once, by Classify, and never re-derived downstream.
type InboundMessage struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Channel    Channel   `json:"channel"`
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text,omitempty"`
	MediaRef   string    `json:"media_ref,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is one reply, already in the user's language.
type OutboundMessage struct {
	Identity string  `json:"identity"`
	Channel  Channel `json:"channel"`
	Seq      int     `json:"seq"`
	Text     string  `json:"text"`
}

// Payload carries raw transport fields before classification. HasText is
// false when the provider sent no text field at all.
type Payload struct {
	ID        string
	Identity  string
	Channel   Channel
	Text      string
	HasText   bool
	MediaRef  string
	MediaType string
}

// Classify builds an InboundMessage from raw transport fields.
//
// Media wins over text (a caption stays in Text). Media with a non-image
// content type is unusable and classified as malformed. Text that is present
// but blank still counts as text; only the complete absence of both text and
// media is malformed.
func Classify(p Payload, receivedAt time.Time) InboundMessage {
	msg := InboundMessage{
		ID:         p.ID,
		Identity:   strings.TrimSpace(p.Identity),
		Channel:    p.Channel,
		Text:       p.Text,
		MediaRef:   strings.TrimSpace(p.MediaRef),
		MediaType:  strings.ToLower(strings.TrimSpace(p.MediaType)),
		ReceivedAt: receivedAt.UTC(),
	}
	if msg.Channel == "" {
		msg.Channel = ChannelWhatsApp
	}

	switch {
	case msg.Identity == "":
		msg.Kind = KindMalformed
	case msg.MediaRef != "":
		if msg.MediaType != "" && !strings.HasPrefix(msg.MediaType, "image/") {
			msg.Kind = KindMalformed
		} else {
			msg.Kind = KindImage
		}
	case p.HasText && p.Text != "":
		msg.Kind = KindText
	default:
		msg.Kind = KindMalformed
	}
	return msg
}

// Caption returns the trimmed text sent alongside an image, if any.
func (m InboundMessage) Caption() string {
	if m.Kind != KindImage {
		return ""
	}
	return strings.TrimSpace(m.Text)
}
