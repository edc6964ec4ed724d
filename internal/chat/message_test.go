package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		in   Payload
		want Kind
	}{
		{"text", Payload{Identity: "+1555", Text: "hi", HasText: true}, KindText},
		{"blank text is still text", Payload{Identity: "+1555", Text: "   ", HasText: true}, KindText},
		{"empty text", Payload{Identity: "+1555", Text: "", HasText: true}, KindMalformed},
		{"nothing", Payload{Identity: "+1555"}, KindMalformed},
		{"image", Payload{Identity: "+1555", MediaRef: "https://m/1", MediaType: "image/jpeg"}, KindImage},
		{"image without type", Payload{Identity: "+1555", MediaRef: "https://m/1"}, KindImage},
		{"image with caption", Payload{Identity: "+1555", Text: "leaf", HasText: true, MediaRef: "https://m/1", MediaType: "image/png"}, KindImage},
		{"audio is unusable", Payload{Identity: "+1555", MediaRef: "https://m/1", MediaType: "audio/ogg"}, KindMalformed},
		{"missing identity", Payload{Text: "hi", HasText: true}, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in, now)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, now, got.ReceivedAt)
		})
	}
}

func TestClassifyDefaultsChannel(t *testing.T) {
	msg := Classify(Payload{Identity: " +1555 ", Text: "hi", HasText: true}, time.Now())
	assert.Equal(t, ChannelWhatsApp, msg.Channel)
	assert.Equal(t, "+1555", msg.Identity)
}

func TestCaption(t *testing.T) {
	img := Classify(Payload{Identity: "a", Text: "  yellow leaves ", HasText: true, MediaRef: "m"}, time.Now())
	assert.Equal(t, "yellow leaves", img.Caption())

	txt := Classify(Payload{Identity: "a", Text: "hello", HasText: true}, time.Now())
	assert.Empty(t, txt.Caption())
}
