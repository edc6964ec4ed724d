package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
)

func TestRouterRoutesByChannel(t *testing.T) {
	wa, ws, fb := NewCapture(), NewCapture(), NewCapture()
	r := NewRouter(fb)
	r.Handle(chat.ChannelWhatsApp, wa)
	r.Handle(chat.ChannelWS, ws)

	ctx := context.Background()
	require.NoError(t, r.Send(ctx, chat.OutboundMessage{Identity: "a", Channel: chat.ChannelWhatsApp, Text: "1"}))
	require.NoError(t, r.Send(ctx, chat.OutboundMessage{Identity: "a", Channel: chat.ChannelWS, Text: "2"}))
	require.NoError(t, r.Send(ctx, chat.OutboundMessage{Identity: "a", Channel: chat.ChannelCLI, Text: "3"}))

	assert.Len(t, wa.Messages(), 1)
	assert.Len(t, ws.Messages(), 1)
	assert.Equal(t, "3", fb.Messages()[0].Text)
}

func TestRouterNoRoute(t *testing.T) {
	err := NewRouter(nil).Send(context.Background(), chat.OutboundMessage{Channel: chat.ChannelWS})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestCaptureFailWith(t *testing.T) {
	c := NewCapture()
	boom := errors.New("boom")
	c.FailWith(func(m chat.OutboundMessage) error {
		if m.Seq == 1 {
			return boom
		}
		return nil
	})
	require.NoError(t, c.Send(context.Background(), chat.OutboundMessage{Identity: "a", Seq: 0}))
	assert.ErrorIs(t, c.Send(context.Background(), chat.OutboundMessage{Identity: "a", Seq: 1}), boom)
	assert.Len(t, c.For("a"), 1)
	assert.Empty(t, c.For("b"))
}
