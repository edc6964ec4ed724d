// Package channel delivers outbound messages to the transport each
// conversation arrived on.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/policy"
)

var ErrNoRoute = errors.New("no sender for channel")

// Sender delivers one outbound message. Callers send messages for one
// identity sequentially, so implementations only need to deliver in call
// order.
type Sender interface {
	Send(ctx context.Context, msg chat.OutboundMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg chat.OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, msg chat.OutboundMessage) error { return f(ctx, msg) }

// Router picks a Sender by the message's channel.
type Router struct {
	mu       sync.RWMutex
	routes   map[chat.Channel]Sender
	fallback Sender
}

func NewRouter(fallback Sender) *Router {
	return &Router{routes: make(map[chat.Channel]Sender), fallback: fallback}
}

// Handle registers s for channel c, replacing any previous sender.
func (r *Router) Handle(c chat.Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[c] = s
}

func (r *Router) Send(ctx context.Context, msg chat.OutboundMessage) error {
	r.mu.RLock()
	s, ok := r.routes[msg.Channel]
	r.mu.RUnlock()
	if !ok {
		s = r.fallback
	}
	if s == nil {
		return fmt.Errorf("%w %q", ErrNoRoute, msg.Channel)
	}
	return s.Send(ctx, msg)
}

// LogSender writes outbound messages to the log. It stands in for a real
// transport in local runs.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, msg chat.OutboundMessage) error {
	l.logger.Info("outbound message",
		"identity", policy.MaskIdentity(msg.Identity),
		"channel", msg.Channel,
		"seq", msg.Seq,
		"text", msg.Text,
	)
	return nil
}

// Capture records outbound messages in memory, in send order.
type Capture struct {
	mu   sync.Mutex
	msgs []chat.OutboundMessage
	fail func(chat.OutboundMessage) error
}

func NewCapture() *Capture { return &Capture{} }

// FailWith makes Send return fn's error for matching messages.
func (c *Capture) FailWith(fn func(chat.OutboundMessage) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fn
}

func (c *Capture) Send(_ context.Context, msg chat.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		if err := c.fail(msg); err != nil {
			return err
		}
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (c *Capture) Messages() []chat.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.OutboundMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// For returns the messages sent to one identity.
func (c *Capture) For(identity string) []chat.OutboundMessage {
	var out []chat.OutboundMessage
	for _, m := range c.Messages() {
		if m.Identity == identity {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops everything captured so far.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}
