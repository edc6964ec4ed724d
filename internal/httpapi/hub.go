package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/dialogue"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/protocol"
)

var ErrNoConnection = errors.New("no websocket connection for identity")

// DevIdentityPrefix keeps developer chat users out of the WhatsApp
// identity namespace.
const DevIdentityPrefix = "ws:"

// DevIdentity maps a developer chat identity into its own namespace.
func DevIdentity(raw string) string {
	return DevIdentityPrefix + strings.TrimPrefix(raw, DevIdentityPrefix)
}

// Hub tracks developer chat connections by identity and delivers bot
// replies to them. It implements channel.Sender for the ws channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*wsClient]struct{})}
}

type wsClient struct {
	identity string
	out      chan any
	done     chan struct{}
}

func newWSClient(identity string) *wsClient {
	return &wsClient{identity: identity, out: make(chan any, 64), done: make(chan struct{})}
}

// push queues a frame, waiting while the writer catches up.
func (c *wsClient) push(ctx context.Context, frame any) error {
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrNoConnection
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryPush queues a frame only if there is room.
func (c *wsClient) tryPush(frame any) bool {
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.identity]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.identity] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.identity]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.identity)
	}
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) Send(ctx context.Context, msg chat.OutboundMessage) error {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[msg.Identity]))
	for c := range h.clients[msg.Identity] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return ErrNoConnection
	}

	frame := protocol.BotMessage{
		Type:     protocol.TypeBotMessage,
		Identity: msg.Identity,
		Seq:      msg.Seq,
		Text:     msg.Text,
		TSMs:     time.Now().UnixMilli(),
	}
	delivered := 0
	for _, c := range targets {
		if err := c.push(ctx, frame); err == nil {
			delivered++
		} else if ctx.Err() != nil {
			return err
		}
	}
	if delivered == 0 {
		return ErrNoConnection
	}
	return nil
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("identity"))
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing_identity", "query parameter identity is required")
		return
	}
	identity := DevIdentity(raw)
	if s.hub == nil || s.handler == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat channel not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := newWSClient(identity)
	s.hub.register(client)
	defer s.hub.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-client.out:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(frame); err != nil {
					s.metrics.ObserveOutbound(string(chat.ChannelWS), "write_error")
					cancel()
					return
				}
			}
		}
	}()

	client.tryPush(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Identity: identity, Code: "connected"})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			if !client.tryPush(errEvent) {
				// Keep websocket writes single-threaded; drop if the queue is saturated.
				s.metrics.ObserveOutbound(string(chat.ChannelWS), "drop_full")
			}
			continue
		}

		started := time.Now()
		msg := chat.Classify(parsed.Payload(identity), started)
		clientID := parsed.ClientID
		s.dispatch(msg, func(res dialogue.Result, err error) {
			done := protocol.TurnDone{
				Type:      protocol.TypeTurnDone,
				ClientID:  clientID,
				Outcome:   string(res.Outcome),
				State:     string(res.To),
				Replies:   res.Sent,
				LatencyMs: time.Since(started).Milliseconds(),
			}
			var frame any = done
			if err != nil {
				code := string(res.Outcome)
				if code == "" {
					code = "dialogue_error"
				}
				frame = protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					ClientID:  clientID,
					Code:      code,
					Source:    "dialogue",
					Retryable: true,
					Detail:    err.Error(),
				}
			}
			pushCtx, cancelPush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPush()
			_ = client.push(pushCtx, frame)
		})
	}

	cancel()
	close(client.done)
	<-writerDone
}
