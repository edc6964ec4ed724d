package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/channel/twilio"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/config"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/dialogue"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/observability"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/policy"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/session"
)

// MessageHandler consumes one inbound message end to end.
type MessageHandler interface {
	Handle(ctx context.Context, msg chat.InboundMessage) (dialogue.Result, error)
}

// Deps wires the server. Hub, Metrics and Gatherer are optional.
type Deps struct {
	Config   config.Config
	Handler  MessageHandler
	Sessions session.Store
	Hub      *Hub
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Status   Status
}

type Server struct {
	cfg      config.Config
	handler  MessageHandler
	sessions session.Store
	hub      *Hub
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	status   Status
	upgrader websocket.Upgrader

	// Message tasks outlive the webhook request that started them.
	tasks      sync.WaitGroup
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	cfg := d.Config
	return &Server{
		cfg:        cfg,
		handler:    d.Handler,
		sessions:   d.Sessions,
		hub:        d.Hub,
		metrics:    d.Metrics,
		gatherer:   gatherer,
		logger:     logger,
		status:     d.Status,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless
				// APP_ALLOW_ANY_ORIGIN is set.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler(s.gatherer).ServeHTTP(w, r)
	})

	r.Post("/webhook/whatsapp", s.handleWhatsAppWebhook)
	if s.cfg.DevChat {
		r.Get("/v1/chat/ws", s.handleChatWS)
	}
	r.Get("/v1/sessions/{identity}", s.handleGetSession)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

// Drain waits for in-flight message tasks. When ctx expires first the
// remaining tasks are cancelled and ctx's error is returned.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancelBase()
		return nil
	case <-ctx.Done():
		s.cancelBase()
		<-done
		return ctx.Err()
	}
}

// dispatch runs msg through the handler on its own goroutine. done, if set,
// receives the result.
func (s *Server) dispatch(msg chat.InboundMessage, done func(dialogue.Result, error)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		res, err := s.handler.Handle(s.baseCtx, msg)
		if err != nil {
			s.logger.Error("message task failed",
				"identity", policy.MaskIdentity(msg.Identity),
				"message_id", msg.ID,
				"outcome", res.Outcome,
				"error", err,
			)
		}
		if done != nil {
			done(res, err)
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"session_store": s.status.SessionStore,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil || s.handler == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not wired")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	n, err := s.sessions.Count(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "session_store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"session_store": s.status.SessionStore,
		"sessions":      n,
	})
}

func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if s.handler == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "dialogue controller not configured")
		return
	}
	msg, err := twilio.ParseWebhook(r, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_webhook", err.Error())
		return
	}
	// Twilio only needs an acknowledgement; replies go out through the
	// Messages API once the message has been processed.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, twilio.EmptyTwiML)

	s.dispatch(msg, nil)
}

type sessionResponse struct {
	Identity          string        `json:"identity"`
	State             session.State `json:"state"`
	PreferredLanguage string        `json:"preferred_language,omitempty"`
	DisplayName       string        `json:"display_name,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	LastActiveAt      time.Time     `json:"last_active_at"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))
	if unescaped, err := url.PathUnescape(identity); err == nil {
		identity = unescaped
	}
	if identity == "" {
		respondError(w, http.StatusBadRequest, "invalid_identity", "missing identity")
		return
	}
	if s.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "session store not configured")
		return
	}
	sess, err := s.sessions.Get(r.Context(), identity)
	if errors.Is(err, session.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session_not_found", "no session for identity")
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "session_store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{
		Identity:          sess.Identity,
		State:             sess.State,
		PreferredLanguage: sess.PreferredLanguage,
		DisplayName:       sess.DisplayName,
		CreatedAt:         sess.CreatedAt,
		LastActiveAt:      sess.LastActiveAt,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
