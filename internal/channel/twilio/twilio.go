// Package twilio speaks the Twilio WhatsApp webhook and Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/chat"
	"github.com/NAME-ASHWANIYADAV/agriloop/internal/reliability"
)

const (
	addressPrefix = "whatsapp:"
	maxFormBytes  = 64 << 10

	retryBase = 250 * time.Millisecond
	retryCap  = 4 * time.Second
)

// EmptyTwiML acknowledges a webhook without sending a synchronous reply.
const EmptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// ParseWebhook turns an inbound WhatsApp webhook form into a classified
// message. Only the first media item is used.
func ParseWebhook(r *http.Request, receivedAt time.Time) (chat.InboundMessage, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return chat.InboundMessage{}, fmt.Errorf("parse webhook form: %w", err)
	}
	form := r.PostForm

	id := strings.TrimSpace(form.Get("MessageSid"))
	if id == "" {
		id = uuid.NewString()
	}
	body, hasText := form["Body"]
	p := chat.Payload{
		ID:       id,
		Identity: Identity(form.Get("From")),
		Channel:  chat.ChannelWhatsApp,
		HasText:  hasText,
	}
	if hasText && len(body) > 0 {
		p.Text = body[0]
	}
	if n, _ := strconv.Atoi(form.Get("NumMedia")); n > 0 {
		p.MediaRef = form.Get("MediaUrl0")
		p.MediaType = form.Get("MediaContentType0")
	}
	return chat.Classify(p, receivedAt), nil
}

// Identity strips the channel prefix from a Twilio address.
func Identity(address string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(address), addressPrefix))
}

// Config holds Messages API credentials.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Attempts   int
}

// Sender posts outbound WhatsApp messages through the Messages API,
// retrying throttling and server errors with capped backoff.
type Sender struct {
	cfg    Config
	client *http.Client
}

func NewSender(cfg Config, client *http.Client) (*Sender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, errors.New("twilio: account sid, auth token and sender number are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.From = Identity(cfg.From)
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Sender{cfg: cfg, client: client}, nil
}

// apiError is the error body the Messages API returns.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (s *Sender) Send(ctx context.Context, msg chat.OutboundMessage) error {
	form := url.Values{}
	form.Set("To", addressPrefix+msg.Identity)
	form.Set("From", addressPrefix+s.cfg.From)
	form.Set("Body", msg.Text)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, url.PathEscape(s.cfg.AccountSID))
	encoded := form.Encode()

	return reliability.Retry(ctx, s.cfg.Attempts, retryBase, retryCap, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("create twilio request: %w", err)
		}
		req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		res, err := s.client.Do(req)
		if err != nil {
			if reliability.IsRetryableNetError(err) {
				return &reliability.RetryableError{Err: err}
			}
			return fmt.Errorf("send twilio request: %w", err)
		}
		defer res.Body.Close()
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
			return nil
		}

		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		statusErr := fmt.Errorf("twilio status %d: %s", res.StatusCode, describe(raw))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return &reliability.RetryableError{Err: statusErr}
		}
		return statusErr
	})
}

func describe(raw []byte) string {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return strings.TrimSpace(string(raw))
}
