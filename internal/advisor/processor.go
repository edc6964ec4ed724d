// Package advisor answers farming questions and diagnoses crop images. All
// text in and out is in the pivot language.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/weather"
)

var ErrQueryUnavailable = errors.New("query unavailable")

// Turn is one prior exchange replayed as context.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Farmer is the profile data a backend may use to personalise answers.
type Farmer struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

type TextQuery struct {
	Identity string `json:"identity"`
	Farmer   Farmer `json:"farmer"`
	Text     string `json:"text"`
	History  []Turn `json:"history,omitempty"`
}

type ImageQuery struct {
	Identity  string `json:"identity"`
	Farmer    Farmer `json:"farmer"`
	MediaRef  string `json:"media_ref"`
	MediaType string `json:"media_type,omitempty"`
	Caption   string `json:"caption,omitempty"`

	// ProviderMedia is set when MediaRef came from the messaging provider
	// and may be fetched with the provider credentials.
	ProviderMedia bool `json:"-"`
}

// Answer is a pivot-language reply and the backend that produced it.
type Answer struct {
	Text    string `json:"text"`
	Backend string `json:"backend,omitempty"`
}

// Processor is a single bounded call to the reasoning backend. Callers set
// the deadline; implementations never retry on their own.
type Processor interface {
	AnswerText(ctx context.Context, q TextQuery) (Answer, error)
	AnswerImage(ctx context.Context, q ImageQuery) (Answer, error)
}

// Config controls processor construction.
type Config struct {
	Mode              string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	HTTPURL           string
	PivotLanguageName string
	MaxTokens         int

	Weather weather.Provider
	Media   *MediaFetcher
}

func NewProcessor(cfg Config) (Processor, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoProcessor(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai API key is required for openai mode")
		}
		return NewOpenAIProcessor(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("advisor HTTP url is required for http mode")
		}
		return NewHTTPProcessor(cfg.HTTPURL), nil
	case "mock":
		return NewMockProcessor(), nil
	default:
		return nil, fmt.Errorf("unsupported advisor mode %q", cfg.Mode)
	}
}

// newAutoProcessor picks exactly one backend: OpenAI when a key is set, else
// the HTTP backend, else the mock. A failed answer is never re-asked of
// another backend.
func newAutoProcessor(cfg Config) Processor {
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return NewOpenAIProcessor(cfg)
	}
	if httpURL := strings.TrimSpace(cfg.HTTPURL); httpURL != "" {
		return NewHTTPProcessor(httpURL)
	}
	return NewMockProcessor()
}

// Backend names the processor for logs and the status endpoint.
func Backend(p Processor) string {
	switch p.(type) {
	case *OpenAIProcessor:
		return "openai"
	case *HTTPProcessor:
		return "http"
	case *MockProcessor:
		return "mock"
	default:
		return fmt.Sprintf("%T", p)
	}
}

func unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrQueryUnavailable, backend, err)
}

// ErrorClass buckets a processor error for metrics labels.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMediaRejected):
		return "media"
	}
	if code := apiStatus(err); code != 0 {
		switch {
		case code == 429:
			return "rate_limited"
		case code == 401 || code == 403:
			return "auth"
		case code >= 500:
			return "upstream"
		default:
			return "request"
		}
	}
	return "other"
}
