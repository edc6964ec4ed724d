// Package translate converts user text to and from the pivot language the
// advisor works in.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrTranslationUnavailable = errors.New("translation unavailable")

// Gateway is what the dialogue controller and composer depend on.
type Gateway interface {
	ToPivot(ctx context.Context, text, sourceLang string) (string, error)
	FromPivot(ctx context.Context, pivotText, targetLang string) (string, error)
	Pivot() string
}

// Translator is a single provider call. Implementations are stateless.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	Name() string
}

// Config controls gateway construction.
type Config struct {
	Provider      string
	PivotLanguage string
	Timeout       time.Duration

	GoogleAPIKey  string
	GoogleURL     string
	LibreURL      string
	LibreAPIKey   string
	RetryAttempts int
}

// NewGateway builds a pivot gateway over the configured provider. "auto"
// prefers Google when an API key is set, then LibreTranslate, then no-op.
func NewGateway(cfg Config) (*PivotGateway, error) {
	t, err := newTranslator(cfg)
	if err != nil {
		return nil, err
	}
	return NewPivotGateway(t, cfg.PivotLanguage, cfg.Timeout), nil
}

func newTranslator(cfg Config) (Translator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}
	switch provider {
	case "auto":
		if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
			return NewGoogleTranslator(cfg.GoogleURL, cfg.GoogleAPIKey, cfg.RetryAttempts), nil
		}
		if strings.TrimSpace(cfg.LibreURL) != "" {
			return NewLibreTranslator(cfg.LibreURL, cfg.LibreAPIKey, cfg.RetryAttempts), nil
		}
		return NewPassthrough(), nil
	case "google":
		if strings.TrimSpace(cfg.GoogleAPIKey) == "" {
			return nil, errors.New("google translate API key is required for google provider")
		}
		return NewGoogleTranslator(cfg.GoogleURL, cfg.GoogleAPIKey, cfg.RetryAttempts), nil
	case "libre":
		if strings.TrimSpace(cfg.LibreURL) == "" {
			return nil, errors.New("libretranslate url is required for libre provider")
		}
		return NewLibreTranslator(cfg.LibreURL, cfg.LibreAPIKey, cfg.RetryAttempts), nil
	case "none", "mock":
		return NewPassthrough(), nil
	default:
		return nil, fmt.Errorf("unsupported translate provider %q", cfg.Provider)
	}
}

// PivotGateway adapts a Translator to the pivot-language contract. Calls
// where source and target match never reach the provider. Every provider
// failure, including timeout, is reported as ErrTranslationUnavailable.
type PivotGateway struct {
	translator Translator
	pivot      string
	timeout    time.Duration
}

func NewPivotGateway(t Translator, pivot string, timeout time.Duration) *PivotGateway {
	pivot = strings.ToLower(strings.TrimSpace(pivot))
	if pivot == "" {
		pivot = "en"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PivotGateway{translator: t, pivot: pivot, timeout: timeout}
}

func (g *PivotGateway) Pivot() string { return g.pivot }

// Provider names the underlying translator.
func (g *PivotGateway) Provider() string { return g.translator.Name() }

func (g *PivotGateway) ToPivot(ctx context.Context, text, sourceLang string) (string, error) {
	return g.translate(ctx, text, sourceLang, g.pivot)
}

func (g *PivotGateway) FromPivot(ctx context.Context, pivotText, targetLang string) (string, error) {
	return g.translate(ctx, pivotText, g.pivot, targetLang)
}

func (g *PivotGateway) translate(ctx context.Context, text, source, target string) (string, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	target = strings.ToLower(strings.TrimSpace(target))
	if strings.TrimSpace(text) == "" || source == target || target == "" {
		return text, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.translator.Translate(callCtx, text, source, target)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s->%s: %v", ErrTranslationUnavailable, g.translator.Name(), source, target, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: %s returned empty text", ErrTranslationUnavailable, g.translator.Name())
	}
	return out, nil
}
