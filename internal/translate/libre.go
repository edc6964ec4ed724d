package translate

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// LibreTranslator calls a LibreTranslate server's /translate endpoint.
type LibreTranslator struct {
	baseURL  string
	apiKey   string
	attempts int
	client   *http.Client
}

func NewLibreTranslator(baseURL, apiKey string, attempts int) *LibreTranslator {
	if attempts <= 0 {
		attempts = 2
	}
	return &LibreTranslator{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		attempts: attempts,
		client:   newHTTPClient(),
	}
}

func (l *LibreTranslator) Name() string { return "libre" }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

func (l *LibreTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	var out libreResponse
	req := libreRequest{Q: text, Source: source, Target: target, Format: "text", APIKey: l.apiKey}
	if err := postJSON(ctx, l.client, l.baseURL+"/translate", l.attempts, req, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.TranslatedText, nil
}
