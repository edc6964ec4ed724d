package translate

import (
	"context"
	"errors"
	"html"
	"net/http"
	"net/url"
	"strings"
)

const defaultGoogleURL = "https://translation.googleapis.com/language/translate/v2"

// GoogleTranslator calls the Cloud Translation v2 REST API with an API key.
type GoogleTranslator struct {
	endpoint string
	apiKey   string
	attempts int
	client   *http.Client
}

func NewGoogleTranslator(endpoint, apiKey string, attempts int) *GoogleTranslator {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = defaultGoogleURL
	}
	if attempts <= 0 {
		attempts = 2
	}
	return &GoogleTranslator{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		attempts: attempts,
		client:   newHTTPClient(),
	}
}

func (g *GoogleTranslator) Name() string { return "google" }

type googleRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

func (g *GoogleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", g.apiKey)
	u.RawQuery = q.Encode()

	var out googleResponse
	req := googleRequest{Q: []string{text}, Source: source, Target: target, Format: "text"}
	if err := postJSON(ctx, g.client, u.String(), g.attempts, req, &out); err != nil {
		return "", err
	}
	if len(out.Data.Translations) == 0 {
		return "", errors.New("google translate returned no translations")
	}
	return html.UnescapeString(out.Data.Translations[0].TranslatedText), nil
}
