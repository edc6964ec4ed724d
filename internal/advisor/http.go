package advisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProcessor forwards queries to a self-hosted advisor service. The
// endpoint may answer with a JSON object, plain text, or an SSE/NDJSON stream
// whose fragments are concatenated.
type HTTPProcessor struct {
	url    string
	client *http.Client
}

func NewHTTPProcessor(url string) *HTTPProcessor {
	return &HTTPProcessor{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type httpRequest struct {
	Kind      string `json:"kind"`
	Identity  string `json:"identity"`
	Farmer    Farmer `json:"farmer"`
	Text      string `json:"text,omitempty"`
	History   []Turn `json:"history,omitempty"`
	MediaRef  string `json:"media_ref,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("advisor http status %d: %s", e.code, e.body)
}

func (a *HTTPProcessor) AnswerText(ctx context.Context, q TextQuery) (Answer, error) {
	return a.post(ctx, httpRequest{Kind: "text", Identity: q.Identity, Farmer: q.Farmer, Text: q.Text, History: q.History})
}

func (a *HTTPProcessor) AnswerImage(ctx context.Context, q ImageQuery) (Answer, error) {
	return a.post(ctx, httpRequest{Kind: "image", Identity: q.Identity, Farmer: q.Farmer, Text: q.Caption, MediaRef: q.MediaRef, MediaType: q.MediaType})
}

func (a *HTTPProcessor) post(ctx context.Context, in httpRequest) (Answer, error) {
	text, err := a.do(ctx, in)
	if err != nil {
		return Answer{}, unavailable("http", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, unavailable("http", errors.New("empty answer"))
	}
	return Answer{Text: text, Backend: "http"}, nil
}

func (a *HTTPProcessor) do(ctx context.Context, in httpRequest) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &httpStatusError{code: res.StatusCode, body: string(body)}
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		return consumeStreaming(res.Body)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(body), nil
	}
	return extractText(obj), nil
}

func consumeStreaming(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"answer", "text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
