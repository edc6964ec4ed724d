package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/weather"
)

type stubWeather struct {
	location string
}

func (s *stubWeather) Lookup(_ context.Context, location string) (weather.Report, error) {
	s.location = location
	return weather.Report{Location: location, Description: "clear sky", TempC: 31}, nil
}

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
	Tools    []json.RawMessage `json:"tools"`
}

func TestOpenAIProcessorAnswerText(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Use neem oil spray.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProcessor(Config{OpenAIAPIKey: "sk-test", OpenAIBaseURL: srv.URL, OpenAIModel: "m1"})
	ans, err := p.AnswerText(context.Background(), TextQuery{
		Farmer:  Farmer{Name: "Asha"},
		Text:    "aphids on mustard",
		History: []Turn{{Role: "user", Text: "hello"}, {Role: "assistant", Text: "hi Asha"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Use neem oil spray.", ans.Text)
	assert.Equal(t, "openai", ans.Backend)
	assert.Equal(t, "m1", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Contains(t, string(got.Messages[0]), "Asha")
	assert.Empty(t, got.Tools)
}

func TestOpenAIProcessorWeatherToolRound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			require.Len(t, req.Tools, 1)
			_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_current_weather","arguments":"{\"location\":\"Nashik\"}"}}]},"finish_reason":"tool_calls"}]}`))
			return
		}
		assert.Empty(t, req.Tools)
		last := string(req.Messages[len(req.Messages)-1])
		assert.Contains(t, last, "clear sky")
		assert.Contains(t, last, "call_1")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Dry and hot: irrigate this evening."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	wx := &stubWeather{}
	p := NewOpenAIProcessor(Config{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL, Weather: wx})
	ans, err := p.AnswerText(context.Background(), TextQuery{Text: "should I irrigate in Nashik today?"})
	require.NoError(t, err)
	assert.Equal(t, "Dry and hot: irrigate this evening.", ans.Text)
	assert.Equal(t, "Nashik", wx.location)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIProcessorAnswerImage(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	media := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tok", pass)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(png)
	}))
	defer media.Close()

	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		body = string(req.Messages[0])
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Leaf rust detected."}}]}`))
	}))
	defer srv.Close()

	fetcher := NewMediaFetcher(MediaAuth{Username: "AC1", Password: "tok", BaseURL: media.URL})
	fetcher.client = media.Client()
	p := NewOpenAIProcessor(Config{
		OpenAIAPIKey:      "k",
		OpenAIBaseURL:     srv.URL,
		OpenAIVisionModel: "vision",
		Media:             fetcher,
	})
	ans, err := p.AnswerImage(context.Background(), ImageQuery{MediaRef: media.URL + "/m/1", Caption: "wheat leaves", ProviderMedia: true})
	require.NoError(t, err)
	assert.Equal(t, "Leaf rust detected.", ans.Text)
	assert.Contains(t, body, "data:image/png;base64,")
	assert.Contains(t, body, "wheat leaves")
}

func TestOpenAIProcessorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProcessor(Config{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL})
	_, err := p.AnswerText(context.Background(), TextQuery{Text: "q"})
	require.ErrorIs(t, err, ErrQueryUnavailable)
	assert.Equal(t, "rate_limited", ErrorClass(err))
}

func TestMediaFetcherRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OggS not an image at all"))
	}))
	defer srv.Close()

	_, err := NewMediaFetcher(MediaAuth{}).Fetch(context.Background(), srv.URL, false)
	assert.ErrorIs(t, err, ErrMediaRejected)
}

func TestMediaFetcherSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	f := NewMediaFetcher(MediaAuth{})
	f.maxBytes = 1024
	_, err := f.Fetch(context.Background(), srv.URL, false)
	assert.ErrorIs(t, err, ErrMediaRejected)
}

func TestMediaFetcherCredentialsStayOnProviderHost(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	var authHeaders []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		_, _ = w.Write(png)
	})
	provider := httptest.NewTLSServer(handler)
	defer provider.Close()
	foreignTLS := httptest.NewTLSServer(handler)
	defer foreignTLS.Close()
	plain := httptest.NewServer(handler)
	defer plain.Close()

	f := NewMediaFetcher(MediaAuth{Username: "ACsid", Password: "secret", BaseURL: provider.URL})
	f.client = provider.Client()

	tests := []struct {
		name     string
		ref      string
		provider bool
		wantAuth bool
	}{
		{"provider host", provider.URL + "/Media/ME1", true, true},
		{"provider host from another channel", provider.URL + "/Media/ME1", false, false},
		{"foreign https host", foreignTLS.URL + "/evil.png", true, false},
		{"plain http", plain.URL + "/evil.png", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authHeaders = nil
			_, err := f.Fetch(context.Background(), tt.ref, tt.provider)
			require.NoError(t, err)
			require.Len(t, authHeaders, 1)
			if tt.wantAuth {
				assert.NotEmpty(t, authHeaders[0])
			} else {
				assert.Empty(t, authHeaders[0])
			}
		})
	}
}

func TestMediaFetcherRejectsNonHTTPRefs(t *testing.T) {
	f := NewMediaFetcher(MediaAuth{Username: "ACsid", Password: "secret"})
	for _, ref := range []string{"file:///etc/passwd", "not a url", ""} {
		_, err := f.Fetch(context.Background(), ref, true)
		assert.ErrorIs(t, err, ErrMediaRejected, ref)
	}
}

func TestHTTPProcessorJSONAndStream(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json", "application/json", `{"answer":"sow after rain"}`, "sow after rain"},
		{"plain", "text/plain", "sow after rain", "sow after rain"},
		{"sse", "text/event-stream", "data: {\"delta\":\"sow \"}\n\ndata: {\"delta\":\"after rain\"}\n\ndata: [DONE]\n", "sow after rain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req httpRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "text", req.Kind)
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ans, err := NewHTTPProcessor(srv.URL).AnswerText(context.Background(), TextQuery{Text: "when to sow?"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ans.Text)
		})
	}
}

func TestHTTPProcessorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProcessor(srv.URL).AnswerImage(context.Background(), ImageQuery{MediaRef: "m"})
	require.ErrorIs(t, err, ErrQueryUnavailable)
	assert.Equal(t, "upstream", ErrorClass(err))
}

func TestNewProcessorModes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"auto mock", Config{}, "mock", false},
		{"auto http", Config{HTTPURL: "http://advisor"}, "http", false},
		{"auto openai", Config{OpenAIAPIKey: "k"}, "openai", false},
		{"auto prefers openai over http", Config{OpenAIAPIKey: "k", HTTPURL: "http://advisor"}, "openai", false},
		{"openai without key", Config{Mode: "openai"}, "", true},
		{"http without url", Config{Mode: "http"}, "", true},
		{"unknown", Config{Mode: "gemini"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProcessor(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Backend(p))
		})
	}
}
