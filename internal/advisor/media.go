package advisor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMaxMediaBytes = 5 << 20

var ErrMediaRejected = errors.New("media rejected")

// Media is a downloaded image ready to hand to a vision model.
type Media struct {
	Data        []byte
	ContentType string
}

// DataURL encodes the image inline.
func (m Media) DataURL() string {
	return "data:" + m.ContentType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}

const defaultMediaAuthBaseURL = "https://api.twilio.com"

// MediaAuth holds the provider credentials for media downloads. They are
// only sent to BaseURL's host over https.
type MediaAuth struct {
	Username string
	Password string
	BaseURL  string
}

// MediaFetcher downloads provider-hosted media. Twilio media URLs require the
// account SID and auth token as basic auth and redirect to a CDN.
type MediaFetcher struct {
	username string
	password string
	authHost string
	maxBytes int64
	client   *http.Client
}

func NewMediaFetcher(auth MediaAuth) *MediaFetcher {
	base := strings.TrimSpace(auth.BaseURL)
	if base == "" {
		base = defaultMediaAuthBaseURL
	}
	var host string
	if u, err := url.Parse(base); err == nil {
		host = strings.ToLower(u.Host)
	}
	return &MediaFetcher{
		username: strings.TrimSpace(auth.Username),
		password: strings.TrimSpace(auth.Password),
		authHost: host,
		maxBytes: defaultMaxMediaBytes,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// authorizes reports whether credentials may be attached to u. Only
// provider-delivered media qualifies; refs from other channels are user input.
func (f *MediaFetcher) authorizes(u *url.URL, providerMedia bool) bool {
	return providerMedia &&
		f.username != "" &&
		f.authHost != "" &&
		u.Scheme == "https" &&
		strings.EqualFold(u.Host, f.authHost)
}

// Fetch downloads ref and checks that it really is an image. The sniffed
// type wins over whatever the provider declared.
func (f *MediaFetcher) Fetch(ctx context.Context, ref string, providerMedia bool) (Media, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Media{}, fmt.Errorf("%w: invalid media url", ErrMediaRejected)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Media{}, fmt.Errorf("%w: %v", ErrMediaRejected, err)
	}
	if f.authorizes(u, providerMedia) {
		req.SetBasicAuth(f.username, f.password)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("download media: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Media{}, fmt.Errorf("download media: http status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes+1))
	if err != nil {
		return Media{}, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return Media{}, fmt.Errorf("%w: larger than %d bytes", ErrMediaRejected, f.maxBytes)
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return Media{}, fmt.Errorf("%w: content type %s", ErrMediaRejected, ct)
	}
	return Media{Data: data, ContentType: ct}, nil
}
