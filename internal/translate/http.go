package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/reliability"
)

const (
	retryBase = 200 * time.Millisecond
	retryCap  = 2 * time.Second
)

func postJSON(ctx context.Context, client *http.Client, url string, attempts int, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return reliability.Retry(ctx, attempts, retryBase, retryCap, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := client.Do(req)
		if err != nil {
			if reliability.IsRetryableNetError(err) {
				return &reliability.RetryableError{Err: err}
			}
			return fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			statusErr := fmt.Errorf("http status %d: %s", res.StatusCode, string(body))
			if reliability.IsRetryableHTTPStatus(res.StatusCode) {
				return &reliability.RetryableError{Err: statusErr}
			}
			return statusErr
		}
		if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
