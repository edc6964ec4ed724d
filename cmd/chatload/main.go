// Command chatload drives simulated farmers through the developer chat
// websocket and reports per-message latency.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/protocol"
)

type options struct {
	baseURL        string
	users          int
	identityPrefix string
	language       string
	questions      []string
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

var defaultQuestions = []string{
	"When should I sow wheat?",
	"How much water does paddy need in the first month?",
	"My tomato leaves have brown spots, what should I do?",
}

// turnResult is the client-side view of one message.
type turnResult struct {
	user    int
	text    string
	outcome string
	replies int
	latency time.Duration
	err     error
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatload: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chatload: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var questionsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("chatload", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "AgriLoop base URL")
	fs.IntVar(&cfg.users, "users", 10, "number of concurrent simulated users")
	fs.StringVar(&cfg.identityPrefix, "identity-prefix", "load-", "identity prefix; a run id and user index are appended")
	fs.StringVar(&cfg.language, "language", "English", "language name each user picks during onboarding")
	fs.StringVar(&questionsRaw, "questions", "", "questions separated by '|' (optional)")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 100, "delay between messages of one user in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for turn_done per message in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print every message result")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.users <= 0 {
		return options{}, fmt.Errorf("users must be > 0")
	}
	if strings.TrimSpace(cfg.language) == "" {
		return options{}, fmt.Errorf("language is required")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(questionsRaw) == "" {
		cfg.questions = append([]string(nil), defaultQuestions...)
	} else {
		for _, part := range strings.Split(questionsRaw, "|") {
			if q := strings.TrimSpace(part); q != "" {
				cfg.questions = append(cfg.questions, q)
			}
		}
		if len(cfg.questions) == 0 {
			return options{}, fmt.Errorf("questions produced no non-empty entries")
		}
	}
	return cfg, nil
}

// script is what one simulated farmer sends: first contact, a language, a
// name, then the questions.
func script(cfg options, user int) []string {
	out := []string{"hello", cfg.language, fmt.Sprintf("Farmer %d", user+1)}
	return append(out, cfg.questions...)
}

func run(ctx context.Context, cfg options, w io.Writer) error {
	runID := uuid.NewString()[:8]
	started := time.Now()

	var mu sync.Mutex
	var results []turnResult
	record := func(r turnResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		if cfg.verbose {
			fmt.Fprintf(w, "chatload: user=%d text=%q outcome=%s replies=%d latency=%s err=%v\n",
				r.user, r.text, r.outcome, r.replies, r.latency.Round(time.Millisecond), r.err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.users; i++ {
		user := i
		identity := fmt.Sprintf("%s%s-%d", cfg.identityPrefix, runID, user)
		g.Go(func() error {
			return runUser(gctx, cfg, user, identity, record)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintln(w, summarize(results, time.Since(started)))
	if snapshot, err := fetchServerStages(ctx, cfg.baseURL); err == nil {
		fmt.Fprintf(w, "chatload: server stages %s\n", snapshot)
	}
	return nil
}

func runUser(ctx context.Context, cfg options, user int, identity string, record func(turnResult)) error {
	wsURL, err := wsURLForIdentity(cfg.baseURL, identity)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("user %d open websocket: %w", user, err)
	}
	defer conn.Close()

	doneCh := make(chan protocol.TurnDone, 8)
	readErrCh := make(chan error, 1)
	go readLoop(conn, doneCh, readErrCh)

	for i, text := range script(cfg, user) {
		clientID := fmt.Sprintf("%d-%d", user, i)
		sentAt := time.Now()
		msg := protocol.ClientMessage{
			Type:     protocol.TypeClientMessage,
			ClientID: clientID,
			Text:     &text,
			TSMs:     sentAt.UnixMilli(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("user %d send: %w", user, err)
		}
		done, err := awaitTurnDone(ctx, doneCh, readErrCh, cfg.turnTimeout)
		record(turnResult{
			user:    user,
			text:    text,
			outcome: done.Outcome,
			replies: done.Replies,
			latency: time.Since(sentAt),
			err:     err,
		})
		if err != nil {
			return fmt.Errorf("user %d message %d: %w", user, i+1, err)
		}
		if cfg.interTurnDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.interTurnDelay):
			}
		}
	}
	return nil
}

func wsURLForIdentity(baseURL, identity string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	q := u.Query()
	q.Set("identity", identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, doneCh chan<- protocol.TurnDone, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeTurnDone:
			var done protocol.TurnDone
			if err := json.Unmarshal(data, &done); err == nil {
				doneCh <- done
			}
		case protocol.TypeErrorEvent:
			var e protocol.ErrorEvent
			if err := json.Unmarshal(data, &e); err == nil {
				// An error closes the message just like turn_done.
				doneCh <- protocol.TurnDone{Type: protocol.TypeTurnDone, ClientID: e.ClientID, Outcome: "error:" + e.Code}
			}
		}
	}
}

func awaitTurnDone(ctx context.Context, doneCh <-chan protocol.TurnDone, readErrCh <-chan error, timeout time.Duration) (protocol.TurnDone, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case done := <-doneCh:
		return done, nil
	case err := <-readErrCh:
		return protocol.TurnDone{}, err
	case <-ctx.Done():
		return protocol.TurnDone{}, ctx.Err()
	case <-timer.C:
		return protocol.TurnDone{}, fmt.Errorf("timeout after %s", timeout)
	}
}

func summarize(results []turnResult, elapsed time.Duration) string {
	if len(results) == 0 {
		return "chatload: no messages sent"
	}
	latencies := make([]time.Duration, 0, len(results))
	failures := 0
	outcomes := make(map[string]int)
	for _, r := range results {
		latencies = append(latencies, r.latency)
		if r.err != nil {
			failures++
		}
		outcomes[r.outcome]++
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, outcomes[k]))
	}

	return fmt.Sprintf("chatload: messages=%d failures=%d elapsed=%s p50=%s p95=%s max=%s outcomes[%s]",
		len(results), failures, elapsed.Round(time.Millisecond),
		percentile(latencies, 0.50).Round(time.Millisecond),
		percentile(latencies, 0.95).Round(time.Millisecond),
		latencies[len(latencies)-1].Round(time.Millisecond),
		strings.Join(parts, " "))
}

// percentile uses nearest rank on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func fetchServerStages(ctx context.Context, baseURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return "", err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", res.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}
