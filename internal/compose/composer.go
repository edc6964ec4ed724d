// Package compose turns pivot-language text into outbound chunks in the
// user's language.
package compose

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/translate"
)

// DefaultChunkRunes keeps each outbound message under WhatsApp's 1600
// character body limit.
const DefaultChunkRunes = 1590

// Result is the composed reply. Degraded is set when translation failed and
// the pivot text was sent instead.
type Result struct {
	Chunks   []string
	Degraded bool
}

// Composer translates from the pivot language and splits long replies.
type Composer struct {
	gateway    translate.Gateway
	chunkRunes int
	logger     *slog.Logger
}

func New(gateway translate.Gateway, chunkRunes int, logger *slog.Logger) *Composer {
	if chunkRunes <= 0 {
		chunkRunes = DefaultChunkRunes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gateway: gateway, chunkRunes: chunkRunes, logger: logger}
}

// Compose returns text in target. A translation failure never blocks the
// reply: the untranslated pivot text goes out instead.
func (c *Composer) Compose(ctx context.Context, pivotText, target string) Result {
	text := pivotText
	degraded := false
	if !strings.EqualFold(strings.TrimSpace(target), c.gateway.Pivot()) {
		out, err := c.gateway.FromPivot(ctx, pivotText, target)
		switch {
		case err == nil:
			text = out
		case errors.Is(err, translate.ErrTranslationUnavailable):
			degraded = true
			c.logger.Warn("translation unavailable, sending pivot text", "target", target, "error", err)
		default:
			degraded = true
			c.logger.Error("translation failed, sending pivot text", "target", target, "error", err)
		}
	}
	return Result{Chunks: Split(text, c.chunkRunes), Degraded: degraded}
}

// Split breaks text into pieces of at most max runes, preferring paragraph
// breaks, then line breaks, then spaces. Blank input yields no chunks.
// Invalid UTF-8 is replaced with U+FFFD first so no bytes are lost.
func Split(text string, max int) []string {
	text = strings.TrimSpace(strings.ToValidUTF8(text, "\uFFFD"))
	if text == "" {
		return nil
	}
	if max <= 0 {
		max = DefaultChunkRunes
	}
	var out []string
	for utf8.RuneCountInString(text) > max {
		runes := []rune(text)
		head, rest := string(runes[:max]), string(runes[max:])
		for _, sep := range []string{"\n\n", "\n", " "} {
			if i := strings.LastIndex(head, sep); i > 0 {
				head, rest = head[:i], head[i:]+rest
				break
			}
		}
		if head = strings.TrimSpace(head); head != "" {
			out = append(out, head)
		}
		text = strings.TrimSpace(rest)
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
