package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern    = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	aadhaarPattern = regexp.MustCompile(`\b[2-9]\d{3}[ -]?\d{4}[ -]?\d{4}\b`)
)

// RedactPII masks common high-risk PII patterns before message text is
// written to the interaction log.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before Aadhaar before phone: each later pattern matches a subset
	// of the earlier digit runs.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = aadhaarPattern.ReplaceAllString(out, "[REDACTED_ID]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// MaskIdentity keeps the last four characters of a channel identity for log
// lines, e.g. "+919876543210" -> "*********3210".
func MaskIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	n := utf8.RuneCountInString(identity)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	runes := []rune(identity)
	return strings.Repeat("*", n-4) + string(runes[n-4:])
}
