package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at ram@example.com or +91 98765 43210 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIAadhaar(t *testing.T) {
	out, changed := RedactPII("my aadhaar is 2345 6789 0123")
	if !changed || !strings.Contains(out, "[REDACTED_ID]") {
		t.Fatalf("RedactPII() = %q, %v; want aadhaar redacted", out, changed)
	}
}

func TestRedactPIILeavesFarmingTextAlone(t *testing.T) {
	in := "Apply 50 kg urea per acre after 20 days."
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v; want unchanged", in, out, changed)
	}
}

func TestMaskIdentity(t *testing.T) {
	cases := map[string]string{
		"+919876543210": "*********3210",
		"abc":           "***",
		"":              "",
	}
	for in, want := range cases {
		if got := MaskIdentity(in); got != want {
			t.Fatalf("MaskIdentity(%q) = %q, want %q", in, got, want)
		}
	}
}
