package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/translate"
)

type fakeGateway struct {
	calls int
	err   error
}

func (f *fakeGateway) Pivot() string { return "en" }

func (f *fakeGateway) ToPivot(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

func (f *fakeGateway) FromPivot(_ context.Context, text, target string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return target + ":" + text, nil
}

func TestComposePassThroughForPivot(t *testing.T) {
	g := &fakeGateway{}
	res := New(g, 0, nil).Compose(context.Background(), "hello", "EN")
	assert.Equal(t, []string{"hello"}, res.Chunks)
	assert.False(t, res.Degraded)
	assert.Zero(t, g.calls)
}

func TestComposeTranslates(t *testing.T) {
	res := New(&fakeGateway{}, 0, nil).Compose(context.Background(), "hello", "hi")
	assert.Equal(t, []string{"hi:hello"}, res.Chunks)
	assert.False(t, res.Degraded)
}

func TestComposeDegradesOnTranslationFailure(t *testing.T) {
	g := &fakeGateway{err: fmt.Errorf("%w: quota", translate.ErrTranslationUnavailable)}
	res := New(g, 0, nil).Compose(context.Background(), "hello", "hi")
	assert.Equal(t, []string{"hello"}, res.Chunks)
	assert.True(t, res.Degraded)

	g.err = errors.New("unexpected")
	res = New(g, 0, nil).Compose(context.Background(), "hello", "hi")
	assert.Equal(t, []string{"hello"}, res.Chunks)
	assert.True(t, res.Degraded)
}

func TestSplit(t *testing.T) {
	assert.Nil(t, Split("   ", 10))
	assert.Equal(t, []string{"short"}, Split("short", 10))

	got := Split("para one here\n\npara two here", 20)
	assert.Equal(t, []string{"para one here", "para two here"}, got)

	got = Split("line one\nline two is longer", 12)
	require.NotEmpty(t, got)
	assert.Equal(t, "line one", got[0])

	got = Split(strings.Repeat("क", 25), 10)
	assert.Equal(t, []string{strings.Repeat("क", 10), strings.Repeat("क", 10), strings.Repeat("क", 5)}, got)
}

func TestSplitKeepsInvalidUTF8Content(t *testing.T) {
	got := Split("\xffaaaaa bbbbb ccccc", 8)
	assert.Equal(t, []string{"\uFFFDaaaaa", "bbbbb", "ccccc"}, got)
}

func TestSplitRespectsLimit(t *testing.T) {
	text := strings.Repeat("irrigate the wheat field early in the morning. ", 100)
	chunks := Split(text, 160)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 160)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(chunks, " "))
}
