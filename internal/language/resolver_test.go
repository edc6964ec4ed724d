package language

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r := NewResolver(DefaultCatalog())
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Hindi", "hi", true},
		{"  HINDI!  ", "hi", true},
		{"english", "en", true},
		{"हिंदी", "hi", true},
		{"Odia", "or", true},
		{"bangla", "bn", true},
		{"hindi please", "hi", true},
		{"hin", "hi", true},
		{"eng", "en", true},
		{"tam", "ta", true},
		{"ma", "", false}, // too short for a prefix
		{"hi", "", false}, // greeting, not a code
		{"", "", false},
		{"   ", "", false},
		{"klingon", "", false},
		{"please hindi", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := r.Resolve(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.Code)
			}
		})
	}
}

func TestResolveAmbiguousPrefix(t *testing.T) {
	c, err := NewCatalog([]Language{
		{Code: "mr", DisplayNames: []string{"Marathi"}, IsDefault: true},
		{Code: "rwr", DisplayNames: []string{"Marwari"}},
	})
	require.NoError(t, err)
	r := NewResolver(c)

	_, ok := r.Resolve("mar")
	assert.False(t, ok)
	got, ok := r.Resolve("marw")
	require.True(t, ok)
	assert.Equal(t, "rwr", got.Code)
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		in   []Language
	}{
		{"empty", nil},
		{"no default", []Language{{Code: "en", DisplayNames: []string{"English"}}}},
		{"two defaults", []Language{
			{Code: "en", DisplayNames: []string{"English"}, IsDefault: true},
			{Code: "hi", DisplayNames: []string{"Hindi"}, IsDefault: true},
		}},
		{"duplicate code", []Language{
			{Code: "en", DisplayNames: []string{"English"}, IsDefault: true},
			{Code: "EN", DisplayNames: []string{"Angrezi"}},
		}},
		{"shared alias", []Language{
			{Code: "en", DisplayNames: []string{"English"}, IsDefault: true},
			{Code: "hi", DisplayNames: []string{"english"}},
		}},
		{"no names", []Language{{Code: "en", IsDefault: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.in)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, "en", c.Default().Code)
	assert.Len(t, c.Languages(), 16)
	assert.Equal(t, "English", c.Labels()[0])

	hi, ok := c.Lookup("HI")
	require.True(t, ok)
	assert.Equal(t, "Hindi", hi.Label())
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.json")
	body := `[{"languageCode":"hi","displayNames":["Hindi"],"isDefault":true},{"languageCode":"en","displayNames":["English"]}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", c.Default().Code)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
