// Package language holds the supported-language catalog and the resolver that
// maps free-form user replies onto it.
package language

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrInvalidCatalog = errors.New("invalid language catalog")

// Language is one supported language. Code is what gets stored and sent to
// adapters; DisplayNames are the aliases the resolver accepts, the first one
// doubling as the label shown to users.
type Language struct {
	Code         string   `json:"languageCode"`
	DisplayNames []string `json:"displayNames"`
	IsDefault    bool     `json:"isDefault"`
}

// Label is the name shown in prompts.
func (l Language) Label() string {
	if len(l.DisplayNames) == 0 {
		return l.Code
	}
	return l.DisplayNames[0]
}

// Catalog is an immutable, validated set of languages.
type Catalog struct {
	languages []Language
	byCode    map[string]Language
	def       Language
}

// NewCatalog validates languages and builds a catalog: at least one entry,
// exactly one default, unique codes and aliases unique across languages.
func NewCatalog(languages []Language) (*Catalog, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("%w: no languages", ErrInvalidCatalog)
	}
	c := &Catalog{
		languages: make([]Language, 0, len(languages)),
		byCode:    make(map[string]Language, len(languages)),
	}
	aliasOwner := make(map[string]string)
	defaults := 0
	for _, l := range languages {
		code := strings.ToLower(strings.TrimSpace(l.Code))
		if code == "" {
			return nil, fmt.Errorf("%w: empty language code", ErrInvalidCatalog)
		}
		if _, dup := c.byCode[code]; dup {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidCatalog, code)
		}
		names := make([]string, 0, len(l.DisplayNames))
		for _, n := range l.DisplayNames {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			key := normalize(n)
			if owner, ok := aliasOwner[key]; ok && owner != code {
				return nil, fmt.Errorf("%w: alias %q used by %s and %s", ErrInvalidCatalog, n, owner, code)
			}
			aliasOwner[key] = code
			names = append(names, n)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: language %q has no display names", ErrInvalidCatalog, code)
		}
		entry := Language{Code: code, DisplayNames: names, IsDefault: l.IsDefault}
		if entry.IsDefault {
			defaults++
			c.def = entry
		}
		c.languages = append(c.languages, entry)
		c.byCode[code] = entry
	}
	if defaults != 1 {
		return nil, fmt.Errorf("%w: want exactly one default language, got %d", ErrInvalidCatalog, defaults)
	}
	return c, nil
}

// LoadCatalog reads a JSON array of languages from path. An empty path yields
// the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language catalog: %w", err)
	}
	var languages []Language
	if err := json.Unmarshal(raw, &languages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(languages)
}

// Default returns the language used before a user has chosen one.
func (c *Catalog) Default() Language { return c.def }

// Lookup finds a language by code.
func (c *Catalog) Lookup(code string) (Language, bool) {
	l, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	return l, ok
}

// Languages returns the catalog entries in configuration order.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.languages))
	copy(out, c.languages)
	return out
}

// Labels returns the display label of every language, in order.
func (c *Catalog) Labels() []string {
	out := make([]string, 0, len(c.languages))
	for _, l := range c.languages {
		out = append(out, l.Label())
	}
	return out
}

// DefaultCatalog is the built-in set of Indian languages plus English.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

var builtin = []Language{
	{Code: "en", DisplayNames: []string{"English", "angrezi", "अंग्रेज़ी"}, IsDefault: true},
	{Code: "hi", DisplayNames: []string{"Hindi", "हिंदी", "हिन्दी"}},
	{Code: "bn", DisplayNames: []string{"Bengali", "Bangla", "বাংলা"}},
	{Code: "te", DisplayNames: []string{"Telugu", "తెలుగు"}},
	{Code: "mr", DisplayNames: []string{"Marathi", "मराठी"}},
	{Code: "ta", DisplayNames: []string{"Tamil", "தமிழ்"}},
	{Code: "gu", DisplayNames: []string{"Gujarati", "ગુજરાતી"}},
	{Code: "kn", DisplayNames: []string{"Kannada", "ಕನ್ನಡ"}},
	{Code: "ml", DisplayNames: []string{"Malayalam", "മലയാളം"}},
	{Code: "or", DisplayNames: []string{"Oriya", "Odia", "ଓଡ଼ିଆ"}},
	{Code: "pa", DisplayNames: []string{"Punjabi", "ਪੰਜਾਬੀ"}},
	{Code: "as", DisplayNames: []string{"Assamese", "অসমীয়া"}},
	{Code: "ks", DisplayNames: []string{"Kashmiri", "कॉशुर"}},
	{Code: "sa", DisplayNames: []string{"Sanskrit", "संस्कृतम्"}},
	{Code: "sd", DisplayNames: []string{"Sindhi", "سنڌي"}},
	{Code: "ur", DisplayNames: []string{"Urdu", "اردو"}},
}
