package language

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minPrefixRunes = 3

// Resolver maps free text to a catalog language. It does no I/O and never
// fails; an unmatched input simply reports ok == false.
type Resolver struct {
	catalog *Catalog
	aliases []alias
}

type alias struct {
	key  string
	code string
}

func NewResolver(catalog *Catalog) *Resolver {
	r := &Resolver{catalog: catalog}
	for _, l := range catalog.languages {
		for _, n := range l.DisplayNames {
			r.aliases = append(r.aliases, alias{key: normalize(n), code: l.Code})
		}
	}
	return r
}

// Resolve tries, in order: an exact alias match, the first word of the input
// as an exact alias ("hindi please"), and finally the input as a prefix of
// the aliases of exactly one language ("hin").
func (r *Resolver) Resolve(text string) (Language, bool) {
	in := normalize(text)
	if in == "" {
		return Language{}, false
	}

	if code, ok := r.exact(in); ok {
		return r.catalog.byCode[code], true
	}

	if fields := strings.Fields(in); len(fields) > 1 {
		if code, ok := r.exact(trimPunct(fields[0])); ok {
			return r.catalog.byCode[code], true
		}
	}

	if utf8.RuneCountInString(in) < minPrefixRunes {
		return Language{}, false
	}
	var match string
	for _, a := range r.aliases {
		if !strings.HasPrefix(a.key, in) {
			continue
		}
		if match != "" && match != a.code {
			return Language{}, false
		}
		match = a.code
	}
	if match == "" {
		return Language{}, false
	}
	return r.catalog.byCode[match], true
}

func (r *Resolver) exact(key string) (string, bool) {
	for _, a := range r.aliases {
		if a.key == key {
			return a.code, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return trimPunct(strings.ToLower(strings.TrimSpace(s)))
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
