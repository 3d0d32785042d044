// Package sanitizer turns human-entered form, section, control and option
// names into SQL Server identifiers.
//
// Sanitize is a pure function of its input. Collision handling lives in
// Scope, which callers create per namespace (one per table for columns, one
// per render call for tables) and never share across forms or runs.
package sanitizer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdentifierLength is the longest identifier SQL Server accepts.
const MaxIdentifierLength = 128

// Kind selects the placeholder used when nothing survives sanitization.
type Kind int

const (
	Column Kind = iota
	Table
)

// Placeholder returns the fixed identifier used for empty or all-invalid input.
func (k Kind) Placeholder() string {
	if k == Table {
		return "Form"
	}
	return "Field"
}

// Sanitize converts raw into an identifier matching ^[A-Za-z_][A-Za-z0-9_]*$
// of at most MaxIdentifierLength characters:
//  1. strip accents (NFD → remove Mn → NFC)
//  2. collapse each whitespace run to a single underscore
//  3. drop anything outside [A-Za-z0-9_]
//  4. prefix "_" when the result starts with a digit
//  5. truncate; fall back to the kind's placeholder if empty
func Sanitize(raw string, kind Kind) string {
	s := strings.TrimSpace(raw)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	inSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			inSpace = false
		}
	}

	out := b.String()
	if strings.Trim(out, "_") == "" {
		return kind.Placeholder()
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return Truncate(out, MaxIdentifierLength)
}

// Truncate shortens an ASCII identifier to at most n bytes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Clip shortens text to at most n UTF-16 code units, the unit NVARCHAR(n)
// counts, without splitting a character.
func Clip(s string, n int) string {
	units := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if units+w > n {
			return s[:i]
		}
		units += w
	}
	return s
}

// Join sanitizes each part and joins them with underscores, keeping the
// result within MaxIdentifierLength.
func Join(kind Kind, parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		clean = append(clean, Sanitize(p, kind))
	}
	if len(clean) == 0 {
		return kind.Placeholder()
	}
	return Truncate(strings.Join(clean, "_"), MaxIdentifierLength)
}

// Scope hands out collision-free identifiers within one namespace.
// Comparison is case-insensitive, matching SQL Server's default collation.
type Scope struct {
	kind  Kind
	taken map[string]bool
}

// NewScope creates an empty namespace for identifiers of the given kind.
func NewScope(kind Kind) *Scope {
	return &Scope{kind: kind, taken: make(map[string]bool)}
}

// Reserve claims names that generated identifiers must not reuse, such as
// surrogate key and audit columns. Names are taken as-is.
func (s *Scope) Reserve(names ...string) {
	for _, n := range names {
		s.taken[strings.ToLower(n)] = true
	}
}

// Taken reports whether name is already claimed in this scope.
func (s *Scope) Taken(name string) bool {
	return s.taken[strings.ToLower(name)]
}

// Unique sanitizes raw and appends _2, _3, … until the name is free.
func (s *Scope) Unique(raw string) string {
	return s.Claim(Sanitize(raw, s.kind))
}

// Claim reserves an already-valid identifier, suffixing it on collision.
func (s *Scope) Claim(name string) string {
	if !s.Taken(name) {
		s.Reserve(name)
		return name
	}
	for i := 2; ; i++ {
		suffix := "_" + strconv.Itoa(i)
		candidate := Truncate(name, MaxIdentifierLength-len(suffix)) + suffix
		if !s.Taken(candidate) {
			s.Reserve(candidate)
			return candidate
		}
	}
}
