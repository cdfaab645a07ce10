// discovery/pattern.go
package discovery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pattern is a local-part template. The declaration order is the priority
// order used everywhere a tie has to be broken.
type Pattern int

const (
	PatternNone Pattern = iota
	PatternFirstDotLast
	PatternFirstLast
	PatternFLast
	PatternFDotLast
	PatternFirst
	PatternLast
	PatternFirstUnderscoreLast
	PatternLastDotFirst
	PatternLastF
	PatternFirstDotL
	PatternFirstL
)

// Patterns lists every template, most common first.
var Patterns = []Pattern{
	PatternFirstDotLast,
	PatternFirstLast,
	PatternFLast,
	PatternFDotLast,
	PatternFirst,
	PatternLast,
	PatternFirstUnderscoreLast,
	PatternLastDotFirst,
	PatternLastF,
	PatternFirstDotL,
	PatternFirstL,
}

var patternNames = map[Pattern]string{
	PatternNone:                "none",
	PatternFirstDotLast:        "first.last",
	PatternFirstLast:           "firstlast",
	PatternFLast:               "flast",
	PatternFDotLast:            "f.last",
	PatternFirst:               "first",
	PatternLast:                "last",
	PatternFirstUnderscoreLast: "first_last",
	PatternLastDotFirst:        "last.first",
	PatternLastF:               "lastf",
	PatternFirstDotL:           "first.l",
	PatternFirstL:              "firstl",
}

func (p Pattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return "none"
}

// ParsePattern is the inverse of String. It is used when reading persisted state.
func ParsePattern(s string) (Pattern, bool) {
	for p, name := range patternNames {
		if name == s && p != PatternNone {
			return p, true
		}
	}
	return PatternNone, false
}

// Apply renders the local-part for a name. Both parts are normalized first;
// an empty string means the name cannot be rendered.
func (p Pattern) Apply(first, last string) string {
	f, l := NormalizeName(first), NormalizeName(last)
	if f == "" || l == "" {
		return ""
	}
	fi, li := f[:1], l[:1]

	switch p {
	case PatternFirstDotLast:
		return f + "." + l
	case PatternFirstLast:
		return f + l
	case PatternFLast:
		return fi + l
	case PatternFDotLast:
		return fi + "." + l
	case PatternFirst:
		return f
	case PatternLast:
		return l
	case PatternFirstUnderscoreLast:
		return f + "_" + l
	case PatternLastDotFirst:
		return l + "." + f
	case PatternLastF:
		return l + fi
	case PatternFirstDotL:
		return f + "." + li
	case PatternFirstL:
		return f + li
	}
	return ""
}

// priority returns the position of p in Patterns, or len(Patterns) for PatternNone.
func (p Pattern) priority() int {
	for i, candidate := range Patterns {
		if candidate == p {
			return i
		}
	}
	return len(Patterns)
}

// DetectPattern matches an observed local-part against every template. It only
// reports a pattern when exactly one template produces the local-part.
func DetectPattern(localPart, first, last string) (Pattern, bool) {
	localPart = strings.ToLower(strings.TrimSpace(localPart))
	if localPart == "" {
		return PatternNone, false
	}

	match := PatternNone
	matches := 0
	for _, p := range Patterns {
		if rendered := p.Apply(first, last); rendered != "" && rendered == localPart {
			if matches == 0 {
				match = p
			}
			matches++
		}
	}
	if matches != 1 {
		return PatternNone, false
	}
	return match, true
}

// NormalizeName folds diacritics, lowercases, and drops everything that is not
// an ASCII letter: "José-María" becomes "josemaria".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
