// Package filter evaluates path filter expressions against discovered
// markdown paths.
//
// Three forms are recognised, checked in this order:
//
//   - "docs/"  directory prefix: the path starts with it, or contains it
//     after a "/" at any depth
//   - "*.md"   wildcard: "*" matches any run of characters, the rest is literal,
//     and the whole path must match
//   - "notes"  substring: the expression appears anywhere in the path
package filter

import (
	"regexp"
	"strings"
)

// Kind identifies which rule an expression is evaluated with.
type Kind int

const (
	KindSubstring Kind = iota
	KindPrefix
	KindWildcard
)

func (k Kind) String() string {
	switch k {
	case KindPrefix:
		return "prefix"
	case KindWildcard:
		return "wildcard"
	default:
		return "substring"
	}
}

// Classify reports which rule applies to expr.
func Classify(expr string) Kind {
	switch {
	case strings.HasSuffix(expr, "/"):
		return KindPrefix
	case strings.Contains(expr, "*"):
		return KindWildcard
	default:
		return KindSubstring
	}
}

// Match reports whether path satisfies expr. Paths use forward slashes.
func Match(path, expr string) bool {
	switch Classify(expr) {
	case KindPrefix:
		return strings.HasPrefix(path, expr) || strings.Contains(path, "/"+expr)
	case KindWildcard:
		return wildcard(expr).MatchString(path)
	default:
		return strings.Contains(path, expr)
	}
}

// Matcher is a compiled filter expression, reused across a whole walk.
type Matcher struct {
	expr string
	kind Kind
	re   *regexp.Regexp
}

// Compile prepares expr for repeated matching. An empty expr matches everything.
func Compile(expr string) *Matcher {
	m := &Matcher{expr: expr, kind: Classify(expr)}
	if expr != "" && m.kind == KindWildcard {
		m.re = wildcard(expr)
	}
	return m
}

// Match reports whether path satisfies the compiled expression.
func (m *Matcher) Match(path string) bool {
	if m == nil || m.expr == "" {
		return true
	}
	if m.re != nil {
		return m.re.MatchString(path)
	}
	return Match(path, m.expr)
}

// wildcard escapes every regex metacharacter except "*" and anchors the result.
func wildcard(expr string) *regexp.Regexp {
	parts := strings.Split(expr, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
