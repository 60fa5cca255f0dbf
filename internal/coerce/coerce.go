// Package coerce converts raw string arguments into typed values.
//
// The cascade order is fixed: boolean literal, integer, float,
// structured JSON literal, quoted string, raw string. The order matters:
// "true" must never come back as a bare string and "42" must never stay
// a string. Input is never evaluated as code.
package coerce

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Value converts one raw argument string to its most specific type.
func Value(raw string) any {
	s := strings.TrimSpace(raw)

	if strings.EqualFold(s, "true") {
		return true
	}
	if strings.EqualFold(s, "false") {
		return false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	if isStructured(s) {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	if unquoted, ok := unquote(s); ok {
		return unquoted
	}

	return s
}

// Values converts a raw keyword-argument map in one pass.
func Values(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = Value(v)
	}
	return out
}

// isStructured reports whether s looks like a self-contained JSON array
// or object literal.
func isStructured(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch {
	case s[0] == '[' && s[len(s)-1] == ']':
		return true
	case s[0] == '{' && s[len(s)-1] == '}':
		return true
	}
	return false
}

// unquote strips a matching pair of double or single quotes, resolving
// backslash escapes for the quote character and backslash itself.
func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return "", false
	}
	if q == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u, true
		}
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c == '\\' && i+1 < len(inner) {
			next := inner[i+1]
			if next == q || next == '\\' {
				b.WriteByte(next)
				i++
				continue
			}
		}
		if c == q {
			// A bare inner quote means the value was not a single
			// quoted token; leave it to the raw fallback.
			return "", false
		}
		b.WriteByte(c)
	}
	return b.String(), true
}
