// Package tagparse scans free text for explicit invocation tags.
//
// The grammar is:
//
//	"<run:" NAME (WS KEY "=" VALUE)* ">"
//
// where NAME is a path-like token ("math/add", dots are accepted as
// segment separators and normalized to slashes), KEY is an identifier
// and VALUE is a bare token or a quoted string. Malformed tags are
// skipped, never errored; the surrounding text is left untouched.
package tagparse

import "strings"

const marker = "<run:"

// Arg is one raw key/value pair from a tag, in source order. Values keep
// their quotes; typed conversion happens later in the coercion cascade.
type Arg struct {
	Key   string
	Value string
}

// Tag is one well-formed invocation tag found in a text block.
// Start and End delimit the exact byte span of the match, so callers can
// splice an execution result into the original text in place.
type Tag struct {
	Name  string
	Args  []Arg
	Start int
	End   int
}

// Raw returns the original tag text inside the scanned block.
func (t Tag) Raw(text string) string { return text[t.Start:t.End] }

// ArgMap flattens the argument list into a map, last key wins.
func (t Tag) ArgMap() map[string]string {
	m := make(map[string]string, len(t.Args))
	for _, a := range t.Args {
		m[a.Key] = a.Value
	}
	return m
}

// Parse extracts every well-formed tag from text in left-to-right order.
func Parse(text string) []Tag {
	var tags []Tag
	pos := 0
	for {
		i := strings.Index(text[pos:], marker)
		if i < 0 {
			return tags
		}
		start := pos + i
		tag, end, ok := parseOne(text, start)
		if ok {
			tags = append(tags, tag)
			pos = end
		} else {
			// Malformed: skip this marker, keep scanning after it.
			pos = start + len(marker)
		}
	}
}

// parseOne parses a single tag beginning at text[start]. Returns the end
// offset (one past '>') on success.
func parseOne(text string, start int) (Tag, int, bool) {
	i := start + len(marker)

	name, i, ok := scanName(text, i)
	if !ok {
		return Tag{}, 0, false
	}

	var args []Arg
	for {
		hadSpace := false
		for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
			i++
			hadSpace = true
		}
		if i >= len(text) {
			return Tag{}, 0, false
		}
		if text[i] == '>' {
			return Tag{
				Name:  name,
				Args:  args,
				Start: start,
				End:   i + 1,
			}, i + 1, true
		}
		if !hadSpace || text[i] == '\n' || text[i] == '\r' {
			return Tag{}, 0, false
		}

		key, next, ok := scanIdent(text, i)
		if !ok {
			return Tag{}, 0, false
		}
		i = next
		if i >= len(text) || text[i] != '=' {
			return Tag{}, 0, false
		}
		i++
		value, next, ok := scanValue(text, i)
		if !ok {
			return Tag{}, 0, false
		}
		i = next
		args = append(args, Arg{Key: key, Value: value})
	}
}

func scanName(text string, i int) (string, int, bool) {
	start := i
	for i < len(text) && isNameChar(text[i]) {
		i++
	}
	if i == start {
		return "", 0, false
	}
	// Dots and slashes are both accepted as separators.
	name := strings.ReplaceAll(text[start:i], ".", "/")
	return name, i, true
}

func scanIdent(text string, i int) (string, int, bool) {
	start := i
	for i < len(text) && isIdentChar(text[i]) {
		i++
	}
	if i == start {
		return "", 0, false
	}
	return text[start:i], i, true
}

// scanValue reads a bare token or a quoted string. The returned value
// keeps its surrounding quotes for the coercion cascade to strip.
func scanValue(text string, i int) (string, int, bool) {
	if i >= len(text) {
		return "", 0, false
	}
	if q := text[i]; q == '"' || q == '\'' {
		start := i
		i++
		for i < len(text) {
			switch text[i] {
			case '\\':
				i += 2
				continue
			case '\n', '\r':
				return "", 0, false
			case q:
				return text[start : i+1], i + 1, true
			}
			i++
		}
		return "", 0, false // unbalanced quote
	}
	start := i
	for i < len(text) && text[i] != ' ' && text[i] != '\t' && text[i] != '>' && text[i] != '\n' && text[i] != '\r' {
		i++
	}
	if i == start {
		return "", 0, false // empty value, e.g. "b=>"
	}
	return text[start:i], i, true
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c == '-' || c == '/' || c == '.'
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_'
}
