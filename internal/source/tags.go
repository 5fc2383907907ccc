package source

import (
	"strconv"
	"strings"
)

// Tag is one key:"value" entry of a struct tag. Order is preserved so that
// user-added tags survive edits in place.
type Tag struct {
	Key   string
	Value string
}

// ParseTags splits a raw struct tag literal (with or without backticks)
// into its entries, preserving order. Malformed trailing content is dropped.
func ParseTags(raw string) []Tag {
	raw = strings.Trim(raw, "`")

	var tags []Tag
	for raw != "" {
		// Skip leading spaces.
		i := 0
		for i < len(raw) && raw[i] == ' ' {
			i++
		}
		raw = raw[i:]
		if raw == "" {
			break
		}

		// Key runs to the first colon.
		i = 0
		for i < len(raw) && raw[i] != ':' && raw[i] != ' ' {
			i++
		}
		if i == len(raw) || raw[i] != ':' || i+1 >= len(raw) || raw[i+1] != '"' {
			break
		}
		key := raw[:i]
		raw = raw[i+1:]

		// Quoted value.
		i = 1
		for i < len(raw) && raw[i] != '"' {
			if raw[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(raw) {
			break
		}
		quoted := raw[:i+1]
		raw = raw[i+1:]

		value, err := strconv.Unquote(quoted)
		if err != nil {
			continue
		}
		tags = append(tags, Tag{Key: key, Value: value})
	}
	return tags
}

// FormatTags renders tag entries back into a backticked struct tag literal.
// Returns "" when no entries remain, so empty tags are removed entirely.
func FormatTags(tags []Tag) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.Key + ":" + strconv.Quote(t.Value)
	}
	return "`" + strings.Join(parts, " ") + "`"
}

// TagValue returns the first value for key, if present.
func TagValue(tags []Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// TagValues returns every value recorded for key, in order.
func TagValues(tags []Tag, key string) []string {
	var out []string
	for _, t := range tags {
		if t.Key == key {
			out = append(out, t.Value)
		}
	}
	return out
}

// ReplaceTagKey removes every entry for key and appends the given values in
// its place. Other keys keep their relative order.
func ReplaceTagKey(tags []Tag, key string, values []string) []Tag {
	out := make([]Tag, 0, len(tags)+len(values))
	for _, t := range tags {
		if t.Key != key {
			out = append(out, t)
		}
	}
	for _, v := range values {
		out = append(out, Tag{Key: key, Value: v})
	}
	return out
}
