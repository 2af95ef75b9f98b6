// Package sanitize implements the recursive input sanitizer applied to
// request bodies and query parameters.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	jsProtocolPattern = regexp.MustCompile(`(?i)javascript:`)
	jsHandlerPattern  = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	sqlCommentPattern = regexp.MustCompile(`--|;|/\*[\s\S]*?\*/`)
	sqlKeywordPattern = regexp.MustCompile(`(?i)(^|[^a-z0-9])(DROP|DELETE|INSERT|UPDATE|UNION|SELECT)([^a-z0-9]|$)`)
)

// String applies the full transform to a single string: strip
// script-protocol, inline-handler and SQL meta-sequences, then HTML-escape
// the dangerous characters. Escaping runs last so the `;` strip cannot
// truncate the entities it emits.
func String(s string) string {
	out := jsProtocolPattern.ReplaceAllString(s, "")
	out = jsHandlerPattern.ReplaceAllString(out, "")
	out = sqlCommentPattern.ReplaceAllString(out, "")
	for {
		replaced := sqlKeywordPattern.ReplaceAllString(out, "$1$3")
		if replaced == out {
			break
		}
		out = replaced
	}
	return htmlEscape(out)
}

// htmlEscape escapes < > " ' &. The ampersand goes first so escapes are
// not double-escaped.
func htmlEscape(s string) string {
	if !strings.ContainsAny(s, `<>"'&`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Value recursively sanitizes a decoded JSON structure. It returns a new
// value and never mutates its input. Map keys beginning with $ or
// containing a dot are dropped entirely.
func Value(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return String(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Value(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
				continue
			}
			out[k] = Value(item)
		}
		return out
	default:
		// Numbers, booleans and nulls pass through untouched.
		return v
	}
}

// Values sanitizes a string-slice map such as url.Values.
func Values(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, vs := range m {
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			continue
		}
		clean := make([]string, len(vs))
		for i, v := range vs {
			clean[i] = String(v)
		}
		out[k] = clean
	}
	return out
}
