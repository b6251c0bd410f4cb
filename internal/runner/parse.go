// Package runner builds language-specific harnesses from a question's
// declarative test cases, dispatches them to the execution sandbox and
// reduces the output into per-test verdicts.
package runner

import (
	"encoding/json"
	"strings"
)

// Arg is one named argument recovered from a loosely formatted test input.
// Order follows appearance order, which is also call-argument order.
type Arg struct {
	Name  string
	Value interface{}
}

// ParseRelaxed interprets loosely formatted text as structured data:
// strict JSON first, then a quote-normalized retry, then a top-level split
// of key=value / key:value pairs. Failure is a (nil, false) sentinel, never
// a panic; callers fall back to treating the value as an opaque string.
func ParseRelaxed(s string) (interface{}, bool) {
	if args, ok := parseArgs(s); ok {
		if len(args) == 1 && args[0].Name == "" {
			return args[0].Value, true
		}
		obj := make(map[string]interface{}, len(args))
		for _, a := range args {
			obj[a.Name] = a.Value
		}
		return obj, true
	}
	return nil, false
}

// parseArgs recovers the ordered argument list from a test input. A single
// unnamed entry means the input was one bare value.
func parseArgs(s string) ([]Arg, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}

	if v, ok := parseLiteral(trimmed); ok {
		return []Arg{{Value: v}}, true
	}

	parts := splitTopLevel(trimmed, ',')
	args := make([]Arg, 0, len(parts))
	for _, part := range parts {
		name, value, ok := splitPair(part)
		if !ok {
			return nil, false
		}
		v, ok := parseLiteral(value)
		if !ok {
			// Unparseable pair values degrade to their raw string form.
			v = strings.TrimSpace(value)
		}
		args = append(args, Arg{Name: name, Value: v})
	}
	if len(args) == 0 {
		return nil, false
	}
	return args, true
}

// parseLiteral applies the relaxed literal rules to one value: strict JSON,
// then a normalized retry for bracketed/quoted/bare forms.
func parseLiteral(s string) (interface{}, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}

	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}

	if !looksLikeLiteral(trimmed) {
		return nil, false
	}
	normalized := stripTrailingCommas(strings.ReplaceAll(trimmed, "'", `"`))
	if err := json.Unmarshal([]byte(normalized), &v); err == nil {
		return v, true
	}
	return nil, false
}

// looksLikeLiteral reports whether a value could be a bracketed list or
// object, a quoted string, or a bare JSON literal.
func looksLikeLiteral(s string) bool {
	switch s[0] {
	case '[', '{', '"', '\'':
		return true
	}
	switch s {
	case "true", "false", "null", "None", "True", "False":
		return true
	}
	return s[0] == '-' || (s[0] >= '0' && s[0] <= '9')
}

// splitPair breaks one `key=value` or `key:value` segment at its first
// top-level separator.
func splitPair(s string) (string, string, bool) {
	depth := 0
	inString := false
	for i, r := range s {
		switch {
		case inString:
			if r == '"' && (i == 0 || s[i-1] != '\\') {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			depth--
		case depth == 0 && (r == '=' || r == ':'):
			name := strings.Trim(strings.TrimSpace(s[:i]), `"'`)
			if name == "" {
				return "", "", false
			}
			return name, s[i+1:], true
		}
	}
	return "", "", false
}

// splitTopLevel splits on a separator, respecting nested brackets, braces
// and double-quoted strings.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	inString := false
	start := 0
	for i, r := range s {
		switch {
		case inString:
			if r == '"' && (i == 0 || s[i-1] != '\\') {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			depth--
		case depth == 0 && r == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// stripTrailingCommas removes commas directly preceding a closing bracket
// or brace, outside of strings.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			b.WriteRune(r)
			if r == '"' && runes[i-1] != '\\' {
				inString = false
			}
			continue
		}
		if r == '"' {
			inString = true
			b.WriteRune(r)
			continue
		}
		if r == ',' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
				j++
			}
			if j < len(runes) && (runes[j] == ']' || runes[j] == '}') {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
