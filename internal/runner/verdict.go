package runner

import (
	"encoding/json"
	"strings"
)

// CaseVerdict is the pass/fail classification of one test case.
type CaseVerdict struct {
	Index     int
	Passed    bool
	Expected  string
	Actual    string
	NoVerdict bool   // true when execution failed before producing output
	Message   string // error detail for failed or verdict-less cases
}

// harnessLine is one structured result record emitted by a harness. Out is
// kept raw so an explicit null (an undefined return) still counts as output.
type harnessLine struct {
	Case  int             `json:"case"`
	Out   json.RawMessage `json:"out"`
	Error string          `json:"error"`
}

// parseHarnessOutput picks the structured result lines out of harness
// stdout. Every other line is noise and silently skipped.
func parseHarnessOutput(stdout string) map[int]harnessLine {
	results := make(map[int]harnessLine)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var rec harnessLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if len(rec.Out) == 0 && rec.Error == "" {
			continue
		}
		results[rec.Case] = rec
	}
	return results
}

// NormalizeValue canonicalizes a value for output comparison: numbers and
// booleans stringify directly, arrays and objects take their canonical JSON
// form, and strings are re-parsed as JSON when possible or have one layer
// of enclosing quotes stripped before trimming.
func NormalizeValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed != "" {
			var parsed interface{}
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				// A string that parses to itself would recurse forever.
				if s, ok := parsed.(string); !ok || s != trimmed {
					return NormalizeValue(parsed)
				}
			}
		}
		return strings.TrimSpace(stripQuoteLayer(trimmed))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// OutputsMatch is the sole correctness oracle: symmetric normalization
// followed by plain string equality.
func OutputsMatch(expected, actual interface{}) bool {
	return NormalizeValue(expected) == NormalizeValue(actual)
}

// stripQuoteLayer removes one layer of matching enclosing quotes.
func stripQuoteLayer(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
