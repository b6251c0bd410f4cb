package runner

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"pairprep/internal/platform"
	appErr "pairprep/pkg/errors"
)

// Language is an execution language for the sandbox.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
)

// SupportedLanguages lists languages the run path accepts. Java is part of
// the session language set but has no harness yet.
var SupportedLanguages = []Language{LangJavaScript, LangPython, LangTypeScript}

// SessionLanguages is the selectable set for a session. Java can be chosen
// for the shared editor even though BuildHarness rejects it.
var SessionLanguages = []Language{LangJavaScript, LangPython, LangTypeScript, LangJava}

// Harness is a generated executable script plus its sandbox metadata.
type Harness struct {
	Language Language
	Version  string
	FileName string
	Content  string
	Cases    int
}

// FunctionName derives the call-target name from a question title:
// camel-case join of alphanumeric words, `solve` prefix when the result
// starts with a digit, `solution` when empty.
func FunctionName(title string) string {
	words := splitWords(title)
	if len(words) == 0 {
		return "solution"
	}
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(mapFirstRune(w, unicode.ToLower))
			continue
		}
		b.WriteString(mapFirstRune(w, unicode.ToUpper))
	}
	name := b.String()
	if name[0] >= '0' && name[0] <= '9' {
		name = "solve" + mapFirstRune(name, unicode.ToUpper)
	}
	return name
}

// mapFirstRune rewrites only the leading rune; titles may start with a
// multi-byte letter.
func mapFirstRune(w string, f func(rune) rune) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(f(r)) + w[size:]
}

func splitWords(title string) []string {
	var words []string
	var current strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// BuildHarness assembles one executable script invoking the user's solution
// against every test case, printing one JSON result line per case.
func BuildHarness(lang Language, question platform.Question, userCode string) (Harness, error) {
	cases, err := caseArgs(question.TestCases)
	if err != nil {
		return Harness{}, err
	}
	argsJSON, err := json.Marshal(cases)
	if err != nil {
		return Harness{}, appErr.Wrap(err, appErr.HarnessBuildFailed)
	}

	fn := FunctionName(question.Title)
	switch lang {
	case LangJavaScript, LangTypeScript:
		return jsHarness(lang, question, userCode, fn, string(argsJSON), len(cases)), nil
	case LangPython:
		return pythonHarness(question, userCode, fn, string(argsJSON), len(cases)), nil
	case LangJava:
		return Harness{}, appErr.Newf(appErr.LanguageNotSupported, "java execution is not supported yet")
	default:
		return Harness{}, appErr.Newf(appErr.LanguageNotSupported, "unsupported language %q", lang)
	}
}

// caseArgs converts every test case input into an ordered argument list.
// Inputs that resist relaxed parsing degrade to one opaque string argument.
func caseArgs(testCases []platform.TestCase) ([][]interface{}, error) {
	all := make([][]interface{}, 0, len(testCases))
	for _, tc := range testCases {
		raw := rawValue(tc.Input)
		if s, ok := raw.(string); ok {
			if args, parsed := parseArgs(s); parsed {
				values := make([]interface{}, len(args))
				for i, a := range args {
					values[i] = a.Value
				}
				all = append(all, values)
				continue
			}
			all = append(all, []interface{}{s})
			continue
		}
		// Structured input: an object's values become positional arguments
		// in declaration order when possible, anything else is one argument.
		if obj, ok := raw.(map[string]interface{}); ok {
			if args, parsed := orderedObjectArgs(tc.Input, obj); parsed {
				all = append(all, args)
				continue
			}
		}
		all = append(all, []interface{}{raw})
	}
	return all, nil
}

// rawValue decodes a polymorphic raw field; invalid JSON stays a string.
func rawValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// orderedObjectArgs recovers key order from the raw JSON object text so a
// structured {nums: [...], target: 9} input keeps its argument order.
func orderedObjectArgs(raw json.RawMessage, obj map[string]interface{}) ([]interface{}, bool) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, false
	}
	var args []interface{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, false
		}
		args = append(args, obj[key])
	}
	return args, true
}

func needsListPrelude(question platform.Question, userCode string, marker string) bool {
	for _, topic := range question.Topics {
		if strings.Contains(strings.ToLower(topic), "linked list") {
			return !strings.Contains(userCode, marker)
		}
	}
	return false
}

func needsTreePrelude(question platform.Question, userCode string, marker string) bool {
	for _, topic := range question.Topics {
		lower := strings.ToLower(topic)
		if strings.Contains(lower, "tree") {
			return !strings.Contains(userCode, marker)
		}
	}
	return false
}

func jsHarness(lang Language, question platform.Question, userCode, fn, argsJSON string, cases int) Harness {
	var b strings.Builder
	if needsListPrelude(question, userCode, "ListNode") {
		b.WriteString(jsListPrelude)
	}
	if needsTreePrelude(question, userCode, "TreeNode") {
		b.WriteString(jsTreePrelude)
	}
	b.WriteString(userCode)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "const __cases = %s;\n", argsJSON)
	fmt.Fprintf(&b, `for (let __i = 0; __i < __cases.length; __i++) {
  try {
    const __out = %s(...__cases[__i]);
    console.log(JSON.stringify({ case: __i, out: __out === undefined ? null : __out }));
  } catch (__e) {
    console.log(JSON.stringify({ case: __i, error: String((__e && __e.message) || __e) }));
  }
}
`, fn)

	fileName := "main.js"
	version := "18.15.0"
	if lang == LangTypeScript {
		fileName = "main.ts"
		version = "5.0.3"
	}
	return Harness{Language: lang, Version: version, FileName: fileName, Content: b.String(), Cases: cases}
}

func pythonHarness(question platform.Question, userCode, fn, argsJSON string, cases int) Harness {
	var b strings.Builder
	b.WriteString("import json\n\n")
	if needsListPrelude(question, userCode, "ListNode") {
		b.WriteString(pyListPrelude)
	}
	if needsTreePrelude(question, userCode, "TreeNode") {
		b.WriteString(pyTreePrelude)
	}
	b.WriteString(userCode)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "__cases = json.loads(%q)\n", argsJSON)
	fmt.Fprintf(&b, `for __i, __args in enumerate(__cases):
    try:
        __out = %s(*__args)
        print(json.dumps({"case": __i, "out": __out}))
    except Exception as __e:
        print(json.dumps({"case": __i, "error": str(__e)}))
`, fn)

	return Harness{Language: LangPython, Version: "3.10.0", FileName: "main.py", Content: b.String(), Cases: cases}
}
