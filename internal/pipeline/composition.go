package pipeline

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/citytrain/internal/enhance"
)

// DefaultComposition is used when no composition is given.
const DefaultComposition = enhance.NameHash

// FuncInterface is one requested pipeline step. Errors collects non-fatal
// diagnostics: an unknown name, or a failure of the step at run time.
type FuncInterface struct {
	FName  string         `json:"fname" yaml:"fname"`
	Params enhance.Params `json:"params" yaml:"params,omitempty"`
	Errors []string       `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ParseComposition parses a composition string into ordered steps.
//
// Grammar:
//
//	composition = step { "|" step }
//	step        = name [ "(" [ arg { "," arg } ] ")" ]
//	arg         = key "=" value
//
// Values parse as an integer, then true/false, then a string. Double-quoted
// values are always strings and may contain "|", "," and ")". An empty
// composition is DefaultComposition.
func ParseComposition(s string) ([]FuncInterface, error) {
	if strings.TrimSpace(s) == "" {
		return []FuncInterface{{FName: DefaultComposition, Params: enhance.Params{}}}, nil
	}

	segments, err := splitOutside(s, '|')
	if err != nil {
		return nil, err
	}

	funcs := make([]FuncInterface, 0, len(segments))
	for i, seg := range segments {
		fi, err := parseStep(strings.TrimSpace(seg))
		if err != nil {
			return nil, fmt.Errorf("composition step %d: %w", i, err)
		}
		funcs = append(funcs, fi)
	}
	return funcs, nil
}

func parseStep(s string) (FuncInterface, error) {
	if s == "" {
		return FuncInterface{}, fmt.Errorf("empty step")
	}

	name, rest, hasArgs := strings.Cut(s, "(")
	name = strings.TrimSpace(name)
	if !validName(name) {
		return FuncInterface{}, fmt.Errorf("invalid function name %q", name)
	}

	fi := FuncInterface{FName: name, Params: enhance.Params{}}
	if !hasArgs {
		return fi, nil
	}

	rest = strings.TrimSpace(rest)
	if !strings.HasSuffix(rest, ")") {
		return FuncInterface{}, fmt.Errorf("%s: missing closing parenthesis", name)
	}
	body := strings.TrimSpace(strings.TrimSuffix(rest, ")"))
	if body == "" {
		return fi, nil
	}

	args, err := splitOutside(body, ',')
	if err != nil {
		return FuncInterface{}, fmt.Errorf("%s: %w", name, err)
	}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return FuncInterface{}, fmt.Errorf("%s: argument %q is not key=value", name, strings.TrimSpace(arg))
		}
		if _, dup := fi.Params[key]; dup {
			return FuncInterface{}, fmt.Errorf("%s: duplicate argument %q", name, key)
		}
		v, err := parseValue(strings.TrimSpace(raw))
		if err != nil {
			return FuncInterface{}, fmt.Errorf("%s: argument %s: %w", name, key, err)
		}
		fi.Params[key] = v
	}
	return fi, nil
}

func parseValue(raw string) (any, error) {
	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return nil, fmt.Errorf("bad quoted value %s", raw)
		}
		return s, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return raw, nil
}

// splitOutside splits s on sep, ignoring separators inside double quotes
// or parentheses.
func splitOutside(s string, sep rune) ([]string, error) {
	var (
		parts   []string
		start   int
		depth   int
		inQuote bool
		escaped bool
	)
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parenthesis at offset %d", i)
			}
		case r == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parenthesis")
	}
	return append(parts, s[start:]), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

// LoadCompositionFile reads a YAML list of steps:
//
//	- fname: stripHTML
//	- fname: addVoice
//	  params:
//	    voice: Joanna
func LoadCompositionFile(path string) ([]FuncInterface, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read composition %s: %w", path, err)
	}

	var funcs []FuncInterface
	if err := yaml.Unmarshal(raw, &funcs); err != nil {
		return nil, fmt.Errorf("parse composition %s: %w", path, err)
	}
	if len(funcs) == 0 {
		return ParseComposition("")
	}

	for i := range funcs {
		if !validName(funcs[i].FName) {
			return nil, fmt.Errorf("composition %s step %d: invalid function name %q", path, i, funcs[i].FName)
		}
		if funcs[i].Params == nil {
			funcs[i].Params = enhance.Params{}
		}
		funcs[i].Errors = nil
	}
	return funcs, nil
}

// FormatComposition renders steps back into composition syntax.
func FormatComposition(funcs []FuncInterface) string {
	steps := make([]string, len(funcs))
	for i, fi := range funcs {
		if len(fi.Params) == 0 {
			steps[i] = fi.FName
			continue
		}
		keys := slices.Sorted(maps.Keys(fi.Params))
		args := make([]string, len(keys))
		for j, k := range keys {
			args[j] = k + "=" + formatValue(fi.Params[k])
		}
		steps[i] = fi.FName + "(" + strings.Join(args, ", ") + ")"
	}
	return strings.Join(steps, "|")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		if _, err := strconv.Atoi(x); err == nil || x == "true" || x == "false" ||
			strings.ContainsAny(x, `|,()"= `) || x == "" {
			return strconv.Quote(x)
		}
		return x
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}
