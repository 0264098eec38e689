// Package materialize turns a merged topology into the concrete form the
// engine runs: variable references resolved against the host environment,
// port strings parsed, and host-port uniqueness enforced.
package materialize

import (
	"os"
	"strings"
)

// Lookup resolves a variable name against the host environment. The bool
// reports whether the variable is set at all; an empty string with true
// means set-but-empty, which matters for the ":-" operator.
type Lookup func(name string) (string, bool)

// OSLookup reads from the process environment.
func OSLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapLookup builds a Lookup from a fixed map. Used by tests and by
// `--env` overrides on the CLI.
func MapLookup(vars map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// Interpolate expands variable references in s:
//
//	$VAR and ${VAR}     the host value, or "" when unset
//	${VAR:-default}     the host value when set AND non-empty, else default
//	${VAR-default}      the host value when set (even empty), else default
//	$$                  a literal dollar sign
//
// A "$" followed by anything else is kept literally. An unterminated
// "${" expression or an empty variable name fails with InterpolateError.
func Interpolate(s string, lookup Lookup) (string, error) {
	if !strings.ContainsRune(s, '$') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}

		// Trailing "$".
		if i+1 >= len(s) {
			b.WriteByte('$')
			break
		}

		switch next := s[i+1]; {
		case next == '$':
			b.WriteByte('$')
			i += 2
		case next == '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return "", InterpolateError.New("unterminated ${ in %q", s)
			}
			expr := s[i+2 : i+2+end]
			value, err := evalBraced(s, expr, lookup)
			if err != nil {
				return "", err
			}
			b.WriteString(value)
			i += 2 + end + 1
		case isNameStart(next):
			j := i + 1
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			value, _ := lookup(s[i+1 : j])
			b.WriteString(value)
			i = j
		default:
			b.WriteByte('$')
			i++
		}
	}

	return b.String(), nil
}

// evalBraced evaluates the inside of a ${...} expression.
func evalBraced(full, expr string, lookup Lookup) (string, error) {
	name := expr
	op := ""
	def := ""

	if idx := strings.Index(expr, ":-"); idx >= 0 {
		name, op, def = expr[:idx], ":-", expr[idx+2:]
	} else if idx := strings.IndexByte(expr, '-'); idx >= 0 {
		name, op, def = expr[:idx], "-", expr[idx+1:]
	}

	if name == "" || !validName(name) {
		return "", InterpolateError.New("invalid variable name %q in %q", name, full)
	}

	value, set := lookup(name)
	switch op {
	case ":-":
		if set && value != "" {
			return value, nil
		}
		return def, nil
	case "-":
		if set {
			return value, nil
		}
		return def, nil
	default:
		return value, nil
	}
}

func validName(name string) bool {
	if !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameChar(name[i]) {
			return false
		}
	}
	return true
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
