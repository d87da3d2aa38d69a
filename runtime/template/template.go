// Package template resolves {{ name }} markers against the active scope.
//
// Resolution happens when a statement executes, never at parse time, so a
// marker sees whatever binding is live at that moment. Only identifiers are
// allowed between the braces; anything else is left untouched as plain text.
package template

import (
	"regexp"
	"strings"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/value"
)

// LookupFunc reads a binding from the scope chain active at line.
type LookupFunc func(name string, line int) (value.Value, error)

var marker = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Resolve replaces every marker in text with the textual form of its binding.
// Array bindings raise UnsupportedInterpolation; missing bindings propagate the
// lookup error (UndefinedVariable). Text without "{{" is returned unchanged.
func Resolve(text string, line int, lookup LookupFunc) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	matches := marker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		name := text[m[2]:m[3]]

		v, err := lookup(name, line)
		if err != nil {
			return "", err
		}
		s, ok := v.(value.String)
		if !ok {
			return "", errors.NewUnsupportedInterpolation(name, line).
				WithHint("iterate with 'for x in $" + name + "' and interpolate {{ x }} instead")
		}

		b.WriteString(text[last:m[0]])
		b.WriteString(string(s))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// References lists the names referenced by markers in text, in order of first use.
func References(text string) []string {
	if !strings.Contains(text, "{{") {
		return nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, m := range marker.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
