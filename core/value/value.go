// Package value defines the runtime values a seeed script can bind.
//
// The set is closed: a Value is either a String or an Array of Strings.
// There are no numbers, booleans or objects.
package value

import "strings"

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union. Only types in this package implement it.
type Value interface {
	Kind() Kind
	sealed()
}

// String is a text value.
type String string

func (String) Kind() Kind { return KindString }
func (String) sealed()    {}

// Text returns the string contents.
func (s String) Text() string { return string(s) }

// Array is an ordered sequence of strings.
type Array []String

func (Array) Kind() Kind { return KindArray }
func (Array) sealed()    {}

// Strings returns the elements as plain strings.
func (a Array) Strings() []string {
	out := make([]string, len(a))
	for i, s := range a {
		out[i] = string(s)
	}
	return out
}

// ArrayOf builds an Array from plain strings.
func ArrayOf(items ...string) Array {
	out := make(Array, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return out
}

// Describe renders a value for diagnostics (debug output, AST dumps).
// It is not the interpolation form: arrays have none.
func Describe(v Value) string {
	switch v := v.(type) {
	case String:
		return `"` + string(v) + `"`
	case Array:
		parts := make([]string, len(v))
		for i, s := range v {
			parts[i] = `"` + string(s) + `"`
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<nil>"
	}
}
