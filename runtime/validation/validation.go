// Package validation checks a parsed program before anything runs, so a
// misspelled built-in fails the script before the target is contacted.
package validation

import (
	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/runtime/builtins"
)

// Summary describes what a program will do.
type Summary struct {
	Statements int // all statements, loop bodies included
	Calls      int
	Remote     int // remote blocks and calls to upload/download
}

// NeedsTarget reports whether any statement can touch the target.
func (s Summary) NeedsTarget() bool {
	return s.Remote > 0
}

// ValidateCalls checks every function call against the built-in contracts
// and returns the first failure in source order.
func ValidateCalls(program *ast.Program) error {
	var first error
	ast.Inspect(program.Statements, func(n ast.Node) bool {
		if first != nil {
			return false
		}
		if call, ok := n.(*ast.FunctionCall); ok {
			if _, err := builtins.Check(call); err != nil {
				first = err
				return false
			}
		}
		return true
	})
	return first
}

// Summarize counts statements, calls and remote operations. Unknown
// built-ins are counted as calls but not as remote.
func Summarize(program *ast.Program) Summary {
	var s Summary
	ast.Inspect(program.Statements, func(n ast.Node) bool {
		switch n := n.(type) {
		case ast.Statement:
			s.Statements++
			if _, ok := n.(*ast.RemoteBlock); ok {
				s.Remote++
			}
		case *ast.FunctionCall:
			s.Calls++
			if b, ok := builtins.Lookup(n.Name); ok && b.Contract().Remote {
				s.Remote++
			}
		}
		return true
	})
	return s
}
