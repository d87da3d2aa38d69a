package ast

import (
	"fmt"
	"strings"
)

// Inspect traverses statements depth-first, calling fn for every statement and
// expression. Returning false from fn skips the node's children.
func Inspect(stmts []Statement, fn func(Node) bool) {
	for _, s := range stmts {
		inspectNode(s, fn)
	}
}

func inspectNode(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *LetStatement:
		inspectNode(n.Value, fn)
	case *ForLoop:
		inspectNode(n.Iterable, fn)
		Inspect(n.Body, fn)
	case *ExpressionStatement:
		inspectNode(n.Call, fn)
	case *FunctionCall:
		for _, a := range n.Args {
			inspectNode(a, fn)
		}
	case *ArrayLiteral:
		for _, e := range n.Elements {
			inspectNode(e, fn)
		}
	}
}

// Dump renders the program as an indented tree with source lines, for debug output.
func Dump(p *Program) string {
	var b strings.Builder
	b.WriteString("Program\n")
	for _, s := range p.Statements {
		dumpStatement(&b, s, 1)
	}
	return b.String()
}

func dumpStatement(b *strings.Builder, s Statement, depth int) {
	pad := strings.Repeat("  ", depth)
	line := s.Position().Line
	switch s := s.(type) {
	case *LetStatement:
		fmt.Fprintf(b, "%sLet %s = %s  (line %d)\n", pad, s.Name, s.Value.String(), line)
	case *RemoteBlock:
		fmt.Fprintf(b, "%sRemoteBlock  (line %d)\n", pad, line)
		for _, l := range s.Lines {
			fmt.Fprintf(b, "%s  |%s  (line %d)\n", pad, l.Text, l.Pos.Line)
		}
	case *ForLoop:
		fmt.Fprintf(b, "%sFor %s in %s  (line %d)\n", pad, s.Var, s.Iterable.String(), line)
		for _, inner := range s.Body {
			dumpStatement(b, inner, depth+1)
		}
	case *ExpressionStatement:
		fmt.Fprintf(b, "%sCall %s  (line %d)\n", pad, s.Call.String(), line)
	}
}
