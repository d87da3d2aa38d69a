package ast

import (
	"fmt"
	"strings"
)

// Node represents any node in the AST
type Node interface {
	String() string
	Position() Position
}

// Position represents source location information
type Position struct {
	Line   int
	Column int
}

// Statement is a node executed for its effect.
type Statement interface {
	Node
	statementNode()
}

// Expression is a node evaluated to a value.
type Expression interface {
	Node
	expressionNode()
}

// Program represents the root of a parsed script
type Program struct {
	Statements []Statement
}

func (p *Program) String() string {
	parts := make([]string, len(p.Statements))
	for i, s := range p.Statements {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n")
}

func (p *Program) Position() Position {
	if len(p.Statements) == 0 {
		return Position{Line: 1, Column: 1}
	}
	return p.Statements[0].Position()
}

// LetStatement binds the value of an expression to a name in the current scope.
type LetStatement struct {
	Name  string
	Value Expression
	Pos   Position
}

func (*LetStatement) statementNode()       {}
func (s *LetStatement) Position() Position { return s.Pos }
func (s *LetStatement) String() string {
	return fmt.Sprintf("let %s = %s", s.Name, s.Value.String())
}

// RemoteLine is one raw command-line template of a remote block.
// Text is everything after the leading '|', unmodified.
type RemoteLine struct {
	Text string
	Pos  Position
}

// RemoteBlock is a '+ ... +' block (or a standalone '|' line) whose lines run on the target.
type RemoteBlock struct {
	Lines []RemoteLine
	Pos   Position
}

func (*RemoteBlock) statementNode()       {}
func (b *RemoteBlock) Position() Position { return b.Pos }
func (b *RemoteBlock) String() string {
	var sb strings.Builder
	sb.WriteString("+\n")
	for _, l := range b.Lines {
		sb.WriteString("|")
		sb.WriteString(l.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("+")
	return sb.String()
}

// ForLoop iterates over an array, binding each element to Var in a fresh scope.
type ForLoop struct {
	Var      string
	Iterable Expression
	Body     []Statement
	Pos      Position
}

func (*ForLoop) statementNode()       {}
func (f *ForLoop) Position() Position { return f.Pos }
func (f *ForLoop) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "for %s in %s {\n", f.Var, f.Iterable.String())
	for _, s := range f.Body {
		sb.WriteString(indent(s.String()))
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// ExpressionStatement is a bare function call used as a statement.
type ExpressionStatement struct {
	Call *FunctionCall
}

func (*ExpressionStatement) statementNode()       {}
func (s *ExpressionStatement) Position() Position { return s.Call.Pos }
func (s *ExpressionStatement) String() string     { return s.Call.String() }

// FunctionCall invokes a built-in.
type FunctionCall struct {
	Name string
	Args []Expression
	Pos  Position
}

func (*FunctionCall) expressionNode()      {}
func (c *FunctionCall) Position() Position { return c.Pos }
func (c *FunctionCall) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

// StringLiteral is a quoted string; Value excludes the quotes.
type StringLiteral struct {
	Value string
	Pos   Position
}

func (*StringLiteral) expressionNode()      {}
func (s *StringLiteral) Position() Position { return s.Pos }
func (s *StringLiteral) String() string     { return fmt.Sprintf("%q", s.Value) }

// Heredoc is a verbatim multi-line literal delimited by <<<TAG ... TAG>>>.
type Heredoc struct {
	Tag  string
	Body string
	Pos  Position
}

func (*Heredoc) expressionNode()      {}
func (h *Heredoc) Position() Position { return h.Pos }
func (h *Heredoc) String() string {
	return fmt.Sprintf("<<<%s\n%s%s>>>", h.Tag, h.Body, h.Tag)
}

// ArrayLiteral is a bracketed list of string literals.
type ArrayLiteral struct {
	Elements []*StringLiteral
	Pos      Position
}

func (*ArrayLiteral) expressionNode()      {}
func (a *ArrayLiteral) Position() Position { return a.Pos }
func (a *ArrayLiteral) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// VariableRef reads a binding from the scope chain. Bare is true when the
// reference was written without the '$' sigil (e.g. a loop variable in echo(p)).
type VariableRef struct {
	Name string
	Bare bool
	Pos  Position
}

func (*VariableRef) expressionNode()      {}
func (v *VariableRef) Position() Position { return v.Pos }
func (v *VariableRef) String() string {
	if v.Bare {
		return v.Name
	}
	return "$" + v.Name
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
