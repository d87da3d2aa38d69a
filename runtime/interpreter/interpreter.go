// Package interpreter executes a parsed seeed program statement by statement.
//
// Statements run strictly in order on a single goroutine. The target is
// resolved and the session opened only when the first remote-affecting
// statement executes; a program without one never touches the network.
package interpreter

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/invariant"
	"github.com/seeed-sh/seeed/core/value"
	"github.com/seeed-sh/seeed/runtime/builtins"
	"github.com/seeed-sh/seeed/runtime/console"
	"github.com/seeed-sh/seeed/runtime/remote"
	"github.com/seeed-sh/seeed/runtime/scope"
	"github.com/seeed-sh/seeed/runtime/target"
	"github.com/seeed-sh/seeed/runtime/template"
)

// Remote is the session owner the interpreter borrows for remote work.
// *remote.Executor implements it.
type Remote interface {
	EnsureSession(ctx context.Context, spec target.Spec) error
	RunBlock(ctx context.Context, lines []ast.RemoteLine, resolve remote.ResolveFunc) error
	builtins.Transport
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithGlobals seeds an outer frame with string variables, typically loaded
// from a .env file. Script declarations shadow them.
func WithGlobals(globals map[string]string) Option {
	return func(in *Interpreter) {
		in.globals = globals
	}
}

// WithTarget sets the target given on the command line. It takes precedence
// over any "target" binding in the script.
func WithTarget(spec *target.Spec) Option {
	return func(in *Interpreter) {
		in.cliTarget = spec
	}
}

// WithConsole sets where echo output and local command output go.
func WithConsole(c *console.Console) Option {
	return func(in *Interpreter) {
		in.console = c
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = logger
	}
}

// WithWorkDir resolves relative local paths against dir.
func WithWorkDir(dir string) Option {
	return func(in *Interpreter) {
		in.workDir = dir
	}
}

// Interpreter holds the state of one run.
type Interpreter struct {
	remote     Remote
	dispatcher *builtins.Dispatcher
	console    *console.Console
	logger     zerolog.Logger

	globals   map[string]string
	cliTarget *target.Spec
	workDir   string

	arena   *scope.Arena
	current scope.ID

	target   target.Spec
	resolved bool
}

// New creates an interpreter that delegates remote work to r.
func New(r Remote, opts ...Option) *Interpreter {
	invariant.NotNil(r, "remote")

	in := &Interpreter{
		remote:  r,
		console: console.New(os.Stdout, os.Stderr, false),
		logger:  zerolog.Nop(),
		arena:   scope.New(),
		current: scope.Root,
	}
	for _, opt := range opts {
		opt(in)
	}

	in.dispatcher = builtins.NewDispatcher(in.console,
		builtins.WithLogger(in.logger),
		builtins.WithWorkDir(in.workDir))

	for name, v := range in.globals {
		in.arena.Declare(scope.Root, name, value.String(v))
	}
	// The script runs one frame below the globals so a let can shadow them.
	in.current = in.arena.Child(scope.Root)

	return in
}

// Execute runs program to completion or to the first error.
func (in *Interpreter) Execute(ctx context.Context, program *ast.Program) error {
	invariant.NotNil(ctx, "ctx")
	invariant.NotNil(program, "program")

	return in.block(ctx, program.Statements)
}

// Target returns the resolved target, if any statement needed one.
func (in *Interpreter) Target() (target.Spec, bool) {
	return in.target, in.resolved
}

func (in *Interpreter) block(ctx context.Context, stmts []ast.Statement) error {
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.statement(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) statement(ctx context.Context, stmt ast.Statement) error {
	in.logger.Debug().Int("line", stmt.Position().Line).Str("stmt", stmt.String()).Msg("execute")

	switch s := stmt.(type) {
	case *ast.LetStatement:
		v, err := in.eval(s.Value)
		if err != nil {
			return err
		}
		in.arena.Declare(in.current, s.Name, v)
		return nil

	case *ast.RemoteBlock:
		if err := in.ensureRemote(ctx, s.Pos.Line); err != nil {
			return err
		}
		return in.remote.RunBlock(ctx, s.Lines, in.resolveLine)

	case *ast.ForLoop:
		return in.forLoop(ctx, s)

	case *ast.ExpressionStatement:
		return in.dispatcher.Call(ctx, host{in}, s.Call)

	default:
		invariant.Invariant(false, "unhandled statement %T", stmt)
		return nil
	}
}

func (in *Interpreter) forLoop(ctx context.Context, loop *ast.ForLoop) error {
	v, err := in.eval(loop.Iterable)
	if err != nil {
		return err
	}
	items, ok := v.(value.Array)
	if !ok {
		return errors.NewTypeError(loop.Pos.Line, "for %s in %s: expected an array, got %s",
			loop.Var, loop.Iterable.String(), v.Kind())
	}

	for _, item := range items {
		if err := in.iteration(ctx, loop, item); err != nil {
			return err
		}
	}
	return nil
}

// iteration runs the loop body once in a fresh child frame and releases it
// before returning, on success or failure.
func (in *Interpreter) iteration(ctx context.Context, loop *ast.ForLoop, item value.String) error {
	parent := in.current
	child := in.arena.Child(parent)
	in.arena.Declare(child, loop.Var, item)
	in.current = child

	defer func() {
		in.current = parent
		in.arena.Release(child)
	}()

	return in.block(ctx, loop.Body)
}

// eval computes the value of expr in the current scope. Strings and heredocs
// are template-resolved; array literal elements are taken as written.
func (in *Interpreter) eval(expr ast.Expression) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.StringLiteral:
		text, err := in.resolveLine(e.Value, e.Pos.Line)
		if err != nil {
			return nil, err
		}
		return value.String(text), nil

	case *ast.Heredoc:
		text, err := in.resolveLine(e.Body, e.Pos.Line)
		if err != nil {
			return nil, err
		}
		return value.String(text), nil

	case *ast.ArrayLiteral:
		items := make(value.Array, len(e.Elements))
		for i, el := range e.Elements {
			items[i] = value.String(el.Value)
		}
		return items, nil

	case *ast.VariableRef:
		return in.arena.Lookup(in.current, e.Name, e.Pos.Line)

	case *ast.FunctionCall:
		return nil, errors.NewTypeError(e.Pos.Line, "%s(...) produces no value and cannot be used as an expression", e.Name).
			At(e.Pos.Column).
			WithHint("call it on its own line")

	default:
		invariant.Invariant(false, "unhandled expression %T", expr)
		return nil, nil
	}
}

func (in *Interpreter) lookup(name string, line int) (value.Value, error) {
	return in.arena.Lookup(in.current, name, line)
}

func (in *Interpreter) resolveLine(text string, line int) (string, error) {
	resolved, err := template.Resolve(text, line, in.lookup)
	if err != nil {
		return "", err
	}
	if resolved != text {
		in.logger.Debug().Int("line", line).Str("resolved", resolved).Strs("refs", template.References(text)).Msg("template")
	}
	return resolved, nil
}

// ensureRemote resolves the target and opens the session the first time a
// remote-affecting statement runs.
func (in *Interpreter) ensureRemote(ctx context.Context, line int) error {
	if in.resolved {
		return nil
	}

	scripted, err := in.arena.Lookup(in.current, target.VariableName, line)
	present := err == nil

	spec, err := target.Resolve(in.cliTarget, scripted, present, line)
	if err != nil {
		return err
	}
	in.logger.Debug().Str("target", spec.String()).Bool("from_cli", in.cliTarget != nil).Msg("target resolved")

	if err := in.remote.EnsureSession(ctx, spec); err != nil {
		if e, ok := err.(*errors.Error); ok && e.Line == 0 {
			e.Line = line
		}
		return err
	}

	in.target = spec
	in.resolved = true
	return nil
}

// host exposes the interpreter to built-ins without widening its public API.
type host struct {
	in *Interpreter
}

func (h host) Eval(expr ast.Expression) (value.Value, error) {
	return h.in.eval(expr)
}

func (h host) Remote(ctx context.Context, line int) (builtins.Transport, error) {
	if err := h.in.ensureRemote(ctx, line); err != nil {
		return nil, err
	}
	return h.in.remote, nil
}
