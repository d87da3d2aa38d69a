package builtins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cosiner/argv"
	"github.com/rs/zerolog"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/invariant"
	"github.com/seeed-sh/seeed/core/value"
	"github.com/seeed-sh/seeed/runtime/console"
)

// Host is the interpreter state a built-in may use.
type Host interface {
	// Eval evaluates an argument in the active scope, resolving templates.
	Eval(expr ast.Expression) (value.Value, error)
	// Remote resolves the target and opens the session on first use.
	Remote(ctx context.Context, line int) (Transport, error)
}

// Transport moves file contents to and from the target.
type Transport interface {
	TransferContent(ctx context.Context, data []byte, path string, line int) error
	FetchContent(ctx context.Context, path string, line int) ([]byte, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithWorkDir resolves relative local paths (upload sources, download
// destinations, exec) against dir instead of the process working directory.
func WithWorkDir(dir string) Option {
	return func(d *Dispatcher) {
		d.dir = dir
	}
}

// Dispatcher runs built-in calls.
type Dispatcher struct {
	console *console.Console
	logger  zerolog.Logger
	dir     string
}

// NewDispatcher creates a dispatcher writing echo output to c.
func NewDispatcher(c *console.Console, opts ...Option) *Dispatcher {
	invariant.NotNil(c, "console")

	d := &Dispatcher{console: c, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call executes call. Unknown names and wrong arity are rejected before any
// argument is evaluated.
func (d *Dispatcher) Call(ctx context.Context, host Host, call *ast.FunctionCall) error {
	invariant.NotNil(host, "host")

	b, err := Check(call)
	if err != nil {
		return err
	}

	d.logger.Debug().Str("builtin", b.String()).Int("line", call.Pos.Line).Int("args", len(call.Args)).Msg("call")

	switch b {
	case Echo:
		return d.echo(host, call)
	case Upload:
		return d.upload(ctx, host, call)
	case Download:
		return d.download(ctx, host, call)
	case Exec:
		return d.exec(host, call)
	default:
		invariant.Invariant(false, "unhandled builtin %s", b)
		return nil
	}
}

func (d *Dispatcher) echo(host Host, call *ast.FunctionCall) error {
	texts := make([]string, 0, len(call.Args))
	for i, arg := range call.Args {
		text, err := stringArg(host, call, arg, fmt.Sprintf("argument %d", i+1))
		if err != nil {
			return err
		}
		texts = append(texts, text)
	}
	for _, text := range texts {
		d.console.Echo(text)
	}
	return nil
}

// upload copies a variable's bytes, a heredoc's body, or the contents of a
// local file named by a string literal to the target.
func (d *Dispatcher) upload(ctx context.Context, host Host, call *ast.FunctionCall) error {
	line := call.Pos.Line

	source, err := stringArg(host, call, call.Args[0], "source")
	if err != nil {
		return err
	}
	dest, err := stringArg(host, call, call.Args[1], "destination")
	if err != nil {
		return err
	}

	data := []byte(source)
	if _, isPath := call.Args[0].(*ast.StringLiteral); isPath {
		path := d.localPath(source)
		data, err = os.ReadFile(path)
		if err != nil {
			return errors.NewUploadError(line, dest, err).
				WithHint(fmt.Sprintf("a quoted source is read from the local file %s; use a variable or heredoc to upload text", path))
		}
	}

	transport, err := host.Remote(ctx, line)
	if err != nil {
		return err
	}
	if err := transport.TransferContent(ctx, data, dest, line); err != nil {
		return err
	}

	d.console.Statusf("uploaded %d bytes to %s", len(data), dest)
	return nil
}

func (d *Dispatcher) download(ctx context.Context, host Host, call *ast.FunctionCall) error {
	line := call.Pos.Line

	remotePath, err := stringArg(host, call, call.Args[0], "remote path")
	if err != nil {
		return err
	}
	localArg, err := stringArg(host, call, call.Args[1], "local path")
	if err != nil {
		return err
	}

	transport, err := host.Remote(ctx, line)
	if err != nil {
		return err
	}
	data, err := transport.FetchContent(ctx, remotePath, line)
	if err != nil {
		return err
	}

	localPath := d.localPath(localArg)
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return errors.NewDownloadError(line, remotePath, err)
	}

	d.console.Statusf("downloaded %s to %s", remotePath, localPath)
	return nil
}

// exec runs a local command line. Pipelines are supported; no shell is
// involved, so globbing and redirection are not.
func (d *Dispatcher) exec(host Host, call *ast.FunctionCall) error {
	line := call.Pos.Line

	command, err := stringArg(host, call, call.Args[0], "command")
	if err != nil {
		return err
	}

	sections, err := argv.Argv(command,
		func(sub string) (string, error) {
			return "", fmt.Errorf("command substitution `%s` is not supported", sub)
		},
		func(s string) (string, error) {
			return os.ExpandEnv(s), nil
		},
	)
	if err != nil {
		return errors.NewLocalCommandError(line, command, err)
	}
	if len(sections) == 0 {
		return errors.NewLocalCommandError(line, command, fmt.Errorf("empty command"))
	}

	cmds, err := argv.Cmds(sections...)
	if err != nil {
		return errors.NewLocalCommandError(line, command, err)
	}
	for _, c := range cmds {
		c.Dir = d.dir
	}

	d.logger.Debug().Int("line", line).Str("command", command).Int("stages", len(cmds)).Msg("local exec")

	if err := argv.Pipe(nil, d.console.Stdout(), d.console.Stderr(), cmds...); err != nil {
		return errors.NewLocalCommandError(line, command, err)
	}
	return nil
}

func (d *Dispatcher) localPath(path string) string {
	if d.dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.dir, path)
}

// stringArg evaluates arg and requires a string. Array variables get the
// interpolation error so the message names the variable.
func stringArg(host Host, call *ast.FunctionCall, arg ast.Expression, what string) (string, error) {
	v, err := host.Eval(arg)
	if err != nil {
		return "", err
	}

	if s, ok := v.(value.String); ok {
		return s.Text(), nil
	}

	line := arg.Position().Line
	if ref, ok := arg.(*ast.VariableRef); ok {
		return "", errors.NewUnsupportedInterpolation(ref.Name, line).
			WithHint(fmt.Sprintf("%s expects text; loop over $%s to use its elements", call.Name, ref.Name))
	}
	return "", errors.NewTypeError(line, "%s: %s must be a string, got %s",
		call.Name, what, v.Kind())
}
