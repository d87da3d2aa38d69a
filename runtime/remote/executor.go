// Package remote owns the SSH session of a run and executes remote blocks,
// uploads and downloads on the target.
package remote

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/invariant"
	"github.com/seeed-sh/seeed/runtime/console"
	"github.com/seeed-sh/seeed/runtime/target"
)

// DefaultShell runs each remote line when Config.Shell is empty.
const DefaultShell = "/bin/bash"

// stderrLimit bounds the stderr kept for a failing command's report.
const stderrLimit = 64 * 1024

// Config controls how commands are run on the target.
type Config struct {
	Shell string // interpreter for each line, e.g. /bin/bash
	Sudo  bool   // wrap every command in "sudo -n"
	Debug bool

	KnownHostsPath        string // default ~/.ssh/known_hosts
	InsecureIgnoreHostKey bool
}

// ResolveFunc expands the templates of one remote line.
type ResolveFunc func(text string, line int) (string, error)

// Option configures an Executor.
type Option func(*Executor)

// WithDialer replaces the SSH dialer (tests, alternative transports).
func WithDialer(dial DialFunc) Option {
	return func(e *Executor) {
		e.dial = dial
	}
}

// WithAuth uses the given auth methods instead of the SSH agent.
func WithAuth(methods ...ssh.AuthMethod) Option {
	return func(e *Executor) {
		e.auth = methods
	}
}

// WithConsole routes remote stdout and status lines to c.
func WithConsole(c *console.Console) Option {
	return func(e *Executor) {
		e.console = c
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// Executor owns the run's session. It is opened lazily by EnsureSession and
// released by Close exactly once.
type Executor struct {
	cfg     Config
	dial    DialFunc
	auth    []ssh.AuthMethod
	console *console.Console
	logger  zerolog.Logger

	session Session
	target  target.Spec

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// New creates an executor. No connection is made until EnsureSession.
func New(cfg Config, opts ...Option) *Executor {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}

	e := &Executor{
		cfg:     cfg,
		console: console.Discard(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dial == nil {
		e.dial = sshDialer(cfg, e.auth, e.logger)
	}
	return e
}

// Connected reports whether a session is open.
func (e *Executor) Connected() bool {
	return e.session != nil
}

// EnsureSession opens and authenticates the session on first call. Later
// calls return immediately; the run is bound to its first target.
func (e *Executor) EnsureSession(ctx context.Context, spec target.Spec) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(!e.closed, "session requested after Close")

	if e.session != nil {
		invariant.Invariant(e.target == spec,
			"run is bound to %s, cannot switch to %s", e.target, spec)
		return nil
	}

	e.logger.Debug().Str("target", spec.String()).Msg("opening session")

	session, err := e.dial(ctx, spec)
	if err != nil {
		return errors.NewConnectionError(spec.String(), err).
			WithHint("check that the host is reachable and that ssh-agent holds a key it accepts")
	}

	e.session = session
	e.target = spec
	e.console.Statusf("connected to %s", spec)
	return nil
}

// RunBlock runs each line on the target in order. Every line is resolved
// just before it runs, then executed as an independent "<shell> -c" invocation
// on a fresh channel. The first non-zero exit stops the block.
func (e *Executor) RunBlock(ctx context.Context, lines []ast.RemoteLine, resolve ResolveFunc) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(e.session != nil, "remote block dispatched before session was opened")

	for _, l := range lines {
		text, err := resolve(l.Text, l.Pos.Line)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		command := WrapCommand(e.cfg.Shell, e.cfg.Sudo, text)
		e.logger.Debug().Int("line", l.Pos.Line).Str("command", command).Msg("remote exec")

		stdout := e.console.RemoteWriter()
		stderr := &captureStderr{limit: stderrLimit}

		code, err := e.session.Run(ctx, command, nil, stdout, stderr)
		_ = stdout.Close()
		if err != nil {
			return errors.Wrap(errors.KindRemoteCommand, l.Pos.Line, err, "remote command could not run")
		}
		if code != 0 {
			return errors.NewRemoteCommandError(l.Pos.Line, code, stderr.String())
		}
	}
	return nil
}

// TransferContent writes data verbatim to path on the target.
func (e *Executor) TransferContent(ctx context.Context, data []byte, path string, line int) error {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(e.session != nil, "upload dispatched before session was opened")

	if path == "" {
		return errors.NewUploadError(line, path, nil).WithHint("the destination path is empty")
	}

	command := WrapCommand(e.cfg.Shell, e.cfg.Sudo, "cat > "+ShellQuote(path))
	e.logger.Debug().Int("line", line).Int("bytes", len(data)).Str("path", path).Msg("upload")

	stderr := &captureStderr{limit: stderrLimit}
	code, err := e.session.Run(ctx, command, bytes.NewReader(data), io.Discard, stderr)
	if err != nil {
		return errors.NewUploadError(line, path, err)
	}
	if code != 0 {
		uerr := errors.NewUploadError(line, path, nil)
		uerr.ExitCode, uerr.Stderr = code, stderr.String()
		return uerr
	}
	return nil
}

// FetchContent reads the file at path on the target.
func (e *Executor) FetchContent(ctx context.Context, path string, line int) ([]byte, error) {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(e.session != nil, "download dispatched before session was opened")

	command := WrapCommand(e.cfg.Shell, e.cfg.Sudo, "cat "+ShellQuote(path))
	e.logger.Debug().Int("line", line).Str("path", path).Msg("download")

	var stdout bytes.Buffer
	stderr := &captureStderr{limit: stderrLimit}
	code, err := e.session.Run(ctx, command, nil, &stdout, stderr)
	if err != nil {
		return nil, errors.NewDownloadError(line, path, err)
	}
	if code != 0 {
		derr := errors.NewDownloadError(line, path, nil)
		derr.ExitCode, derr.Stderr = code, stderr.String()
		return nil, derr
	}
	return stdout.Bytes(), nil
}

// Close releases the session. It is safe to call more than once and on an
// executor that never connected.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.closed = true
		if e.session == nil {
			return
		}
		e.closeErr = e.session.Close()
		e.session = nil
		e.logger.Debug().Str("target", e.target.String()).Msg("session closed")
	})
	return e.closeErr
}

// WrapCommand builds the command line sent for one remote line:
// "<shell> -c '<line>'", prefixed with "sudo -n " when sudo is on so that
// every stage of a pipeline runs elevated.
func WrapCommand(shell string, sudo bool, line string) string {
	cmd := shell + " -c " + ShellQuote(line)
	if sudo {
		cmd = "sudo -n " + cmd
	}
	return cmd
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
