// Package runtime wires the stages of a seeed run together: parse, validate,
// load globals, execute against the target and report.
package runtime

import (
	"context"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime/console"
	"github.com/seeed-sh/seeed/runtime/interpreter"
	"github.com/seeed-sh/seeed/runtime/logging"
	"github.com/seeed-sh/seeed/runtime/parser"
	"github.com/seeed-sh/seeed/runtime/redact"
	"github.com/seeed-sh/seeed/runtime/remote"
	"github.com/seeed-sh/seeed/runtime/target"
	"github.com/seeed-sh/seeed/runtime/validation"
)

// RunConfig is everything a run needs besides the script text.
type RunConfig struct {
	Target     *target.Spec // from the command line; wins over the script
	Sudo       bool
	Shell      string // default /bin/bash
	EnvFile    string // optional .env loaded as global variables
	Debug      bool
	ScriptPath string // used in diagnostics only
	WorkDir    string // relative local paths resolve here; default is the process directory

	KnownHostsPath  string
	InsecureHostKey bool
	NoColor         bool

	Version string // printed in the opening status line when set
}

// Option adjusts a run beyond its RunConfig.
type Option func(*options)

type options struct {
	remote []remote.Option
}

// WithRemoteOptions passes options to the remote executor, for example a
// custom dialer or explicit auth methods.
func WithRemoteOptions(opts ...remote.Option) Option {
	return func(o *options) {
		o.remote = append(o.remote, opts...)
	}
}

// Run executes source and returns the process exit code. Every failure is
// reported on stderr before returning; the session, if one was opened, is
// closed on every path. Sensitive values from the env file never reach stderr.
func Run(ctx context.Context, cfg RunConfig, source []byte, stdout, stderr io.Writer, opts ...Option) int {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	useColor := false
	if f, ok := stderr.(*os.File); ok {
		useColor = console.ShouldUseColor(cfg.NoColor, f)
	}

	globals, envErr := loadEnv(cfg.EnvFile)

	// Everything on stderr passes through the redactor; stdout is script output.
	diag := redact.New(stderr)
	secrets := diag.AddSensitive(globals)

	logger := logging.New(diag, cfg.Debug, !useColor)
	cons := console.New(stdout, diag, useColor)

	for _, name := range secrets {
		logger.Debug().Str("name", name).Str("fingerprint", diag.Fingerprint(globals[name])).Msg("redacting secret")
	}
	if cfg.Version != "" {
		cons.Statusf("seeed version %s", cfg.Version)
	}

	err := envErr
	if err == nil {
		err = run(ctx, cfg, source, globals, cons, logger, o)
	}
	if err != nil {
		cons.Failuref("run failed")
		FormatError(diag, err, source, cfg.ScriptPath, useColor)
	}
	_ = diag.Close()
	return errors.ExitCode(err)
}

func run(ctx context.Context, cfg RunConfig, source []byte, globals map[string]string, cons *console.Console, logger zerolog.Logger, o options) error {
	program, err := parser.Parse(source, parser.WithLogger(logging.Component(logger, "parser")))
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger.Debug().Msg("syntax tree\n" + ast.Dump(program))
	}

	if err := validation.ValidateCalls(program); err != nil {
		return err
	}
	summary := validation.Summarize(program)
	logger.Debug().
		Int("statements", summary.Statements).
		Int("calls", summary.Calls).
		Int("remote", summary.Remote).
		Int("globals", len(globals)).
		Msg("validated")

	executor := remote.New(remote.Config{
		Shell:                 cfg.Shell,
		Sudo:                  cfg.Sudo,
		Debug:                 cfg.Debug,
		KnownHostsPath:        cfg.KnownHostsPath,
		InsecureIgnoreHostKey: cfg.InsecureHostKey,
	}, append([]remote.Option{
		remote.WithConsole(cons),
		remote.WithLogger(logging.Component(logger, "remote")),
	}, o.remote...)...)
	defer func() {
		if err := executor.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing session")
		}
	}()

	in := interpreter.New(executor,
		interpreter.WithGlobals(globals),
		interpreter.WithTarget(cfg.Target),
		interpreter.WithConsole(cons),
		interpreter.WithWorkDir(cfg.WorkDir),
		interpreter.WithLogger(logging.Component(logger, "interpreter")),
	)
	if err := in.Execute(ctx, program); err != nil {
		return err
	}

	if spec, ok := in.Target(); ok {
		cons.Statusf("finished on %s", spec)
	}
	return nil
}

// loadEnv reads path as a .env file. An empty path means no globals.
func loadEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	globals, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.NewConfigError("cannot load env file "+path, err).
			WithHint("check the --env-file path or remove the flag")
	}
	return globals, nil
}
