package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime"
	"github.com/seeed-sh/seeed/runtime/console"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		opts options
		code int
	)

	rootCmd := &cobra.Command{
		Use:   "seeed [flags] SCRIPT",
		Short: "Bootstrap a remote machine over SSH from a seeed script",
		Long: `seeed runs a script against one target host. Remote blocks run over SSH,
everything else runs locally. Use "-" as SCRIPT to read from stdin.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts, cmd.Flags().Changed, args[0])
			if err != nil {
				return err
			}
			cfg.Version = version

			if opts.watch {
				if args[0] == "-" {
					return &CLIError{Message: "--watch needs a script file", Hint: "pass a path instead of -"}
				}
				return runWatch(ctx, cfg, stdout, stderr)
			}

			source, err := readScript(args[0], stdin)
			if err != nil {
				return err
			}
			code = runtime.Run(ctx, cfg, source, stdout, stderr)
			return nil
		},
	}
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.target, "target", "t", "", "Target host as user@host[:port]; overrides the script's target")
	flags.BoolVarP(&opts.sudo, "sudo", "s", false, "Run remote commands with sudo -n")
	flags.StringVarP(&opts.shell, "shell", "e", defaultShell, "Shell that runs each remote line")
	flags.StringVar(&opts.envFile, "env-file", "", "Load variables from a .env file")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug output")
	flags.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file used to verify the target (default ~/.ssh/known_hosts)")
	flags.BoolVar(&opts.insecureHostKey, "insecure-host-key", false, "Accept any host key")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML config file (default "+defaultConfigFile+" if present)")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Re-run the script whenever it changes")

	if err := rootCmd.Execute(); err != nil {
		FormatError(stderr, err, useColor(opts.noColor, stderr))
		code = errors.ExitCode(err)
		if errors.KindOf(err) == "" {
			code = errors.ExitConfig
		}
	}
	return code
}

// readScript loads the script at path, or stdin when path is "-".
func readScript(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		source, err := io.ReadAll(stdin)
		if err != nil {
			return nil, &CLIError{Message: "cannot read script from stdin", Details: err.Error()}
		}
		return source, nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, &CLIError{
			Message: fmt.Sprintf("cannot read script %s", path),
			Details: err.Error(),
			Hint:    "pass the path of an existing .sd file, or - to read stdin",
		}
	}
	return source, nil
}

func useColor(noColor bool, w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return console.ShouldUseColor(noColor, f)
}

func displayPath(path string) string {
	if path == "-" {
		return "<stdin>"
	}
	return filepath.Clean(path)
}
