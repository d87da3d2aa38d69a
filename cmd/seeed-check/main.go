// seeed-check parses and validates scripts without running them. It never
// contacts a target, so it is safe to use in CI and editor hooks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime"
	"github.com/seeed-sh/seeed/runtime/lexer"
	"github.com/seeed-sh/seeed/runtime/parser"
	"github.com/seeed-sh/seeed/runtime/validation"
)

func main() {
	os.Exit(check(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func check(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		tokens bool
		tree   bool
		code   int
	)

	cmd := &cobra.Command{
		Use:           "seeed-check [flags] SCRIPT...",
		Short:         "Parse and validate seeed scripts without running them",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if c := checkFile(path, tokens, tree, stdout, stderr); c > code {
					code = c
				}
			}
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().BoolVar(&tokens, "tokens", false, "Print the token stream")
	cmd.Flags().BoolVar(&tree, "ast", false, "Print the syntax tree")

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return errors.ExitConfig
	}
	return code
}

// checkFile reports on one script and returns its exit code.
func checkFile(path string, tokens, tree bool, stdout, stderr io.Writer) int {
	source, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read %s: %v\n", path, err)
		return errors.ExitConfig
	}

	if tokens {
		toks, err := lexer.Tokenize(source)
		if err != nil {
			runtime.FormatError(stderr, err, source, path, false)
			return errors.ExitCode(err)
		}
		for _, tok := range toks {
			_, _ = fmt.Fprintf(stdout, "%d:%d\t%s\t%q\n", tok.Position.Line, tok.Position.Column, tok.Type, tok.Text)
		}
	}

	program, err := parser.Parse(source)
	if err == nil {
		err = validation.ValidateCalls(program)
	}
	if err != nil {
		runtime.FormatError(stderr, err, source, path, false)
		return errors.ExitCode(err)
	}

	if tree {
		_, _ = io.WriteString(stdout, ast.Dump(program))
	}

	s := validation.Summarize(program)
	target := "no target needed"
	if s.NeedsTarget() {
		target = "needs a target"
	}
	_, _ = fmt.Fprintf(stdout, "%s: ok (%d statements, %d calls, %d remote, %s)\n",
		path, s.Statements, s.Calls, s.Remote, target)
	return errors.ExitSuccess
}
