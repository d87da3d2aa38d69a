package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime"
)

// CLIError represents a formatted CLI error with context
type CLIError struct {
	Message string
	Details string // Additional context
	Hint    string // How to fix it
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// FormatError formats an error raised before a run starts. Errors from the
// run itself are reported by runtime.Run.
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}

	switch e := err.(type) {
	case *errors.Error:
		runtime.FormatError(w, e, nil, "", useColor)
	case *CLIError:
		formatCLIError(w, e, useColor)
	default:
		// cobra usage errors
		formatCLIError(w, &CLIError{
			Message: err.Error(),
			Hint:    "run 'seeed --help' for usage",
		}, useColor)
	}
}

func formatCLIError(w io.Writer, err *CLIError, useColor bool) {
	red := color.New(color.FgHiRed, color.Bold)
	yellow := color.New(color.FgHiYellow)
	if !useColor {
		red.DisableColor()
		yellow.DisableColor()
	} else {
		red.EnableColor()
		yellow.EnableColor()
	}

	_, _ = fmt.Fprintf(w, "%s %s\n", red.Sprint("Error:"), err.Message)
	if err.Details != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", err.Details)
	}
	if err.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", yellow.Sprint("Hint:"), err.Hint)
	}
}
