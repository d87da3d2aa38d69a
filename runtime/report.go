package runtime

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/seeed-sh/seeed/core/errors"
)

// FormatError writes err for a human: a red "Error:" line, the offending
// source line with a caret when the position is known, the remote stderr of
// a failed command, and a yellow "Hint:" line.
func FormatError(w io.Writer, err error, source []byte, path string, useColor bool) {
	if err == nil {
		return
	}

	red := color.New(color.FgHiRed, color.Bold)
	yellow := color.New(color.FgHiYellow)
	for _, c := range []*color.Color{red, yellow} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	e, ok := err.(*errors.Error)
	if !ok {
		_, _ = fmt.Fprintf(w, "%s %v\n", red.Sprint("Error:"), err)
		return
	}

	message := e.Message
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", red.Sprint("Error:"), message)

	if snippet := sourceSnippet(source, path, e.Line, e.Column); snippet != "" {
		_, _ = io.WriteString(w, snippet)
	}

	if e.Kind == errors.KindRemoteCommand && e.Stderr != "" {
		_, _ = io.WriteString(w, "   = remote stderr:\n")
		for _, line := range strings.Split(e.Stderr, "\n") {
			_, _ = fmt.Fprintf(w, "     %s\n", line)
		}
	}

	if e.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", yellow.Sprint("Hint:"), e.Hint)
	}
}

// sourceSnippet renders the Rust-style location block for line and column.
func sourceSnippet(source []byte, path string, line, column int) string {
	if len(source) == 0 || line == 0 {
		return ""
	}

	lines := strings.Split(string(source), "\n")
	if line > len(lines) {
		return ""
	}
	content := strings.TrimSuffix(lines[line-1], "\r")

	location := fmt.Sprintf("%d", line)
	if column > 0 {
		location += fmt.Sprintf(":%d", column)
	}
	if path != "" {
		location = path + ":" + location
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  --> %s\n", location)
	b.WriteString("   |\n")
	fmt.Fprintf(&b, "%2d | %s\n", line, content)
	if column > 0 && column <= len(content)+1 {
		b.WriteString("   | " + strings.Repeat(" ", column-1) + "^\n")
	}
	return b.String()
}
