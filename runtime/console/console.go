// Package console writes the user-facing output of a run: status lines,
// echo output and the streamed stdout of remote commands.
package console

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	statusPrefix = "🌱 "
	errorPrefix  = "🚨 "
	remotePrefix = "   │ "
)

// ShouldUseColor determines if color output should be used.
// Respects the --no-color flag, the NO_COLOR environment variable and
// whether f is a terminal.
func ShouldUseColor(noColorFlag bool, f *os.File) bool {
	if noColorFlag {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Console routes output to the run's stdout and stderr. Echo and remote
// output go to stdout untouched apart from the remote prefix; status lines go
// to stderr so piping a run's stdout captures only script output.
type Console struct {
	stdout io.Writer
	stderr io.Writer

	status *color.Color
	failed *color.Color
	remote *color.Color

	mu sync.Mutex
}

// New creates a console. useColor is normally ShouldUseColor's result.
func New(stdout, stderr io.Writer, useColor bool) *Console {
	c := &Console{
		stdout: stdout,
		stderr: stderr,
		status: color.New(color.FgHiGreen),
		failed: color.New(color.FgHiRed),
		remote: color.New(color.FgHiYellow),
	}
	for _, col := range []*color.Color{c.status, c.failed, c.remote} {
		if useColor {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Discard returns a console that drops everything.
func Discard() *Console {
	return New(io.Discard, io.Discard, false)
}

// Stdout is the writer echo output goes to.
func (c *Console) Stdout() io.Writer {
	return c.stdout
}

// Stderr is the writer local command diagnostics go to.
func (c *Console) Stderr() io.Writer {
	return c.stderr
}

// Statusf writes a 🌱 status line to stderr.
func (c *Console) Statusf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.stderr, statusPrefix+c.status.Sprintf(format, args...))
}

// Failuref writes a 🚨 line to stderr.
func (c *Console) Failuref(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.stderr, errorPrefix+c.failed.Sprintf(format, args...))
}

// Echo writes text and a newline to stdout with no decoration.
func (c *Console) Echo(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.stdout, text+"\n")
}

// RemoteWriter returns a writer that prefixes every line of remote output
// with "   │ ". Close flushes a trailing partial line.
func (c *Console) RemoteWriter() io.WriteCloser {
	return &prefixWriter{console: c}
}

type prefixWriter struct {
	console *Console
	buf     bytes.Buffer
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		if err := w.emit(bytes.TrimSuffix(line, []byte("\n"))); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (w *prefixWriter) Close() error {
	if w.buf.Len() == 0 {
		return nil
	}
	rest := w.buf.Bytes()
	w.buf.Reset()
	return w.emit(rest)
}

func (w *prefixWriter) emit(line []byte) error {
	c := w.console
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.stdout, remotePrefix+c.remote.Sprint(string(line)))
	return err
}
