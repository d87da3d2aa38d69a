package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a run failure.
type Kind string

const (
	// Front end
	KindLex   Kind = "LEX_ERROR"
	KindParse Kind = "PARSE_ERROR"

	// Evaluation
	KindUndefinedVariable        Kind = "UNDEFINED_VARIABLE"
	KindUnsupportedInterpolation Kind = "UNSUPPORTED_INTERPOLATION"
	KindType                     Kind = "TYPE_ERROR"
	KindUnknownBuiltin           Kind = "UNKNOWN_BUILTIN"
	KindArity                    Kind = "ARITY_ERROR"

	// Remote
	KindTargetResolution Kind = "TARGET_RESOLUTION_ERROR"
	KindConnection       Kind = "CONNECTION_ERROR"
	KindRemoteCommand    Kind = "REMOTE_COMMAND_ERROR"
	KindUpload           Kind = "UPLOAD_ERROR"
	KindDownload         Kind = "DOWNLOAD_ERROR"

	// Local
	KindLocalCommand Kind = "LOCAL_COMMAND_ERROR"
	KindConfig       Kind = "CONFIG_ERROR"
)

// Process exit codes returned to the shell.
const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitConfig     = 2
	ExitScript     = 3
	ExitConnection = 4
	ExitRemote     = 5
)

// Error is the single error type surfaced by the seeed core. Fields that do
// not apply to a kind are left zero.
type Error struct {
	Kind    Kind
	Line    int // 1-based source line, 0 when unknown
	Column  int // 1-based, set by the lexer and parser when known
	Message string

	Name     string // variable, built-in or function name
	Expected string // parse errors
	Found    string // parse errors
	ExitCode int    // remote command errors
	Stderr   string // remote command errors

	Hint  string
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows error unwrapping
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, &Error{Kind: KindParse}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithHint attaches a remediation hint and returns the error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// New creates an error of the given kind.
func New(kind Kind, line int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, line int, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NewLexError reports a lexical failure.
func NewLexError(line int, reason string) *Error {
	return &Error{Kind: KindLex, Line: line, Message: reason}
}

// At records the column of the offending token and returns the error for chaining.
func (e *Error) At(column int) *Error {
	e.Column = column
	return e
}

// NewParseError reports what the parser expected and what it found instead.
func NewParseError(line int, expected, found string) *Error {
	return &Error{
		Kind:     KindParse,
		Line:     line,
		Message:  fmt.Sprintf("expected %s, found %s", expected, found),
		Expected: expected,
		Found:    found,
	}
}

func NewUndefinedVariable(name string, line int) *Error {
	return &Error{Kind: KindUndefinedVariable, Line: line, Name: name,
		Message: fmt.Sprintf("undefined variable %q", name)}
}

func NewUnsupportedInterpolation(name string, line int) *Error {
	return &Error{Kind: KindUnsupportedInterpolation, Line: line, Name: name,
		Message: fmt.Sprintf("cannot interpolate array variable %q into text", name)}
}

func NewTypeError(line int, format string, args ...interface{}) *Error {
	return New(KindType, line, format, args...)
}

func NewUnknownBuiltin(name string, line int) *Error {
	return &Error{Kind: KindUnknownBuiltin, Line: line, Name: name,
		Message: fmt.Sprintf("unknown function %q", name)}
}

func NewArityError(name string, line int, expected string, got int) *Error {
	return &Error{Kind: KindArity, Line: line, Name: name,
		Message: fmt.Sprintf("%s expects %s argument(s), got %d", name, expected, got)}
}

func NewTargetResolutionError(line int, format string, args ...interface{}) *Error {
	return New(KindTargetResolution, line, format, args...)
}

func NewConnectionError(target string, cause error) *Error {
	return &Error{Kind: KindConnection, Name: target, Cause: cause,
		Message: fmt.Sprintf("cannot connect to %s", target)}
}

// NewRemoteCommandError reports the first failing remote line of a block.
func NewRemoteCommandError(line, exitCode int, stderr string) *Error {
	return &Error{
		Kind:     KindRemoteCommand,
		Line:     line,
		ExitCode: exitCode,
		Stderr:   stderr,
		Message:  fmt.Sprintf("remote command exited with status %d", exitCode),
	}
}

func NewUploadError(line int, path string, cause error) *Error {
	return &Error{Kind: KindUpload, Line: line, Name: path, Cause: cause,
		Message: fmt.Sprintf("upload to %s failed", path)}
}

func NewDownloadError(line int, path string, cause error) *Error {
	return &Error{Kind: KindDownload, Line: line, Name: path, Cause: cause,
		Message: fmt.Sprintf("download of %s failed", path)}
}

func NewLocalCommandError(line int, command string, cause error) *Error {
	return &Error{Kind: KindLocalCommand, Line: line, Name: command, Cause: cause,
		Message: fmt.Sprintf("local command %q failed", command)}
}

func NewConfigError(message string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitConfig
	case KindLex, KindParse, KindUnknownBuiltin, KindArity:
		return ExitScript
	case KindTargetResolution, KindConnection:
		return ExitConnection
	case KindRemoteCommand:
		return ExitRemote
	default:
		return ExitFailure
	}
}
