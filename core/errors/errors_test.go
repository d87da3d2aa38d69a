package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesLine(t *testing.T) {
	err := NewUndefinedVariable("pkgs", 7)
	assert.Equal(t, `line 7: undefined variable "pkgs"`, err.Error())

	err = NewConnectionError("root@db:22", fmt.Errorf("handshake failed"))
	assert.Equal(t, "cannot connect to root@db:22: handshake failed", err.Error())
}

func TestParseErrorFields(t *testing.T) {
	err := NewParseError(3, "'='", "STRING")
	assert.Equal(t, KindParse, err.Kind)
	assert.Equal(t, "'='", err.Expected)
	assert.Equal(t, "STRING", err.Found)
	assert.Equal(t, "line 3: expected '=', found STRING", err.Error())
}

func TestKindMatchingThroughWrapping(t *testing.T) {
	base := NewRemoteCommandError(12, 127, "command not found")
	wrapped := fmt.Errorf("run failed: %w", base)

	assert.True(t, IsKind(wrapped, KindRemoteCommand))
	assert.True(t, stderrors.Is(wrapped, &Error{Kind: KindRemoteCommand}))
	assert.False(t, stderrors.Is(wrapped, &Error{Kind: KindUpload}))

	var e *Error
	require.True(t, stderrors.As(wrapped, &e))
	assert.Equal(t, 127, e.ExitCode)
	assert.Equal(t, "command not found", e.Stderr)
}

func TestUnwrapExposesCause(t *testing.T) {
	err := NewUploadError(4, "/etc/motd", fs.ErrPermission)
	assert.True(t, stderrors.Is(err, fs.ErrPermission))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"lex", NewLexError(1, "unterminated string"), ExitScript},
		{"parse", NewParseError(1, "')'", "EOF"), ExitScript},
		{"unknown builtin", NewUnknownBuiltin("ecoh", 2), ExitScript},
		{"target", NewTargetResolutionError(0, "no target"), ExitConnection},
		{"connection", NewConnectionError("a@b:22", nil), ExitConnection},
		{"remote", NewRemoteCommandError(1, 2, ""), ExitRemote},
		{"config", NewConfigError("bad env file", nil), ExitConfig},
		{"undefined variable", NewUndefinedVariable("x", 1), ExitFailure},
		{"foreign error", fmt.Errorf("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWithHint(t *testing.T) {
	err := NewUnknownBuiltin("ecoh", 1).WithHint("did you mean echo?")
	assert.Equal(t, "did you mean echo?", err.Hint)
	assert.Equal(t, KindUnknownBuiltin, KindOf(err))
}

func TestClosestMatch(t *testing.T) {
	candidates := []string{"echo", "upload", "download", "exec"}

	tests := []struct {
		name string
		want string
	}{
		{"upld", "upload"},
		{"ecoh", "echo"},
		{"down", "download"},
		{"zzzzzz", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClosestMatch(tt.name, candidates))
		})
	}
}

func TestDidYouMean(t *testing.T) {
	assert.Equal(t, `did you mean "packages"?`, DidYouMean("pakages", []string{"packages", "user"}))
	assert.Empty(t, DidYouMean("user", []string{"user"}))
	assert.Empty(t, DidYouMean("x", nil))
}
