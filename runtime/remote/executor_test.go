package remote

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime/console"
	"github.com/seeed-sh/seeed/runtime/remote/sshtest"
	"github.com/seeed-sh/seeed/runtime/target"
)

var sshServer *sshtest.Server

// TestMain starts one SSH server shared by every integration test.
func TestMain(m *testing.M) {
	server, err := sshtest.Start()
	if err == nil {
		sshServer = server
	}

	code := m.Run()

	if sshServer != nil {
		sshServer.Stop()
	}
	os.Exit(code)
}

func getSSHTestServer(t *testing.T) *sshtest.Server {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping SSH integration test in short mode")
	}
	if sshServer == nil {
		t.Skip("SSH test server not available")
	}
	return sshServer
}

func serverSpec(s *sshtest.Server) target.Spec {
	return target.Spec{User: "tester", Host: "127.0.0.1", Port: s.Port}
}

// connect opens an executor against the test server; output lands in stdout.
func connect(t *testing.T, cfg Config, stdout io.Writer) *Executor {
	t.Helper()
	server := getSSHTestServer(t)

	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	cfg.InsecureIgnoreHostKey = true

	e := New(cfg,
		WithAuth(ssh.PublicKeys(server.ClientKey)),
		WithConsole(console.New(stdout, io.Discard, false)),
	)
	require.NoError(t, e.EnsureSession(context.Background(), serverSpec(server)))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func lines(texts ...string) []ast.RemoteLine {
	out := make([]ast.RemoteLine, len(texts))
	for i, text := range texts {
		out[i] = ast.RemoteLine{Text: text, Pos: ast.Position{Line: i + 1, Column: 1}}
	}
	return out
}

func verbatim(text string, _ int) (string, error) {
	return text, nil
}

func TestRunBlockStreamsPrefixedOutput(t *testing.T) {
	var out bytes.Buffer
	e := connect(t, Config{}, &out)

	err := e.RunBlock(context.Background(), lines(" echo hello", " printf 'a\\nb\\n'"), verbatim)
	require.NoError(t, err)

	assert.Equal(t, "   │ hello\n   │ a\n   │ b\n", out.String())
}

func TestRunBlockLinesAreIndependentInvocations(t *testing.T) {
	var out bytes.Buffer
	e := connect(t, Config{}, &out)

	dir := t.TempDir()
	err := e.RunBlock(context.Background(), lines(
		" export SEEED_PROBE=set",
		` echo "probe=${SEEED_PROBE:-unset}"`,
		" cd "+ShellQuote(dir),
		" pwd",
	), verbatim)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "probe=unset")
	assert.NotContains(t, out.String(), "   │ "+dir+"\n")
}

func TestRunBlockStopsAtFirstFailure(t *testing.T) {
	var out bytes.Buffer
	e := connect(t, Config{}, &out)

	err := e.RunBlock(context.Background(), lines(
		" echo one",
		" echo broken >&2; exit 3",
		" echo three",
	), verbatim)
	require.Error(t, err)

	rerr := err.(*errors.Error)
	assert.Equal(t, errors.KindRemoteCommand, rerr.Kind)
	assert.Equal(t, 2, rerr.Line)
	assert.Equal(t, 3, rerr.ExitCode)
	assert.Equal(t, "broken", rerr.Stderr)

	assert.Contains(t, out.String(), "one")
	assert.NotContains(t, out.String(), "three")
}

func TestRunBlockResolvesEachLineBeforeRunning(t *testing.T) {
	var out bytes.Buffer
	e := connect(t, Config{}, &out)

	var resolved []int
	resolve := func(text string, line int) (string, error) {
		resolved = append(resolved, line)
		if strings.Contains(text, "{{ missing }}") {
			return "", errors.NewUndefinedVariable("missing", line)
		}
		return strings.ReplaceAll(text, "{{ pkg }}", "nginx"), nil
	}

	err := e.RunBlock(context.Background(), lines(
		" echo install {{ pkg }}",
		" echo {{ missing }}",
		" echo never",
	), resolve)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUndefinedVariable))

	assert.Equal(t, []int{1, 2}, resolved)
	assert.Equal(t, "   │ install nginx\n", out.String())
}

func TestRunBlockCancelStopsOutputBeforeReturning(t *testing.T) {
	var out bytes.Buffer
	e := connect(t, Config{}, &out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	err := e.RunBlock(ctx, lines(" while true; do echo tick; sleep 0.01; done"), verbatim)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	seen := out.String()
	assert.Contains(t, seen, "   │ tick\n")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, seen, out.String(), "output written after RunBlock returned")
}

func TestTransferContentWritesExactBytes(t *testing.T) {
	e := connect(t, Config{}, io.Discard)

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, e.TransferContent(context.Background(), []byte("hello"), path, 4))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestTransferContentPreservesBinaryAndNewlines(t *testing.T) {
	e := connect(t, Config{}, io.Discard)

	data := []byte("line1\r\nline2\n\x00\xff no trailing newline")
	path := filepath.Join(t.TempDir(), "it's quoted")
	require.NoError(t, e.TransferContent(context.Background(), data, path, 1))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferContentFailure(t *testing.T) {
	e := connect(t, Config{}, io.Discard)

	path := filepath.Join(t.TempDir(), "missing-dir", "f")
	err := e.TransferContent(context.Background(), []byte("x"), path, 9)
	require.Error(t, err)

	uerr := err.(*errors.Error)
	assert.Equal(t, errors.KindUpload, uerr.Kind)
	assert.Equal(t, 9, uerr.Line)
	assert.NotZero(t, uerr.ExitCode)
	assert.NotEmpty(t, uerr.Stderr)
}

func TestFetchContent(t *testing.T) {
	e := connect(t, Config{}, io.Discard)

	path := filepath.Join(t.TempDir(), "remote.conf")
	require.NoError(t, os.WriteFile(path, []byte("port=80\n"), 0o644))

	got, err := e.FetchContent(context.Background(), path, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("port=80\n"), got)

	_, err = e.FetchContent(context.Background(), path+".missing", 3)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindDownload))
}

func TestEnsureSessionRejectsUnknownKey(t *testing.T) {
	server := getSSHTestServer(t)

	otherKey := newSigner(t)
	e := New(Config{InsecureIgnoreHostKey: true}, WithAuth(ssh.PublicKeys(otherKey)))
	defer func() { _ = e.Close() }()

	err := e.EnsureSession(context.Background(), serverSpec(server))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConnection))
	assert.False(t, e.Connected())
}

func TestKnownHostsVerification(t *testing.T) {
	server := getSSHTestServer(t)
	dir := t.TempDir()

	write := func(name string, key ssh.PublicKey) string {
		path := filepath.Join(dir, name)
		line := knownhosts.Line([]string{knownhosts.Normalize(server.Addr())}, key)
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))
		return path
	}

	t.Run("matching key connects", func(t *testing.T) {
		e := New(Config{KnownHostsPath: write("good", server.HostKey.PublicKey())},
			WithAuth(ssh.PublicKeys(server.ClientKey)))
		defer func() { _ = e.Close() }()

		require.NoError(t, e.EnsureSession(context.Background(), serverSpec(server)))
	})

	t.Run("mismatched key is refused", func(t *testing.T) {
		e := New(Config{KnownHostsPath: write("bad", newSigner(t).PublicKey())},
			WithAuth(ssh.PublicKeys(server.ClientKey)))
		defer func() { _ = e.Close() }()

		err := e.EnsureSession(context.Background(), serverSpec(server))
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindConnection))
	})

	t.Run("missing file accepts any key", func(t *testing.T) {
		e := New(Config{KnownHostsPath: filepath.Join(dir, "absent")},
			WithAuth(ssh.PublicKeys(server.ClientKey)))
		defer func() { _ = e.Close() }()

		require.NoError(t, e.EnsureSession(context.Background(), serverSpec(server)))
	})
}

// ========== Unit tests with a recording session ==========

type recordingSession struct {
	commands []string
	stdins   []string
	exit     map[string]int
	closes   int
}

func (s *recordingSession) Run(_ context.Context, command string, stdin io.Reader, stdout, _ io.Writer) (int, error) {
	s.commands = append(s.commands, command)
	if stdin != nil {
		data, _ := io.ReadAll(stdin)
		s.stdins = append(s.stdins, string(data))
	}
	_, _ = fmt.Fprintln(stdout, "ok")
	return s.exit[command], nil
}

func (s *recordingSession) Close() error {
	s.closes++
	return nil
}

func withRecorder(cfg Config) (*Executor, *recordingSession, *int) {
	rec := &recordingSession{exit: map[string]int{}}
	dials := 0
	e := New(cfg, WithDialer(func(context.Context, target.Spec) (Session, error) {
		dials++
		return rec, nil
	}))
	return e, rec, &dials
}

func TestWrapCommand(t *testing.T) {
	tests := []struct {
		shell string
		sudo  bool
		line  string
		want  string
	}{
		{"/bin/bash", false, "apt-get update", `/bin/bash -c 'apt-get update'`},
		{"/bin/bash", true, "apt-get update", `sudo -n /bin/bash -c 'apt-get update'`},
		{"/bin/sh", true, "cat /etc/passwd | grep root > /root/out",
			`sudo -n /bin/sh -c 'cat /etc/passwd | grep root > /root/out'`},
		{"/bin/bash", false, "echo 'quoted'", `/bin/bash -c 'echo '\''quoted'\'''`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapCommand(tt.shell, tt.sudo, tt.line))
		})
	}
}

func TestSudoWrapsEveryCommandOnce(t *testing.T) {
	e, rec, _ := withRecorder(Config{Shell: "/bin/bash", Sudo: true})
	require.NoError(t, e.EnsureSession(context.Background(), target.Spec{User: "u", Host: "h", Port: 22}))

	require.NoError(t, e.RunBlock(context.Background(), lines(" systemctl restart nginx | tee log"), verbatim))
	require.NoError(t, e.TransferContent(context.Background(), []byte("x"), "/etc/motd", 2))

	assert.Equal(t, []string{
		`sudo -n /bin/bash -c ' systemctl restart nginx | tee log'`,
		`sudo -n /bin/bash -c 'cat > '\''/etc/motd'\'''`,
	}, rec.commands)
	assert.Equal(t, []string{"x"}, rec.stdins)
}

func TestBlankResolvedLinesAreSkipped(t *testing.T) {
	e, rec, _ := withRecorder(Config{})
	require.NoError(t, e.EnsureSession(context.Background(), target.Spec{User: "u", Host: "h", Port: 22}))

	require.NoError(t, e.RunBlock(context.Background(), lines("   ", " uptime"), verbatim))
	assert.Len(t, rec.commands, 1)
}

func TestEnsureSessionDialsOnce(t *testing.T) {
	e, _, dials := withRecorder(Config{})
	spec := target.Spec{User: "u", Host: "h", Port: 22}

	require.NoError(t, e.EnsureSession(context.Background(), spec))
	require.NoError(t, e.EnsureSession(context.Background(), spec))
	assert.Equal(t, 1, *dials)
	assert.True(t, e.Connected())
}

func TestDialFailureIsConnectionError(t *testing.T) {
	e := New(Config{}, WithDialer(func(context.Context, target.Spec) (Session, error) {
		return nil, fmt.Errorf("connection refused")
	}))

	err := e.EnsureSession(context.Background(), target.Spec{User: "u", Host: "h", Port: 22})
	require.Error(t, err)

	cerr := err.(*errors.Error)
	assert.Equal(t, errors.KindConnection, cerr.Kind)
	assert.Equal(t, "u@h:22", cerr.Name)
	assert.Contains(t, cerr.Error(), "connection refused")
}

func TestCloseOnce(t *testing.T) {
	e, rec, _ := withRecorder(Config{})
	require.NoError(t, e.EnsureSession(context.Background(), target.Spec{User: "u", Host: "h", Port: 22}))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, rec.closes)
	assert.False(t, e.Connected())
}

func TestCloseWithoutSession(t *testing.T) {
	e, rec, dials := withRecorder(Config{})
	require.NoError(t, e.Close())
	assert.Equal(t, 0, *dials)
	assert.Equal(t, 0, rec.closes)
}

func TestRunBlockWithoutSessionPanics(t *testing.T) {
	e, _, _ := withRecorder(Config{})
	assert.Panics(t, func() {
		_ = e.RunBlock(context.Background(), lines(" ls"), verbatim)
	})
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}
