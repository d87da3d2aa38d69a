package runtime

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

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/runtime/remote"
	"github.com/seeed-sh/seeed/runtime/remote/sshtest"
	"github.com/seeed-sh/seeed/runtime/target"
)

func runScript(t *testing.T, cfg RunConfig, source string, opts ...Option) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Run(context.Background(), cfg, []byte(source), &out, &errOut, opts...)
	return code, out.String(), errOut.String()
}

func TestRunLocalScript(t *testing.T) {
	code, stdout, stderr := runScript(t, RunConfig{}, `
# packages to report
let packages = ["nginx","git","curl"]
for p in $packages { echo(p) }
`)

	assert.Equal(t, errors.ExitSuccess, code)
	assert.Equal(t, "nginx\ngit\ncurl\n", stdout)
	assert.Empty(t, stderr)
}

func TestRunPrintsVersion(t *testing.T) {
	code, _, stderr := runScript(t, RunConfig{Version: "0.3.0"}, "")

	assert.Equal(t, errors.ExitSuccess, code)
	assert.Equal(t, "🌱 seeed version 0.3.0\n", stderr)
}

func TestRunReportsParseErrors(t *testing.T) {
	code, stdout, stderr := runScript(t, RunConfig{ScriptPath: "site.sd"}, "echo(\"ok\")\nlet = \"x\"\n")

	assert.Equal(t, errors.ExitScript, code)
	assert.Empty(t, stdout, "nothing runs when the script does not parse")
	assert.Contains(t, stderr, "🚨 run failed\n")
	assert.Contains(t, stderr, "Error: expected a variable name after 'let'")
	assert.Contains(t, stderr, "  --> site.sd:2:5\n")
	assert.Contains(t, stderr, " 2 | let = \"x\"\n")
}

func TestRunValidatesBeforeExecuting(t *testing.T) {
	code, stdout, stderr := runScript(t, RunConfig{}, "echo(\"first\")\nuplaod(\"a\", \"/tmp/a\")\n")

	assert.Equal(t, errors.ExitScript, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `Error: unknown function "uplaod"`)
	assert.Contains(t, stderr, `Hint: did you mean "upload"?`)
}

func TestRunLoadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("REGION=eu-west-1\nAPP=shop\n"), 0o644))

	code, stdout, _ := runScript(t, RunConfig{EnvFile: envFile}, `
echo($REGION)
let APP = "override"
echo("{{ APP }}")
`)

	assert.Equal(t, errors.ExitSuccess, code)
	assert.Equal(t, "eu-west-1\noverride\n", stdout)
}

func TestRunRedactsEnvSecretsFromStderr(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_PASSWORD=hunter2secret\n"), 0o644))

	code, stdout, stderr := runScript(t, RunConfig{EnvFile: envFile, Debug: true}, `
echo("{{ DB_PASSWORD }}")
exec("false {{ DB_PASSWORD }}")
`)

	assert.Equal(t, errors.ExitFailure, code)
	assert.Equal(t, "hunter2secret\n", stdout, "script output is not redacted")
	assert.NotContains(t, stderr, "hunter2secret")
	assert.Contains(t, stderr, "<redacted:DB_PASSWORD>")
}

func TestRunMissingEnvFile(t *testing.T) {
	code, _, stderr := runScript(t, RunConfig{EnvFile: filepath.Join(t.TempDir(), "nope.env")}, `echo("x")`)

	assert.Equal(t, errors.ExitConfig, code)
	assert.Contains(t, stderr, "cannot load env file")
}

func TestRunWithoutTarget(t *testing.T) {
	code, stdout, stderr := runScript(t, RunConfig{}, "echo(\"before\")\n| uptime\necho(\"after\")\n")

	assert.Equal(t, errors.ExitConnection, code)
	assert.Equal(t, "before\n", stdout)
	assert.Contains(t, stderr, "no target")
}

// countingSession answers every command with exit and counts Close calls.
type countingSession struct {
	exit   int
	closes int
}

func (s *countingSession) Run(context.Context, string, io.Reader, io.Writer, io.Writer) (int, error) {
	return s.exit, nil
}

func (s *countingSession) Close() error {
	s.closes++
	return nil
}

func TestRunClosesSessionExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		exit    int
		dialErr error
		code    int
		dials   int
		closes  int
	}{
		{"success", "let target = \"deploy@web\"\n| true\necho(\"done\")\n", 0, nil, errors.ExitSuccess, 1, 1},
		{"failing remote block", "let target = \"deploy@web\"\n| false\necho(\"after\")\n", 1, nil, errors.ExitRemote, 1, 1},
		{"local failure after connecting", "let target = \"deploy@web\"\n| true\nexec(\"false\")\n", 0, nil, errors.ExitFailure, 1, 1},
		{"target resolution error", "| true\n", 0, nil, errors.ExitConnection, 0, 0},
		{"connection error", "let target = \"deploy@web\"\n| true\n", 0, fmt.Errorf("connection refused"), errors.ExitConnection, 1, 0},
		{"local only", "echo(\"hi\")\n", 0, nil, errors.ExitSuccess, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &countingSession{exit: tt.exit}
			dials := 0
			dial := remote.WithDialer(func(context.Context, target.Spec) (remote.Session, error) {
				dials++
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				return session, nil
			})

			code, _, stderr := runScript(t, RunConfig{Shell: "/bin/sh"}, tt.source, WithRemoteOptions(dial))

			assert.Equal(t, tt.code, code, stderr)
			assert.Equal(t, tt.dials, dials)
			assert.Equal(t, tt.closes, session.closes)
		})
	}
}

func startServer(t *testing.T) *sshtest.Server {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping SSH integration test in short mode")
	}
	server, err := sshtest.Start()
	if err != nil {
		t.Skipf("SSH test server not available: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

func remoteConfig(t *testing.T, server *sshtest.Server) (RunConfig, Option) {
	t.Helper()
	return RunConfig{Shell: "/bin/sh", InsecureHostKey: true},
		WithRemoteOptions(remote.WithAuth(ssh.PublicKeys(server.ClientKey)))
}

func TestRunBootstrapsTarget(t *testing.T) {
	server := startServer(t)
	cfg, opt := remoteConfig(t, server)
	dest := filepath.Join(t.TempDir(), "motd")

	source := fmt.Sprintf(`let target = %q
let pkgs = ["alpha", "beta"]
for p in $pkgs {
+
| echo installing {{ p }}
+
}
let motd = <<<EOF
welcome
EOF>>>
upload($motd, %q)
echo("done")
`, server.Target("deploy"), dest)

	code, stdout, stderr := runScript(t, cfg, source, opt)
	require.Equal(t, errors.ExitSuccess, code, stderr)

	assert.Equal(t, "   │ installing alpha\n   │ installing beta\ndone\n", stdout)
	assert.Contains(t, stderr, "🌱 connected to "+server.Target("deploy"))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", string(got))

	assert.Equal(t, 1, server.Connections(), "one session per run")
	assert.True(t, server.WaitIdle(2*time.Second), "session still open after the run")
}

func TestRunCLITargetOverridesScript(t *testing.T) {
	server := startServer(t)
	cfg, opt := remoteConfig(t, server)

	cli, err := target.Parse(server.Target("admin"))
	require.NoError(t, err)
	cfg.Target = &cli

	code, stdout, stderr := runScript(t, cfg, "let target = \"other@192.0.2.1:2222\"\n| echo hi\n", opt)
	require.Equal(t, errors.ExitSuccess, code, stderr)
	assert.Equal(t, "   │ hi\n", stdout)
}

func TestRunStopsAtFailingRemoteCommand(t *testing.T) {
	server := startServer(t)
	cfg, opt := remoteConfig(t, server)

	source := fmt.Sprintf(`let target = %q
+
| echo broken >&2; exit 3
| echo unreachable
+
echo("after")
`, server.Target("deploy"))

	code, stdout, stderr := runScript(t, cfg, source, opt)

	assert.Equal(t, errors.ExitRemote, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: remote command exited with status 3")
	assert.Contains(t, stderr, " 3 | | echo broken >&2; exit 3\n")
	assert.Contains(t, stderr, "     broken\n")

	for _, cmd := range server.Commands() {
		assert.False(t, strings.Contains(cmd, "unreachable"), "line after the failure ran: %s", cmd)
	}

	assert.Equal(t, 1, server.Connections())
	assert.True(t, server.WaitIdle(2*time.Second), "session still open after a failed run")
}

func TestRunReleasesNothingWhenHandshakeFails(t *testing.T) {
	server := startServer(t)
	cfg := RunConfig{Shell: "/bin/sh", InsecureHostKey: true}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	stranger, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	source := fmt.Sprintf("let target = %q\n| echo hi\n", server.Target("deploy"))
	code, stdout, stderr := runScript(t, cfg, source, WithRemoteOptions(remote.WithAuth(ssh.PublicKeys(stranger))))

	assert.Equal(t, errors.ExitConnection, code, stderr)
	assert.Empty(t, stdout)
	assert.Zero(t, server.Connections())
	assert.True(t, server.WaitIdle(2*time.Second))
}

func TestRunSudoWrapsCommands(t *testing.T) {
	server := startServer(t)
	cfg, opt := remoteConfig(t, server)
	cfg.Sudo = true

	// sudo is unlikely to work non-interactively here; only the command sent matters.
	source := fmt.Sprintf("let target = %q\n| whoami\n", server.Target("deploy"))
	_, _, _ = runScript(t, cfg, source, opt)

	commands := server.Commands()
	require.Len(t, commands, 1)
	assert.Equal(t, "sudo -n /bin/sh -c ' whoami'", commands[0])
}
