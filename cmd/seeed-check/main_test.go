package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeed-sh/seeed/core/errors"
)

func script(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestCheckValidScript(t *testing.T) {
	path := script(t, "ok.sd", "let target = \"root@web\"\n| uptime\necho(\"done\")\n")

	var stdout, stderr bytes.Buffer
	code := check(context.Background(), []string{path}, &stdout, &stderr)

	assert.Equal(t, errors.ExitSuccess, code)
	assert.Equal(t, path+": ok (3 statements, 1 calls, 1 remote, needs a target)\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestCheckReportsWorstExitCode(t *testing.T) {
	good := script(t, "good.sd", "echo(\"x\")\n")
	bad := script(t, "bad.sd", "ecko(\"x\")\n")

	var stdout, stderr bytes.Buffer
	code := check(context.Background(), []string{good, bad}, &stdout, &stderr)

	assert.Equal(t, errors.ExitScript, code)
	assert.Contains(t, stdout.String(), good+": ok")
	assert.Contains(t, stderr.String(), `Error: unknown function "ecko"`)
	assert.Contains(t, stderr.String(), bad+":1:1")
}

func TestCheckDumps(t *testing.T) {
	path := script(t, "dump.sd", "let a = \"x\"\n")

	var stdout, stderr bytes.Buffer
	code := check(context.Background(), []string{"--tokens", "--ast", path}, &stdout, &stderr)

	require.Equal(t, errors.ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "1:1\tLET\t\"let\"\n")
	assert.Contains(t, stdout.String(), "Program\n  Let a = \"x\"  (line 1)\n")
}

func TestCheckUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := check(context.Background(), nil, &stdout, &stderr)
	assert.Equal(t, errors.ExitConfig, code)
}
