package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/seeed-sh/seeed/core/invariant"
	"github.com/seeed-sh/seeed/runtime/target"
)

// Session runs one command per call on the target. Implementations open a
// fresh channel for every Run, so nothing carries between calls.
type Session interface {
	// Run executes command, feeding stdin (may be nil) and streaming output.
	// It returns the remote exit status; err is non-nil only when the
	// command could not be run or ctx was cancelled.
	Run(ctx context.Context, command string, stdin io.Reader, stdout, stderr io.Writer) (int, error)
	Close() error
}

// DialFunc opens a Session to spec.
type DialFunc func(ctx context.Context, spec target.Spec) (Session, error)

// sshSession implements Session over an x/crypto/ssh client.
type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) Run(ctx context.Context, command string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	invariant.NotNil(ctx, "ctx")
	invariant.Precondition(command != "", "command cannot be empty")

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	session, err := s.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	if stdin != nil {
		session.Stdin = stdin
	}
	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL) // best effort
		_ = session.Close()
		// session.Run may write to stdout and stderr until it returns.
		<-done
		return -1, ctx.Err()
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return exitErr.ExitStatus(), nil
		}
		if _, ok := err.(*ssh.ExitMissingError); ok {
			return -1, fmt.Errorf("remote command ended without an exit status")
		}
		return -1, err
	}
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// sshDialer builds the default DialFunc: agent (or injected) auth and
// known_hosts verification.
func sshDialer(cfg Config, auth []ssh.AuthMethod, logger zerolog.Logger) DialFunc {
	return func(ctx context.Context, spec target.Spec) (Session, error) {
		methods := auth
		var agentConn net.Conn
		if len(methods) == 0 {
			m, conn, err := agentAuth()
			if err != nil {
				return nil, err
			}
			methods, agentConn = []ssh.AuthMethod{m}, conn
		}
		if agentConn != nil {
			// Signers are fetched during the handshake only.
			defer func() { _ = agentConn.Close() }()
		}

		hostKeyCallback, err := hostKeyCallback(cfg, logger)
		if err != nil {
			return nil, err
		}

		clientConfig := &ssh.ClientConfig{
			User:            spec.User,
			Auth:            methods,
			HostKeyCallback: hostKeyCallback,
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", spec.Addr())
		if err != nil {
			return nil, err
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, spec.Addr(), clientConfig)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		logger.Debug().Str("target", spec.String()).Msg("ssh handshake complete")
		return &sshSession{client: ssh.NewClient(c, chans, reqs)}, nil
	}
}

// agentAuth connects to the agent at SSH_AUTH_SOCK and offers its identities.
func agentAuth() (ssh.AuthMethod, net.Conn, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, nil, fmt.Errorf("SSH_AUTH_SOCK is not set; start ssh-agent and add a key")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to ssh agent: %w", err)
	}

	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), conn, nil
}

// hostKeyCallback verifies host keys against known_hosts. A missing file
// (or InsecureIgnoreHostKey) accepts any key with a warning.
func hostKeyCallback(cfg Config, logger zerolog.Logger) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		logger.Warn().Msg("host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn().Err(err).Msg("cannot locate known_hosts; host key not verified")
			return ssh.InsecureIgnoreHostKey(), nil
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn().Str("path", path).Msg("known_hosts not found; host key not verified")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return callback, nil
}

// captureStderr keeps the tail of a command's stderr for error reports.
type captureStderr struct {
	buf   bytes.Buffer
	limit int
}

func (c *captureStderr) Write(p []byte) (int, error) {
	c.buf.Write(p)
	if over := c.buf.Len() - c.limit; over > 0 {
		c.buf.Next(over)
	}
	return len(p), nil
}

func (c *captureStderr) String() string {
	return string(bytes.TrimRight(c.buf.Bytes(), "\n"))
}
