// Package sshtest runs an in-process SSH server for tests. Exec requests
// are executed locally with "sh -c", so tests need a POSIX shell but no sshd.
// A "signal" request, or the client closing the channel, kills the command.
package sshtest

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Server is a pure Go SSH server bound to 127.0.0.1 on a random port.
type Server struct {
	Port      int
	HostKey   ssh.Signer
	ClientKey ssh.Signer

	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	commands []string
	conns    int
	active   int
}

// waitDelay bounds how long a killed command's output pipes are drained.
const waitDelay = 500 * time.Millisecond

// Start creates and starts a server that accepts only ClientKey.
func Start() (*Server, error) {
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		return nil, fmt.Errorf("host signer: %w", err)
	}

	_, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}
	clientKey, err := ssh.NewSignerFromKey(clientPriv)
	if err != nil {
		return nil, fmt.Errorf("client signer: %w", err)
	}
	allowed := clientKey.PublicKey().Marshal()

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), allowed) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key for %s", conn.User())
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{
		Port:      listener.Addr().(*net.TCPAddr).Port,
		HostKey:   hostKey,
		ClientKey: clientKey,
		listener:  listener,
	}

	s.wg.Add(1)
	go s.acceptLoop(config)

	return s, nil
}

// Addr returns the server address for connecting.
func (s *Server) Addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(s.Port))
}

// Target renders user@127.0.0.1:port.
func (s *Server) Target(user string) string {
	return user + "@" + s.Addr()
}

// Commands returns every exec command received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Connections reports how many SSH handshakes have completed.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Active reports how many authenticated connections are still open.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WaitIdle waits until every connection has been closed by its client.
// It reports false if connections are still open after timeout.
func (s *Server) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.Active() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Reset forgets recorded commands and connections.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
	s.conns = 0
}

// Stop stops the server and waits for all connections to close.
func (s *Server) Stop() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop(config *ssh.ServerConfig) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}

		s.wg.Add(1)
		go s.handleConn(conn, config)
	}
}

func (s *Server) handleConn(netConn net.Conn, config *ssh.ServerConfig) {
	defer s.wg.Done()
	defer func() { _ = netConn.Close() }()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		return
	}
	defer func() { _ = sshConn.Close() }()

	s.mu.Lock()
	s.conns++
	s.active++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		s.wg.Add(1)
		go s.handleChannel(newChannel)
	}
}

func (s *Server) handleChannel(newChannel ssh.NewChannel) {
	defer s.wg.Done()

	if newChannel.ChannelType() != "session" {
		_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
		return
	}

	channel, requests, err := newChannel.Accept()
	if err != nil {
		return
	}
	defer func() { _ = channel.Close() }()

	ctx, kill := context.WithCancel(context.Background())
	defer kill()

	var exited chan struct{}
	for req := range requests {
		switch {
		case req.Type == "exec" && exited == nil:
			cmd, ok := s.startExec(ctx, channel, req)
			if !ok {
				continue
			}
			exited = make(chan struct{})
			go func(done chan struct{}) {
				defer close(done)
				status := struct{ Status uint32 }{uint32(exitCode(cmd.Wait()))}
				_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(&status))
				_ = channel.Close()
			}(exited)
		case req.Type == "signal":
			kill()
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}

	// The client closed the channel; a command still running is abandoned.
	kill()
	if exited != nil {
		<-exited
	}
}

func (s *Server) startExec(ctx context.Context, channel ssh.Channel, req *ssh.Request) (*exec.Cmd, bool) {
	var execReq struct {
		Command string
	}
	if err := ssh.Unmarshal(req.Payload, &execReq); err != nil {
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
		return nil, false
	}

	s.mu.Lock()
	s.commands = append(s.commands, execReq.Command)
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, "sh", "-c", execReq.Command)
	cmd.Stdin = channel
	cmd.Stdout = channel
	cmd.Stderr = channel.Stderr()
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
		return nil, false
	}
	if req.WantReply {
		_ = req.Reply(true, nil)
	}
	return cmd, true
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	return 127
}
