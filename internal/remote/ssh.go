package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// maxLineSize bounds a single output line. Package manager output is
// line oriented; anything bigger than this is truncated by the scanner.
const maxLineSize = 1024 * 1024

// SSHRunner executes commands over SSH using golang.org/x/crypto/ssh.
type SSHRunner struct {
	logger *zap.Logger

	// dial is the function used to establish SSH connections.
	// Defaults to ssh.Dial; overridden in tests.
	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// NewSSHRunner creates a runner that dials real SSH connections.
func NewSSHRunner(logger *zap.Logger) *SSHRunner {
	return &SSHRunner{logger: logger, dial: ssh.Dial}
}

// Run connects to the endpoint, executes the command and collects its
// output. Connection failures are reported as ErrConnect; a session
// that ends without an exit status yields Result.Disconnected.
func (r *SSHRunner) Run(ctx context.Context, ep Endpoint, command string, opts Options) (*Result, error) {
	auth, err := authMethods(ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	port := ep.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(port))
	config := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106: fleet hosts are provisioned without known_hosts distribution
		Timeout:         opts.ConnectTimeout,
	}

	client, err := r.dial("tcp", addr, config)
	if err != nil {
		r.logger.Debug("ssh dial failed", zap.String("addr", addr), zap.Error(err))
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnect, addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: session on %s: %v", ErrConnect, addr, err)
	}
	defer session.Close()

	if opts.Detached {
		return r.runDetached(session, command)
	}
	return r.runAttached(ctx, session, command, opts)
}

// runDetached starts the command under setsid/nohup so it survives the
// session, then returns without waiting for the command itself.
func (r *SSHRunner) runDetached(session *ssh.Session, command string) (*Result, error) {
	if err := session.Run(detachedCommand(command)); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return &Result{ExitCode: exitErr.ExitStatus()}, nil
		}
		return &Result{Disconnected: true}, nil
	}
	return &Result{ExitCode: 0}, nil
}

func (r *SSHRunner) runAttached(ctx context.Context, session *ssh.Session, command string, opts Options) (*Result, error) {
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrConnect, err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrConnect, err)
	}

	if err := session.Start(command); err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrConnect, err)
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go r.pumpLines(&wg, stdout, &outBuf, StreamStdout, opts.OnLine)
	go r.pumpLines(&wg, stderr, &errBuf, StreamStderr, opts.OnLine)

	waitCh := make(chan error, 1)
	go func() { waitCh <- session.Wait() }()

	var timeout <-chan time.Time
	if opts.CommandTimeout > 0 {
		timer := time.NewTimer(opts.CommandTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitCh:
	case <-timeout:
		timedOut = true
		session.Close()
		<-waitCh
	case <-ctx.Done():
		session.Close()
		<-waitCh
		wg.Wait()
		return nil, ctx.Err()
	}
	wg.Wait()

	res := &Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if timedOut {
		return res, fmt.Errorf("%w: after %s", ErrTimeout, opts.CommandTimeout)
	}

	switch e := waitErr.(type) {
	case nil:
		res.ExitCode = 0
	case *ssh.ExitError:
		res.ExitCode = e.ExitStatus()
	case *ssh.ExitMissingError:
		res.Disconnected = true
	default:
		// The transport dropped mid-command.
		r.logger.Debug("ssh session ended without status", zap.Error(waitErr))
		res.Disconnected = true
	}
	return res, nil
}

// pumpLines copies one output stream into buf line by line, invoking
// onLine for each complete line as it arrives. A scanner error, such
// as a line over maxLineSize, ends the pump; the truncation is logged
// and marked in the buffer so it is visible in captured output.
func (r *SSHRunner) pumpLines(wg *sync.WaitGroup, src io.Reader, buf *bytes.Buffer, stream Stream, onLine func(Stream, string)) {
	defer wg.Done()
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(stream, line)
		}
	}
	if err := sc.Err(); err != nil {
		marker := fmt.Sprintf("[%s truncated: %v]", stream, err)
		buf.WriteString(marker)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(stream, marker)
		}
		r.logger.Warn("remote output stream truncated",
			zap.String("stream", string(stream)), zap.Error(err))
		// Keep draining so the remote command does not block on a
		// full pipe while session.Wait is pending.
		io.Copy(io.Discard, src) //nolint:errcheck
	}
}

// authMethods resolves the endpoint's credential reference into SSH
// auth methods. Passwords come from the named environment variable,
// keys from the named file.
func authMethods(ep Endpoint) ([]ssh.AuthMethod, error) {
	switch ep.AuthMethod {
	case "password":
		pw := os.Getenv(ep.CredentialRef)
		if pw == "" {
			return nil, fmt.Errorf("password env %q is not set", ep.CredentialRef)
		}
		return []ssh.AuthMethod{ssh.Password(pw)}, nil
	case "key", "":
		keyData, err := os.ReadFile(ep.CredentialRef)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse key file %q: %w", ep.CredentialRef, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("unknown auth method %q", ep.AuthMethod)
	}
}

// detachedCommand wraps a command so it keeps running after the SSH
// session that started it goes away.
func detachedCommand(command string) string {
	quoted := "'" + strings.ReplaceAll(command, "'", `'\''`) + "'"
	return "setsid nohup sh -c " + quoted + " >/dev/null 2>&1 </dev/null &"
}
