// Package remote executes commands on managed hosts over SSH.
package remote

import (
	"context"
	"errors"
	"time"
)

// Stream identifies which output stream a line arrived on.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Sentinel errors returned by Runner implementations.
var (
	// ErrConnect means the transport could not be established at all.
	// No command ran on the host.
	ErrConnect = errors.New("remote: connection failed")

	// ErrTimeout means the command ran longer than the configured limit
	// and the session was torn down.
	ErrTimeout = errors.New("remote: command timed out")
)

// Endpoint describes how to reach and authenticate against a host.
// CredentialRef names an environment variable holding the password
// (password auth) or a private key file path (key auth); the secret
// itself is resolved at connect time and never persisted.
type Endpoint struct {
	Host          string
	Port          int
	User          string
	AuthMethod    string // "password" or "key"
	CredentialRef string
}

// Options tunes a single command execution.
type Options struct {
	// ConnectTimeout bounds the TCP/SSH handshake.
	ConnectTimeout time.Duration

	// CommandTimeout bounds the command itself, measured from start.
	// Zero means no limit.
	CommandTimeout time.Duration

	// OnLine, if set, receives each output line as it is produced.
	OnLine func(stream Stream, line string)

	// Detached runs the command under setsid with nohup and returns
	// without waiting for it. Used for commands that are expected to
	// kill the connection, such as reboot.
	Detached bool
}

// Result is the outcome of a completed (or severed) command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string

	// Disconnected is set when the session ended without the remote
	// side reporting an exit status, typically because the host went
	// down mid-command.
	Disconnected bool
}

// Runner executes a single command on a remote host.
type Runner interface {
	Run(ctx context.Context, ep Endpoint, command string, opts Options) (*Result, error)
}
