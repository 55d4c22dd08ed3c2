package updates

import (
	"errors"
	"fmt"
	"time"
)

// UpdateRecord is one pending package update on a target.
type UpdateRecord struct {
	Package   string `json:"package"`
	Current   string `json:"current,omitempty"`
	Available string `json:"available"`
	Manager   string `json:"manager"`
	Repo      string `json:"repo,omitempty"`
	Security  bool   `json:"security"`
}

// Reachability records what the last contact attempt learned about a target.
type Reachability string

const (
	Reachable   Reachability = "reachable"
	Unreachable Reachability = "unreachable"
	// ReachabilityUnknown is used while a reboot re-probe is still pending.
	ReachabilityUnknown Reachability = "unknown"
)

// CacheEntry is the cached result of the most recent update check for a
// target. An unreachable check still produces an entry with an empty
// update list, so "never checked" and "checked but unreachable" stay
// distinguishable.
type CacheEntry struct {
	TargetID     string         `json:"target_id"`
	Updates      []UpdateRecord `json:"updates"`
	CheckedAt    time.Time      `json:"checked_at"`
	Reachability Reachability   `json:"reachability"`
}

// OpKind is the kind of operation a job performs.
type OpKind string

const (
	OpCheck          OpKind = "check"
	OpUpgradeAll     OpKind = "upgrade-all"
	OpFullUpgradeAll OpKind = "full-upgrade-all"
	OpUpgradePackage OpKind = "upgrade-package"
	OpReboot         OpKind = "reboot"
)

// IsUpgrade reports whether the kind mutates packages on the target.
func (k OpKind) IsUpgrade() bool {
	switch k {
	case OpUpgradeAll, OpFullUpgradeAll, OpUpgradePackage:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of an asynchronous job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job tracks one asynchronous operation. Terminal jobs are retained for
// a grace period so callers can collect the result, then discarded.
type Job struct {
	ID         string      `json:"id"`
	TargetID   string      `json:"target_id"`
	Kind       OpKind      `json:"kind"`
	Package    string      `json:"package,omitempty"`
	Status     JobStatus   `json:"status"`
	Result     *CacheEntry `json:"result,omitempty"`
	Err        string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
}

// HistoryStatus is the recorded outcome of an operation.
type HistoryStatus string

const (
	HistoryStarted HistoryStatus = "started"
	HistorySuccess HistoryStatus = "success"
	// HistoryWarning marks an upgrade whose session was severed before
	// an exit code arrived; it likely completed and the host may be
	// rebooting. A later re-probe never rewrites this status.
	HistoryWarning HistoryStatus = "warning"
	HistoryFailed  HistoryStatus = "failed"
)

// HistoryEntry is one row of the append-only operation audit log. Only
// the currently running entry mutates, from started to a terminal state.
type HistoryEntry struct {
	ID          string        `json:"id"`
	TargetID    string        `json:"target_id"`
	Kind        OpKind        `json:"kind"`
	Manager     string        `json:"manager"`
	Packages    []string      `json:"packages,omitempty"`
	Status      HistoryStatus `json:"status"`
	Command     string        `json:"command"`
	Output      string        `json:"output,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// OutputEvent is one frame of a target's live operation stream.
type OutputEvent struct {
	Type string `json:"type"` // reset, started, output, phase, warning, error, done

	// Set on started/done.
	Kind   OpKind    `json:"kind,omitempty"`
	JobID  string    `json:"job_id,omitempty"`
	Status JobStatus `json:"status,omitempty"`

	// Set on started, once the command is chosen.
	Command string `json:"command,omitempty"`
	Manager string `json:"manager,omitempty"`

	// Set on output.
	Stream string `json:"stream,omitempty"`
	Line   string `json:"line,omitempty"`

	// Set on phase/warning/error.
	Message string `json:"message,omitempty"`

	Time time.Time `json:"time"`
}

// Error taxonomy. These surface synchronously from Submit/Poll; errors
// inside the asynchronous run path surface only through job and history
// state.
var (
	// ErrTargetBusy means another operation holds the target's lock.
	// Operations are rejected, never queued.
	ErrTargetBusy = errors.New("updates: an operation is already running on this target")

	// ErrConnectionFailed wraps transport or auth failures. The target
	// is marked unreachable and no history entry is written.
	ErrConnectionFailed = errors.New("updates: connection failed")

	// ErrCommandTimeout means the remote command outlived its limit.
	// The remote process may still be running.
	ErrCommandTimeout = errors.New("updates: command timed out")

	// ErrJobNotFound means the job id is unknown or already discarded.
	ErrJobNotFound = errors.New("updates: job not found")

	// ErrTargetNotFound means the target id is not in the inventory.
	ErrTargetNotFound = errors.New("updates: target not found")

	// ErrNoManager means no usable package manager was detected.
	ErrNoManager = errors.New("updates: no supported package manager detected")
)

// CommandError reports a remote command that exited non-zero.
type CommandError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command exited %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("command exited %d", e.ExitCode)
}
