package updates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetpatch/fleetpatch/internal/inventory"
	"github.com/fleetpatch/fleetpatch/internal/remote"
	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

// TargetSource resolves target ids to inventory records. Satisfied by
// *inventory.TargetStore.
type TargetSource interface {
	Get(ctx context.Context, id string) (*inventory.Target, error)
	ListEnabled(ctx context.Context) ([]inventory.Target, error)
}

// Executor owns the asynchronous job lifecycle: submission, the remote
// run path, finalization, polling and retention. Remote-command errors
// never escape the run path; they surface through job and history state.
type Executor struct {
	cfg       Config
	governor  *Governor
	cache     *Cache
	history   *HistoryStore
	broadcast *Broadcaster
	runner    remote.Runner
	targets   TargetSource
	prober    *Prober
	bus       plugin.EventBus
	logger    *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewExecutor wires the engine together.
func NewExecutor(cfg Config, governor *Governor, cache *Cache, history *HistoryStore,
	broadcast *Broadcaster, runner remote.Runner, targets TargetSource,
	prober *Prober, bus plugin.EventBus, logger *zap.Logger) *Executor {
	baseCtx, stop := context.WithCancel(context.Background())
	return &Executor{
		cfg:       cfg,
		governor:  governor,
		cache:     cache,
		history:   history,
		broadcast: broadcast,
		runner:    runner,
		targets:   targets,
		prober:    prober,
		bus:       bus,
		logger:    logger,
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		baseCtx:   baseCtx,
		stop:      stop,
	}
}

// Start launches the retention janitor. Jobs run on the executor's own
// context so an HTTP request ending does not kill its job.
func (e *Executor) Start(context.Context) {
	e.wg.Add(1)
	go e.janitor()
}

// Stop cancels running jobs and waits for them to wind down.
func (e *Executor) Stop() {
	if e.stop != nil {
		e.stop()
	}
	e.wg.Wait()
}

// Submit validates the request, takes the target lock and launches the
// job goroutine. The busy rejection is synchronous; waiting for global
// session capacity happens inside the job.
func (e *Executor) Submit(ctx context.Context, targetID string, kind OpKind, pkg string) (string, error) {
	if kind == OpUpgradePackage && pkg == "" {
		return "", fmt.Errorf("package name is required for %s", kind)
	}

	target, err := e.targets.Get(ctx, targetID)
	if err != nil {
		return "", fmt.Errorf("resolve target: %w", err)
	}
	if target == nil || !target.Enabled {
		return "", ErrTargetNotFound
	}

	ticket, err := e.governor.Lock(targetID)
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:        uuid.NewString(),
		TargetID:  targetID,
		Kind:      kind,
		Package:   pkg,
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}

	jobCtx, cancel := context.WithCancel(e.baseCtx)
	e.mu.Lock()
	e.jobs[job.ID] = job
	e.cancels[job.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(jobCtx, job, ticket, target)
	return job.ID, nil
}

// Poll returns a snapshot of the job, or ErrJobNotFound once the
// retention janitor has discarded it.
func (e *Executor) Poll(jobID string) (Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// Cancel stops a job. Before the command starts this fails the job
// immediately; afterwards it is best effort, since a detached remote
// command cannot be recalled.
func (e *Executor) Cancel(jobID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[jobID]
	e.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	cancel()
	return nil
}

func (e *Executor) run(ctx context.Context, job *Job, ticket *Ticket, target *inventory.Target) {
	defer e.wg.Done()
	defer ticket.Release()

	// Wait for a global session slot; cancellable.
	if err := ticket.AcquireSlot(ctx); err != nil {
		e.finalize(job, JobFailed, nil, "cancelled while waiting for a session slot")
		return
	}
	activeSessions.Inc()
	defer activeSessions.Dec()

	e.setStatus(job, JobRunning)
	e.broadcast.Reset(target.ID)

	ep := endpointFor(target)
	started := time.Now()
	switch job.Kind {
	case OpCheck:
		e.runCheck(ctx, job, target, ep)
	case OpReboot:
		e.runReboot(ctx, job, target, ep)
	default:
		e.runUpgrade(ctx, job, target, ep)
	}
	commandDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(started).Seconds())
}

// runCheck detects package managers, gathers their pending updates and
// refreshes the cache. The cache is updated even though the job itself
// may be discarded later.
func (e *Executor) runCheck(ctx context.Context, job *Job, target *inventory.Target, ep remote.Endpoint) {
	e.phase(target.ID, "detecting package managers")
	managers, err := Detect(ctx, e.runner, ep, e.remoteOpts(target.ID), target.ManagerDisabled)
	if err != nil {
		e.connectionFailed(job, target.ID, err)
		return
	}
	if len(managers) == 0 {
		e.finalize(job, JobFailed, nil, ErrNoManager.Error())
		return
	}

	families := make([]string, len(managers))
	commands := make([]string, len(managers))
	for i, m := range managers {
		families[i] = m.Family()
		commands[i] = m.ListCommand()
	}
	e.broadcast.Publish(target.ID, OutputEvent{
		Type: "started", Kind: job.Kind, JobID: job.ID,
		Manager: strings.Join(families, ","), Command: strings.Join(commands, "; "),
	})

	entry := e.historyEntry(job, strings.Join(families, ","))
	entry.Command = strings.Join(commands, "; ")
	if err := e.history.Append(ctx, entry); err != nil {
		e.logger.Warn("failed to append history entry", zap.Error(err))
	}

	var all []UpdateRecord
	var outputs []string
	for _, m := range managers {
		e.phase(target.ID, "checking "+m.Family())
		res, err := e.runner.Run(ctx, ep, m.ListCommand(), e.remoteOpts(target.ID))
		if err != nil {
			e.failWithHistory(ctx, job, target.ID, entry.ID, err, strings.Join(outputs, "\n"))
			return
		}
		if !m.ListExitOK(res.ExitCode) {
			cmdErr := &CommandError{ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
			e.failWithHistory(ctx, job, target.ID, entry.ID, cmdErr, res.Stderr)
			return
		}
		all = append(all, m.Parse(res.Stdout)...)
		outputs = append(outputs, res.Stdout)
	}

	cacheEntry := CacheEntry{
		TargetID:     target.ID,
		Updates:      all,
		CheckedAt:    time.Now().UTC(),
		Reachability: Reachable,
	}
	e.cache.Put(cacheEntry)
	staleCacheEntries.Set(float64(e.cache.StaleCount()))
	e.completeHistory(ctx, entry.ID, HistorySuccess, fmt.Sprintf("%d updates pending", len(all)))
	e.publishBus(TopicCacheRefreshed, map[string]any{
		"target_id": target.ID,
		"updates":   len(all),
	})

	e.finalize(job, JobDone, &cacheEntry, "")
}

// runUpgrade executes upgrade commands attached, streaming output.
// Whole-system upgrades cover every detected family in turn, with one
// history entry per family, mirroring the check. Commands run under
// setsid so a dropped session does not kill them; a disconnect without
// an exit code becomes the warning status and schedules the re-probe.
func (e *Executor) runUpgrade(ctx context.Context, job *Job, target *inventory.Target, ep remote.Endpoint) {
	e.phase(target.ID, "detecting package managers")
	managers, err := Detect(ctx, e.runner, ep, e.remoteOpts(target.ID), target.ManagerDisabled)
	if err != nil {
		e.connectionFailed(job, target.ID, err)
		return
	}
	if len(managers) == 0 {
		e.finalize(job, JobFailed, nil, ErrNoManager.Error())
		return
	}
	if job.Kind == OpUpgradePackage {
		// A named package is upgraded through the primary family only.
		managers = managers[:1]
	}

	for _, m := range managers {
		var cmd string
		switch job.Kind {
		case OpUpgradePackage:
			cmd = m.PackageUpgradeCommand(job.Package)
		case OpFullUpgradeAll:
			// Families without a distinct full mode fall back to plain.
			cmd = m.UpgradeCommand(m.SupportsFullUpgrade())
		default:
			cmd = m.UpgradeCommand(false)
		}
		cmd = "setsid " + cmd

		entry := e.historyEntry(job, m.Family())
		entry.Command = cmd
		if job.Package != "" {
			entry.Packages = []string{job.Package}
		}
		if err := e.history.Append(ctx, entry); err != nil {
			e.logger.Warn("failed to append history entry", zap.Error(err))
		}

		e.broadcast.Publish(target.ID, OutputEvent{
			Type: "started", Kind: job.Kind, JobID: job.ID,
			Manager: m.Family(), Command: cmd,
		})
		e.phase(target.ID, "upgrading via "+m.Family())
		res, err := e.runner.Run(ctx, ep, cmd, e.remoteOpts(target.ID))
		if err != nil {
			e.failWithHistory(ctx, job, target.ID, entry.ID, err, "")
			return
		}

		output := res.Stdout
		if res.Stderr != "" {
			output += "\n" + res.Stderr
		}

		status, note := classifyUpgrade(res)
		switch status {
		case HistoryWarning:
			e.completeHistory(ctx, entry.ID, HistoryWarning, output+"\n"+note)
			e.broadcast.Publish(target.ID, OutputEvent{Type: "warning", Message: note})
			e.cache.Invalidate(target.ID)
			e.scheduleReprobe(target.ID, ep)
			e.finalize(job, JobDone, nil, "")
			return
		case HistoryFailed:
			e.completeHistory(ctx, entry.ID, HistoryFailed, output)
			cmdErr := &CommandError{ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
			e.finalize(job, JobFailed, nil, cmdErr.Error())
			return
		default:
			e.completeHistory(ctx, entry.ID, HistorySuccess, output)
		}
	}

	// Installed versions changed; the cached listing is now wrong.
	e.cache.Invalidate(target.ID)
	e.finalize(job, JobDone, nil, "")
}

// runReboot fires the reboot detached, since the session is expected
// to die, then schedules the re-probe.
func (e *Executor) runReboot(ctx context.Context, job *Job, target *inventory.Target, ep remote.Endpoint) {
	e.broadcast.Publish(target.ID, OutputEvent{
		Type: "started", Kind: job.Kind, JobID: job.ID, Command: "systemctl reboot",
	})

	entry := e.historyEntry(job, "")
	entry.Command = "systemctl reboot"
	if err := e.history.Append(ctx, entry); err != nil {
		e.logger.Warn("failed to append history entry", zap.Error(err))
	}

	e.phase(target.ID, "rebooting")
	opts := e.remoteOpts(target.ID)
	opts.Detached = true
	res, err := e.runner.Run(ctx, ep, "systemctl reboot", opts)
	if err != nil {
		e.failWithHistory(ctx, job, target.ID, entry.ID, err, "")
		return
	}
	if !res.Disconnected && res.ExitCode != 0 {
		cmdErr := &CommandError{ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
		e.completeHistory(ctx, entry.ID, HistoryFailed, res.Stderr)
		e.finalize(job, JobFailed, nil, cmdErr.Error())
		return
	}

	e.completeHistory(ctx, entry.ID, HistorySuccess, "reboot issued")
	e.cache.Invalidate(target.ID)
	e.scheduleReprobe(target.ID, ep)
	e.finalize(job, JobDone, nil, "")
}

// connectionFailed handles transport failures: the target is marked
// unreachable and no history entry is written, since nothing ran.
// Only a check may overwrite the cached record set; other kinds keep
// the last-known listing and flip reachability alone.
func (e *Executor) connectionFailed(job *Job, targetID string, err error) {
	if job.Kind == OpCheck {
		e.cache.Put(CacheEntry{
			TargetID:     targetID,
			CheckedAt:    time.Now().UTC(),
			Reachability: Unreachable,
		})
	} else {
		e.cache.SetReachability(targetID, Unreachable)
	}
	msg := fmt.Errorf("%w: %v", ErrConnectionFailed, err).Error()
	e.broadcast.Publish(targetID, OutputEvent{Type: "error", Message: msg})
	e.finalize(job, JobFailed, nil, msg)
}

// failWithHistory handles failures after the command began: the
// provisional history entry goes to failed, unless the failure was a
// connection error before anything ran on this command.
func (e *Executor) failWithHistory(ctx context.Context, job *Job, targetID, entryID string, err error, output string) {
	var msg string
	switch {
	case errors.Is(err, remote.ErrTimeout):
		msg = fmt.Errorf("%w: %v", ErrCommandTimeout, err).Error() +
			" (the remote process may still be running)"
		e.completeHistory(ctx, entryID, HistoryFailed, output+"\n"+msg)
	case errors.Is(err, remote.ErrConnect):
		e.cache.SetReachability(targetID, Unreachable)
		msg = fmt.Errorf("%w: %v", ErrConnectionFailed, err).Error()
		e.completeHistory(ctx, entryID, HistoryFailed, msg)
	default:
		msg = err.Error()
		e.completeHistory(ctx, entryID, HistoryFailed, output+"\n"+msg)
	}
	e.broadcast.Publish(targetID, OutputEvent{Type: "error", Message: msg})
	e.finalize(job, JobFailed, nil, msg)
}

func (e *Executor) scheduleReprobe(targetID string, ep remote.Endpoint) {
	if e.prober == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.prober.Reprobe(e.baseCtx, targetID, ep, e.cfg.ReprobeDelay, e.cfg.ReprobeTimeout)
	}()
}

func (e *Executor) remoteOpts(targetID string) remote.Options {
	return remote.Options{
		ConnectTimeout: e.cfg.ConnectTimeout,
		CommandTimeout: e.cfg.CommandTimeout,
		OnLine: func(stream remote.Stream, line string) {
			e.broadcast.Publish(targetID, OutputEvent{
				Type: "output", Stream: string(stream), Line: line,
			})
		},
	}
}

func (e *Executor) historyEntry(job *Job, manager string) *HistoryEntry {
	return &HistoryEntry{
		ID:        uuid.NewString(),
		TargetID:  job.TargetID,
		Kind:      job.Kind,
		Manager:   manager,
		Status:    HistoryStarted,
		StartedAt: time.Now().UTC(),
	}
}

func (e *Executor) completeHistory(ctx context.Context, entryID string, status HistoryStatus, output string) {
	if err := e.history.Complete(ctx, entryID, status, strings.TrimSpace(output)); err != nil {
		e.logger.Warn("failed to complete history entry",
			zap.String("entry_id", entryID), zap.Error(err))
	}
}

func (e *Executor) setStatus(job *Job, status JobStatus) {
	e.mu.Lock()
	job.Status = status
	e.mu.Unlock()
}

// finalize moves the job to its terminal state, emits the done event
// and the completion bus event, and counts the outcome.
func (e *Executor) finalize(job *Job, status JobStatus, result *CacheEntry, errMsg string) {
	e.mu.Lock()
	job.Status = status
	job.Result = result
	job.Err = errMsg
	job.FinishedAt = time.Now().UTC()
	delete(e.cancels, job.ID)
	e.mu.Unlock()

	jobsTotal.WithLabelValues(string(job.Kind), string(status)).Inc()
	e.broadcast.Publish(job.TargetID, OutputEvent{
		Type: "done", Kind: job.Kind, JobID: job.ID, Status: status,
	})
	e.publishBus(TopicJobCompleted, JobCompletedPayload{
		JobID:    job.ID,
		TargetID: job.TargetID,
		Kind:     job.Kind,
		Status:   status,
		Error:    errMsg,
	})

	e.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("target_id", job.TargetID),
		zap.String("kind", string(job.Kind)),
		zap.String("status", string(status)),
	)
}

func (e *Executor) phase(targetID, msg string) {
	e.broadcast.Publish(targetID, OutputEvent{Type: "phase", Message: msg})
}

func (e *Executor) publishBus(topic string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "updates",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// janitor discards terminal jobs after the retention grace period and
// refreshes the stale-cache gauge.
func (e *Executor) janitor() {
	defer e.wg.Done()
	interval := e.cfg.JobRetention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.baseCtx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-e.cfg.JobRetention)
			e.mu.Lock()
			for id, job := range e.jobs {
				if job.Status.Terminal() && job.FinishedAt.Before(cutoff) {
					delete(e.jobs, id)
				}
			}
			e.mu.Unlock()
			staleCacheEntries.Set(float64(e.cache.StaleCount()))
		}
	}
}

func endpointFor(t *inventory.Target) remote.Endpoint {
	return remote.Endpoint{
		Host:          t.Address,
		Port:          t.Port,
		User:          t.Username,
		AuthMethod:    string(t.AuthMethod),
		CredentialRef: t.CredentialRef,
	}
}
