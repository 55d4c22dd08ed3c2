package updates

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"

	"github.com/fleetpatch/fleetpatch/internal/remote"
)

// classifyUpgrade maps an upgrade command outcome to its recorded
// status. An exit code settles it; a severed session without one means
// the upgrade likely completed and took the connection down with it,
// commonly a kernel or init upgrade followed by a reboot. That case is
// a warning, and it stays a warning: the later re-probe only refreshes
// reachability.
func classifyUpgrade(res *remote.Result) (HistoryStatus, string) {
	if res.Disconnected {
		return HistoryWarning, "likely completed; connection lost mid-upgrade, host may be rebooting"
	}
	if res.ExitCode != 0 {
		return HistoryFailed, ""
	}
	return HistorySuccess, ""
}

// Prober verifies whether a target came back after a suspected reboot.
type Prober struct {
	runner remote.Runner
	cache  *Cache
	logger *zap.Logger

	// ping is swapped out in tests.
	ping func(ctx context.Context, host string, timeout time.Duration) bool

	// pollInterval spaces the attempts within the re-probe window.
	pollInterval time.Duration
}

// NewProber creates a prober that pings over ICMP and then confirms
// over SSH.
func NewProber(runner remote.Runner, cache *Cache, logger *zap.Logger) *Prober {
	return &Prober{
		runner:       runner,
		cache:        cache,
		logger:       logger,
		ping:         icmpPing,
		pollInterval: 15 * time.Second,
	}
}

// Reprobe waits out the delay, then repeatedly probes the target until
// it answers or the timeout elapses, recording the outcome in the
// cache's reachability. History entries are never revisited here.
func (p *Prober) Reprobe(ctx context.Context, targetID string, ep remote.Endpoint, delay, timeout time.Duration) {
	p.cache.SetReachability(targetID, ReachabilityUnknown)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		if p.alive(ctx, ep) {
			p.logger.Info("target answered after suspected reboot",
				zap.String("target_id", targetID))
			p.cache.SetReachability(targetID, Reachable)
			return
		}
		if time.Now().After(deadline) {
			p.logger.Warn("target did not come back within re-probe window",
				zap.String("target_id", targetID),
				zap.Duration("timeout", timeout))
			p.cache.SetReachability(targetID, Unreachable)
			return
		}
		select {
		case <-time.After(p.pollInterval):
		case <-ctx.Done():
			return
		}
	}
}

// alive answers only when the host is pingable and an SSH session can
// run a command, since sshd tends to come up well after the network
// stack during boot.
func (p *Prober) alive(ctx context.Context, ep remote.Endpoint) bool {
	if !p.ping(ctx, ep.Host, 5*time.Second) {
		return false
	}
	_, err := p.runner.Run(ctx, ep, "true", remote.Options{
		ConnectTimeout: 5 * time.Second,
		CommandTimeout: 10 * time.Second,
	})
	return err == nil
}

func icmpPing(ctx context.Context, host string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pinger.Run()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
