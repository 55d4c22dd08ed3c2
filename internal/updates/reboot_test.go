package updates

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fleetpatch/fleetpatch/internal/remote"
)

func TestClassifyUpgrade(t *testing.T) {
	cases := []struct {
		name string
		res  remote.Result
		want HistoryStatus
	}{
		{"clean exit", remote.Result{ExitCode: 0}, HistorySuccess},
		{"non-zero exit", remote.Result{ExitCode: 100}, HistoryFailed},
		{"severed session", remote.Result{Disconnected: true}, HistoryWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := classifyUpgrade(&tc.res)
			if got != tc.want {
				t.Errorf("classifyUpgrade = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestProberTargetComesBack(t *testing.T) {
	cache := NewCache(time.Hour)
	var sshProbes atomic.Int32
	runner := &fakeRunner{
		run: func(ctx context.Context, ep remote.Endpoint, cmd string, opts remote.Options) (*remote.Result, error) {
			sshProbes.Add(1)
			return &remote.Result{ExitCode: 0}, nil
		},
	}
	p := NewProber(runner, cache, zap.NewNop())
	p.ping = func(ctx context.Context, host string, timeout time.Duration) bool { return true }
	p.pollInterval = time.Millisecond

	p.Reprobe(context.Background(), "t1", remote.Endpoint{Host: "10.0.0.5"}, 0, time.Second)

	entry, ok := cache.Get("t1")
	if !ok || entry.Reachability != Reachable {
		t.Errorf("entry = %+v, ok = %v", entry, ok)
	}
	if sshProbes.Load() == 0 {
		t.Error("reachability must be confirmed over SSH, not ping alone")
	}
}

func TestProberGivesUpAfterTimeout(t *testing.T) {
	cache := NewCache(time.Hour)
	runner := &fakeRunner{
		run: func(ctx context.Context, ep remote.Endpoint, cmd string, opts remote.Options) (*remote.Result, error) {
			return nil, remote.ErrConnect
		},
	}
	p := NewProber(runner, cache, zap.NewNop())
	p.ping = func(ctx context.Context, host string, timeout time.Duration) bool { return false }
	p.pollInterval = time.Millisecond

	p.Reprobe(context.Background(), "t1", remote.Endpoint{Host: "10.0.0.5"}, 0, 10*time.Millisecond)

	entry, ok := cache.Get("t1")
	if !ok || entry.Reachability != Unreachable {
		t.Errorf("entry = %+v, ok = %v", entry, ok)
	}
}

func TestProberPingAliveButSSHDown(t *testing.T) {
	cache := NewCache(time.Hour)
	runner := &fakeRunner{
		run: func(ctx context.Context, ep remote.Endpoint, cmd string, opts remote.Options) (*remote.Result, error) {
			return nil, remote.ErrConnect
		},
	}
	p := NewProber(runner, cache, zap.NewNop())
	p.ping = func(ctx context.Context, host string, timeout time.Duration) bool { return true }
	p.pollInterval = time.Millisecond

	p.Reprobe(context.Background(), "t1", remote.Endpoint{Host: "10.0.0.5"}, 0, 10*time.Millisecond)

	if entry, _ := cache.Get("t1"); entry.Reachability != Unreachable {
		t.Errorf("reachability = %s, a pingable host without sshd is not ready", entry.Reachability)
	}
}

func TestProberNeverRewritesWarningHistory(t *testing.T) {
	hist := newTestHistory(t)
	ctx := context.Background()

	e := startedEntry("h1", "t1", OpUpgradeAll)
	if err := hist.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := hist.Complete(ctx, "h1", HistoryWarning, "connection lost"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// The re-probe only touches the cache.
	cache := NewCache(time.Hour)
	runner := &fakeRunner{
		run: func(ctx context.Context, ep remote.Endpoint, cmd string, opts remote.Options) (*remote.Result, error) {
			return &remote.Result{ExitCode: 0}, nil
		},
	}
	p := NewProber(runner, cache, zap.NewNop())
	p.ping = func(ctx context.Context, host string, timeout time.Duration) bool { return true }
	p.Reprobe(ctx, "t1", remote.Endpoint{Host: "10.0.0.5"}, 0, time.Second)

	list, _ := hist.ListByTarget(ctx, "t1", 1)
	if list[0].Status != HistoryWarning {
		t.Errorf("history status = %s, warning is permanent", list[0].Status)
	}
	if entry, _ := cache.Get("t1"); entry.Reachability != Reachable {
		t.Errorf("cache reachability = %s, want reachable", entry.Reachability)
	}
}
