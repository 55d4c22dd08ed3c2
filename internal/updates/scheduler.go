package updates

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Submitter is the slice of the executor the scheduler needs.
type Submitter interface {
	Submit(ctx context.Context, targetID string, kind OpKind, pkg string) (string, error)
}

// Scheduler periodically re-checks targets whose cached listing has
// gone stale. Submissions are paced so a large fleet does not land on
// the governor all at once.
type Scheduler struct {
	targets  TargetSource
	cache    *Cache
	exec     Submitter
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that submits stale checks.
func NewScheduler(targets TargetSource, cache *Cache, exec Submitter, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		targets:  targets,
		cache:    cache,
		exec:     exec,
		interval: interval,
		// One submission per second, small burst.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		logger:  logger,
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop signals the scheduler to stop and waits for completion.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// tick submits a check for every enabled target whose cache entry is
// missing or stale. Busy targets are skipped silently: an operation is
// already running there.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.interval)
	defer cancel()

	targets, err := s.targets.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("scheduler: failed to list targets", zap.Error(err))
		return
	}

	for _, t := range targets {
		if !s.cache.IsStale(t.ID) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := s.exec.Submit(ctx, t.ID, OpCheck, ""); err != nil {
			if errors.Is(err, ErrTargetBusy) {
				continue
			}
			s.logger.Warn("scheduler: check submission failed",
				zap.String("target_id", t.ID), zap.Error(err))
		}
	}
}
