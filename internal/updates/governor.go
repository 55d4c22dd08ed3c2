package updates

import (
	"context"
	"sync"
)

// Governor enforces the two concurrency rules: at most one operation per
// target, and at most maxSessions concurrent remote sessions overall.
// The per-target lock rejects immediately; the global slot blocks until
// capacity frees up or the context is cancelled.
type Governor struct {
	mu    sync.Mutex
	held  map[string]struct{}
	slots chan struct{}
}

// NewGovernor creates a governor with the given global session capacity.
func NewGovernor(maxSessions int) *Governor {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Governor{
		held:  make(map[string]struct{}),
		slots: make(chan struct{}, maxSessions),
	}
}

// Ticket represents a held target lock and, once AcquireSlot succeeds,
// a global session slot. Release is idempotent.
type Ticket struct {
	g        *Governor
	targetID string
	hasSlot  bool
	once     sync.Once
}

// Lock takes the per-target lock without touching the global slots.
// Returns ErrTargetBusy immediately if another operation holds it;
// callers are never queued behind a busy target.
func (g *Governor) Lock(targetID string) (*Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[targetID]; busy {
		return nil, ErrTargetBusy
	}
	g.held[targetID] = struct{}{}
	return &Ticket{g: g, targetID: targetID}, nil
}

// AcquireSlot blocks until a global session slot is free. On context
// cancellation the ticket is released, including the target lock.
func (t *Ticket) AcquireSlot(ctx context.Context) error {
	select {
	case t.g.slots <- struct{}{}:
		t.hasSlot = true
		return nil
	case <-ctx.Done():
		t.Release()
		return ctx.Err()
	}
}

// Acquire is Lock followed by AcquireSlot.
func (g *Governor) Acquire(ctx context.Context, targetID string) (*Ticket, error) {
	t, err := g.Lock(targetID)
	if err != nil {
		return nil, err
	}
	if err := t.AcquireSlot(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Release frees the target lock and the global slot, if held. Safe to
// call more than once.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.g.mu.Lock()
		delete(t.g.held, t.targetID)
		t.g.mu.Unlock()
		if t.hasSlot {
			<-t.g.slots
		}
	})
}

// Busy reports whether an operation currently holds the target's lock.
func (g *Governor) Busy(targetID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.held[targetID]
	return busy
}

// InUse returns the number of occupied global session slots.
func (g *Governor) InUse() int {
	return len(g.slots)
}
