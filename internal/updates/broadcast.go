package updates

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// subscriber is one live observer of a target's stream.
type subscriber struct {
	ch chan OutputEvent
}

// targetStream holds the replay buffer and subscribers for one target.
type targetStream struct {
	replay []OutputEvent
	subs   map[*subscriber]struct{}
}

// Broadcaster fans operation output out to WebSocket observers. Each
// target keeps a bounded replay buffer of the current operation so an
// observer attaching mid-operation sees the whole thing; the buffer is
// cleared by the reset event that precedes every operation. Publishing
// never blocks: a slow subscriber drops events from its own buffer
// only.
type Broadcaster struct {
	mu      sync.RWMutex
	streams map[string]*targetStream
	bufSize int
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster whose per-subscriber channels
// and replay buffers hold up to bufSize events.
func NewBroadcaster(bufSize int, logger *zap.Logger) *Broadcaster {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Broadcaster{
		streams: make(map[string]*targetStream),
		bufSize: bufSize,
		logger:  logger,
	}
}

func (b *Broadcaster) stream(targetID string) *targetStream {
	s, ok := b.streams[targetID]
	if !ok {
		s = &targetStream{subs: make(map[*subscriber]struct{})}
		b.streams[targetID] = s
	}
	return s
}

// Publish appends the event to the target's replay buffer and delivers
// it to every subscriber without blocking. A reset event clears the
// buffer first, so the buffer only ever holds the current operation.
func (b *Broadcaster) Publish(targetID string, ev OutputEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stream(targetID)

	if ev.Type == "reset" {
		s.replay = s.replay[:0]
	}
	s.replay = append(s.replay, ev)
	if len(s.replay) > b.bufSize {
		s.replay = s.replay[len(s.replay)-b.bufSize:]
	}

	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Debug("stream subscriber buffer full, dropping event",
				zap.String("target_id", targetID))
		}
	}
}

// Reset publishes a reset event if the target has buffered events from
// a prior operation, guaranteeing reset precedes started.
func (b *Broadcaster) Reset(targetID string) {
	b.mu.RLock()
	s, ok := b.streams[targetID]
	pending := ok && len(s.replay) > 0
	b.mu.RUnlock()
	if pending {
		b.Publish(targetID, OutputEvent{Type: "reset"})
	}
}

// Subscribe attaches an observer to a target's stream. Buffered events
// of the current operation are replayed first, then live events follow
// in order. The returned cancel function detaches the observer; it is
// safe to call more than once.
func (b *Broadcaster) Subscribe(targetID string) (<-chan OutputEvent, func()) {
	sub := &subscriber{ch: make(chan OutputEvent, b.bufSize)}

	b.mu.Lock()
	s := b.stream(targetID)
	for _, ev := range s.replay {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	s.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(s.subs, sub)
			if len(s.subs) == 0 && len(s.replay) == 0 {
				delete(b.streams, targetID)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// SubscriberCount returns the number of observers on a target's stream.
func (b *Broadcaster) SubscriberCount(targetID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.streams[targetID]
	if !ok {
		return 0
	}
	return len(s.subs)
}
