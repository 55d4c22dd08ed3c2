package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
	"go.uber.org/zap"
)

func TestBus_PublishToTopicSubscriber(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	unsub := b.Subscribe("updates.job.completed", func(_ context.Context, e plugin.Event) {
		if e.Topic != "updates.job.completed" {
			t.Errorf("handler got topic %q", e.Topic)
		}
		got.Add(1)
	})
	defer unsub()

	_ = b.Publish(context.Background(), plugin.Event{Topic: "updates.job.completed", Source: "updates"})
	_ = b.Publish(context.Background(), plugin.Event{Topic: "other.topic"})

	if got.Load() != 1 {
		t.Errorf("handler called %d times, want 1", got.Load())
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	unsub := b.SubscribeAll(func(_ context.Context, _ plugin.Event) {
		got.Add(1)
	})
	defer unsub()

	_ = b.Publish(context.Background(), plugin.Event{Topic: "a"})
	_ = b.Publish(context.Background(), plugin.Event{Topic: "b"})

	if got.Load() != 2 {
		t.Errorf("wildcard handler called %d times, want 2", got.Load())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	unsub := b.Subscribe("t", func(_ context.Context, _ plugin.Event) { got.Add(1) })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})
	unsub()
	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})

	if got.Load() != 1 {
		t.Errorf("handler called %d times after unsubscribe, want 1", got.Load())
	}
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	b := NewBus(zap.NewNop())

	b.Subscribe("t", func(_ context.Context, _ plugin.Event) {
		panic("handler bug")
	})
	var got atomic.Int64
	b.Subscribe("t", func(_ context.Context, _ plugin.Event) { got.Add(1) })

	// Must not panic the caller, and the second handler still runs.
	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})

	if got.Load() != 1 {
		t.Errorf("second handler called %d times, want 1", got.Load())
	}
}

func TestBus_PublishAsync(t *testing.T) {
	b := NewBus(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe("t", func(_ context.Context, _ plugin.Event) { wg.Done() })

	b.PublishAsync(context.Background(), plugin.Event{Topic: "t", Timestamp: time.Now()})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
}
