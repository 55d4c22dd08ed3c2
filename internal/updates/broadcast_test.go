package updates

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func collectEvents(ch <-chan OutputEvent, n int, t *testing.T) []OutputEvent {
	t.Helper()
	events := make([]OutputEvent, 0, n)
	timeout := time.After(time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %d of %d", len(events), n)
		}
	}
	return events
}

func TestBroadcastReplayThenLive(t *testing.T) {
	b := NewBroadcaster(16, zap.NewNop())

	b.Publish("t1", OutputEvent{Type: "started", Kind: OpCheck})
	b.Publish("t1", OutputEvent{Type: "output", Line: "line 1"})

	// Observer attaches mid-operation.
	ch, cancel := b.Subscribe("t1")
	defer cancel()

	b.Publish("t1", OutputEvent{Type: "output", Line: "line 2"})
	b.Publish("t1", OutputEvent{Type: "done", Status: JobDone})

	events := collectEvents(ch, 4, t)
	types := []string{events[0].Type, events[1].Type, events[2].Type, events[3].Type}
	want := []string{"started", "output", "output", "done"}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event order = %v, want %v", types, want)
		}
	}
	if events[1].Line != "line 1" || events[2].Line != "line 2" {
		t.Errorf("lines out of order: %q then %q", events[1].Line, events[2].Line)
	}
}

func TestBroadcastResetClearsReplay(t *testing.T) {
	b := NewBroadcaster(16, zap.NewNop())

	b.Publish("t1", OutputEvent{Type: "started"})
	b.Publish("t1", OutputEvent{Type: "output", Line: "old operation"})
	b.Publish("t1", OutputEvent{Type: "done"})

	// New operation: reset must precede started and clear the buffer.
	b.Reset("t1")
	b.Publish("t1", OutputEvent{Type: "started"})

	ch, cancel := b.Subscribe("t1")
	defer cancel()

	events := collectEvents(ch, 2, t)
	if events[0].Type != "reset" || events[1].Type != "started" {
		t.Errorf("replay = [%s %s], want [reset started]", events[0].Type, events[1].Type)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestBroadcastResetOnEmptyBuffer(t *testing.T) {
	b := NewBroadcaster(16, zap.NewNop())

	ch, cancel := b.Subscribe("t1")
	defer cancel()

	// Nothing buffered, so no reset frame is emitted.
	b.Reset("t1")
	b.Publish("t1", OutputEvent{Type: "started"})

	events := collectEvents(ch, 1, t)
	if events[0].Type != "started" {
		t.Errorf("first event = %s, want started", events[0].Type)
	}
}

func TestBroadcastSlowSubscriberDrops(t *testing.T) {
	b := NewBroadcaster(2, zap.NewNop())

	ch, cancel := b.Subscribe("t1")
	defer cancel()

	// Nobody drains ch; only its two buffer slots are kept.
	for i := 0; i < 10; i++ {
		b.Publish("t1", OutputEvent{Type: "output", Line: "x"})
	}
	if len(ch) != 2 {
		t.Errorf("subscriber buffer holds %d, want 2", len(ch))
	}

	// A fresh subscriber still gets the bounded replay.
	ch2, cancel2 := b.Subscribe("t1")
	defer cancel2()
	if len(ch2) != 2 {
		t.Errorf("replay delivered %d events, want 2", len(ch2))
	}
}

func TestBroadcastCancelIdempotent(t *testing.T) {
	b := NewBroadcaster(4, zap.NewNop())

	_, cancel := b.Subscribe("t1")
	cancel()
	cancel()

	if b.SubscriberCount("t1") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount("t1"))
	}
}

func TestBroadcastIsolatedTargets(t *testing.T) {
	b := NewBroadcaster(4, zap.NewNop())

	ch, cancel := b.Subscribe("t1")
	defer cancel()

	b.Publish("t2", OutputEvent{Type: "output", Line: "other target"})
	select {
	case ev := <-ch:
		t.Errorf("t1 observer received t2 event %+v", ev)
	default:
	}
}
