package updates

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/fleetpatch/fleetpatch/internal/store"
)

func newTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), "updates", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewHistoryStore(db.DB())
}

func startedEntry(id, targetID string, kind OpKind) *HistoryEntry {
	return &HistoryEntry{
		ID:        id,
		TargetID:  targetID,
		Kind:      kind,
		Manager:   "apt",
		Status:    HistoryStarted,
		Command:   "apt-get -y upgrade",
		StartedAt: time.Now().UTC(),
	}
}

func TestHistoryAppendComplete(t *testing.T) {
	s := newTestHistory(t)
	ctx := context.Background()

	e := startedEntry("h1", "t1", OpUpgradeAll)
	e.Packages = []string{"bash", "curl"}
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Running entry is visible with no completion time.
	list, err := s.ListByTarget(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status != HistoryStarted || list[0].CompletedAt != nil {
		t.Fatalf("running entry = %+v", list)
	}
	if len(list[0].Packages) != 2 {
		t.Errorf("packages = %v", list[0].Packages)
	}

	if err := s.Complete(ctx, "h1", HistorySuccess, "42 upgraded"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	list, err = s.ListByTarget(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := list[0]
	if got.Status != HistorySuccess || got.Output != "42 upgraded" || got.CompletedAt == nil {
		t.Errorf("completed entry = %+v", got)
	}
}

func TestHistoryCompleteOnlyOnce(t *testing.T) {
	s := newTestHistory(t)
	ctx := context.Background()

	if err := s.Append(ctx, startedEntry("h1", "t1", OpUpgradeAll)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Complete(ctx, "h1", HistoryWarning, "connection lost"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A second completion must not rewrite the terminal status.
	if err := s.Complete(ctx, "h1", HistorySuccess, "late result"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second complete = %v, want sql.ErrNoRows", err)
	}
	list, _ := s.ListByTarget(ctx, "t1", 1)
	if list[0].Status != HistoryWarning {
		t.Errorf("status = %s, warning must be permanent", list[0].Status)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := newTestHistory(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"h1", "h2", "h3"} {
		e := startedEntry(id, "t1", OpCheck)
		e.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	list, err := s.ListByTarget(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d entries, want limit 2", len(list))
	}
	if list[0].ID != "h3" || list[1].ID != "h2" {
		t.Errorf("order = %s, %s; want h3, h2", list[0].ID, list[1].ID)
	}
}

func TestHistoryPurge(t *testing.T) {
	s := newTestHistory(t)
	ctx := context.Background()

	old := startedEntry("old", "t1", OpCheck)
	old.StartedAt = time.Now().UTC().Add(-48 * time.Hour)
	running := startedEntry("running", "t1", OpUpgradeAll)
	running.StartedAt = old.StartedAt
	fresh := startedEntry("fresh", "t1", OpCheck)

	for _, e := range []*HistoryEntry{old, running, fresh} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Complete(ctx, "old", HistorySuccess, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	n, err := s.PurgeOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1 (running entries are never purged)", n)
	}
}
