package inventory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/fleetpatch/fleetpatch/internal/store"
)

func newTestStore(t *testing.T) *TargetStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), "inventory", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewTargetStore(db.DB())
}

func testTarget(id, name string) *Target {
	now := time.Now().UTC()
	return &Target{
		ID:            id,
		Name:          name,
		Address:       "10.0.0.5",
		Port:          22,
		Username:      "patcher",
		AuthMethod:    AuthPrivateKey,
		CredentialRef: "/etc/fleetpatch/id_ed25519",
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestTargetStoreInsertGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := testTarget("t1", "web-01")
	in.DisabledManagers = []string{"snap", "flatpak"}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected target, got nil")
	}
	if got.Name != "web-01" || got.Address != "10.0.0.5" || got.Port != 22 {
		t.Errorf("unexpected target: %+v", got)
	}
	if got.AuthMethod != AuthPrivateKey {
		t.Errorf("auth method = %q, want %q", got.AuthMethod, AuthPrivateKey)
	}
	if len(got.DisabledManagers) != 2 || got.DisabledManagers[0] != "snap" {
		t.Errorf("disabled managers = %v", got.DisabledManagers)
	}
	if !got.Enabled {
		t.Error("expected target enabled")
	}
}

func TestTargetStoreGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing target, got %+v", got)
	}
}

func TestTargetStoreListEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testTarget("t1", "alpha")
	b := testTarget("t2", "bravo")
	b.Enabled = false
	for _, in := range []*Target{a, b} {
		if err := s.Insert(ctx, in); err != nil {
			t.Fatalf("insert %s: %v", in.Name, err)
		}
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list returned %d targets, want 2", len(all))
	}

	enabled, err := s.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != "t1" {
		t.Errorf("enabled = %+v, want only t1", enabled)
	}
}

func TestTargetStoreUniqueName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, testTarget("t1", "dup")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, testTarget("t2", "dup")); err == nil {
		t.Error("expected unique name violation")
	}
}

func TestTargetStoreUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := testTarget("t1", "web-01")
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	in.Address = "10.0.0.9"
	in.Enabled = false
	if err := s.Update(ctx, in); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != "10.0.0.9" || got.Enabled {
		t.Errorf("update not applied: %+v", got)
	}

	missing := testTarget("ghost", "ghost")
	if err := s.Update(ctx, missing); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("update missing = %v, want sql.ErrNoRows", err)
	}
}

func TestTargetStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, testTarget("t1", "web-01")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "t1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete = %v, want sql.ErrNoRows", err)
	}
}

func TestManagerDisabled(t *testing.T) {
	in := testTarget("t1", "web-01")
	in.DisabledManagers = []string{"pacman"}
	if !in.ManagerDisabled("pacman") {
		t.Error("pacman should be disabled")
	}
	if in.ManagerDisabled("apt") {
		t.Error("apt should not be disabled")
	}
}
