package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate_AppliesOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	applied := 0
	migs := []plugin.Migration{
		{
			Version:     1,
			Description: "create test table",
			Up: func(tx *sql.Tx) error {
				applied++
				_, err := tx.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`)
				return err
			},
		},
	}

	if err := s.Migrate(ctx, "testmod", migs); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := s.Migrate(ctx, "testmod", migs); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if applied != 1 {
		t.Errorf("migration applied %d times, want 1", applied)
	}
}

func TestMigrate_PerModuleVersions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mk := func(table string) []plugin.Migration {
		return []plugin.Migration{{
			Version:     1,
			Description: "create " + table,
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE ` + table + ` (id INTEGER PRIMARY KEY)`)
				return err
			},
		}}
	}

	if err := s.Migrate(ctx, "alpha", mk("alpha_t")); err != nil {
		t.Fatalf("migrate alpha: %v", err)
	}
	// Same version number under a different module name must still apply.
	if err := s.Migrate(ctx, "beta", mk("beta_t")); err != nil {
		t.Fatalf("migrate beta: %v", err)
	}

	for _, table := range []string{"alpha_t", "beta_t"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestMigrate_FailedMigrationRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	migs := []plugin.Migration{{
		Version:     1,
		Description: "broken",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`CREATE TABLE half_done (id INTEGER)`); err != nil {
				return err
			}
			return errors.New("boom")
		},
	}}

	if err := s.Migrate(ctx, "broken", migs); err == nil {
		t.Fatal("expected migrate error, got nil")
	}

	var name string
	err := s.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='half_done'",
	).Scan(&name)
	if err != sql.ErrNoRows {
		t.Errorf("half-applied migration left table behind (err=%v)", err)
	}
}

func TestTx_Commit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.DB().Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv (k, v) VALUES ('a', '1')`)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	var v string
	if err := s.DB().QueryRow(`SELECT v FROM kv WHERE k = 'a'`).Scan(&v); err != nil {
		t.Fatalf("row not committed: %v", err)
	}
}

func TestCheckVersion_RejectsOlderBinary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CheckVersion(ctx, "1.2.0"); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if err := s.CheckVersion(ctx, "1.1.0"); !errors.Is(err, ErrNewerSchema) {
		t.Errorf("older binary: err = %v, want ErrNewerSchema", err)
	}
	if err := s.CheckVersion(ctx, "1.3.0"); err != nil {
		t.Errorf("newer binary: %v", err)
	}
}

func TestCheckVersion_DevAlwaysPasses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CheckVersion(ctx, "9.9.9"); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	if err := s.CheckVersion(ctx, "dev"); err != nil {
		t.Errorf("dev binary rejected: %v", err)
	}
}
