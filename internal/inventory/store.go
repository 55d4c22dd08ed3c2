package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TargetStore provides database access for the inventory module.
type TargetStore struct {
	db *sql.DB
}

// NewTargetStore creates a new TargetStore backed by the given database.
func NewTargetStore(db *sql.DB) *TargetStore {
	return &TargetStore{db: db}
}

const targetColumns = `id, name, address, port, username, auth_method,
	credential_ref, disabled_managers, enabled, created_at, updated_at`

// Insert adds a new target.
func (s *TargetStore) Insert(ctx context.Context, t *Target) error {
	enabled := 0
	if t.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_targets (`+targetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Address, t.Port, t.Username, string(t.AuthMethod),
		t.CredentialRef, strings.Join(t.DisabledManagers, ","), enabled,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// Get returns a target by ID. Returns nil, nil if not found.
func (s *TargetStore) Get(ctx context.Context, id string) (*Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM inventory_targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// List returns all targets ordered by name.
func (s *TargetStore) List(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM inventory_targets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	return collectTargets(rows)
}

// ListEnabled returns all enabled targets ordered by name.
func (s *TargetStore) ListEnabled(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM inventory_targets WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list enabled targets: %w", err)
	}
	defer rows.Close()
	return collectTargets(rows)
}

// Update overwrites the mutable fields of a target.
func (s *TargetStore) Update(ctx context.Context, t *Target) error {
	enabled := 0
	if t.Enabled {
		enabled = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_targets
		SET name = ?, address = ?, port = ?, username = ?, auth_method = ?,
		    credential_ref = ?, disabled_managers = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Address, t.Port, t.Username, string(t.AuthMethod),
		t.CredentialRef, strings.Join(t.DisabledManagers, ","), enabled,
		time.Now().UTC(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a target by ID. Returns sql.ErrNoRows if absent.
func (s *TargetStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*Target, error) {
	var t Target
	var method, disabled string
	var enabledInt int
	err := row.Scan(
		&t.ID, &t.Name, &t.Address, &t.Port, &t.Username, &method,
		&t.CredentialRef, &disabled, &enabledInt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AuthMethod = AuthMethod(method)
	t.Enabled = enabledInt != 0
	if disabled != "" {
		t.DisabledManagers = strings.Split(disabled, ",")
	}
	return &t, nil
}

func collectTargets(rows *sql.Rows) ([]Target, error) {
	var targets []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		targets = append(targets, *t)
	}
	return targets, rows.Err()
}
