package updates

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// HistoryStore persists the append-only operation audit log. Entries
// are written as started when a command begins and completed exactly
// once; nothing else ever mutates them.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a new HistoryStore backed by the given database.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append writes a provisional started entry.
func (s *HistoryStore) Append(ctx context.Context, e *HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO update_history
			(id, target_id, kind, manager, packages, status, command, output, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TargetID, string(e.Kind), e.Manager,
		strings.Join(e.Packages, ","), string(e.Status), e.Command, e.Output,
		e.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// Complete moves a started entry to its terminal status, recording the
// captured output and completion time.
func (s *HistoryStore) Complete(ctx context.Context, id string, status HistoryStatus, output string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE update_history
		SET status = ?, output = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(status), output, time.Now().UTC(), id, string(HistoryStarted),
	)
	if err != nil {
		return fmt.Errorf("complete history entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete history entry: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByTarget returns entries for a target, newest first. The running
// entry, if any, is included with a nil CompletedAt.
func (s *HistoryStore) ListByTarget(ctx context.Context, targetID string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, kind, manager, packages, status, command, output,
		       started_at, completed_at
		FROM update_history
		WHERE target_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`,
		targetID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var kind, status, packages string
		var completed sql.NullTime
		err := rows.Scan(
			&e.ID, &e.TargetID, &kind, &e.Manager, &packages, &status,
			&e.Command, &e.Output, &e.StartedAt, &completed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Kind = OpKind(kind)
		e.Status = HistoryStatus(status)
		if packages != "" {
			e.Packages = strings.Split(packages, ",")
		}
		if completed.Valid {
			ts := completed.Time
			e.CompletedAt = &ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeOlderThan deletes terminal entries older than the cutoff.
func (s *HistoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM update_history
		WHERE status != ? AND started_at < ?`,
		string(HistoryStarted), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return res.RowsAffected()
}
