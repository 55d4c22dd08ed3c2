package updates

import (
	"database/sql"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create update history table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS update_history (
						id TEXT PRIMARY KEY,
						target_id TEXT NOT NULL,
						kind TEXT NOT NULL,
						manager TEXT NOT NULL DEFAULT '',
						packages TEXT NOT NULL DEFAULT '',
						status TEXT NOT NULL,
						command TEXT NOT NULL DEFAULT '',
						output TEXT NOT NULL DEFAULT '',
						started_at DATETIME NOT NULL,
						completed_at DATETIME
					)`,
					`CREATE INDEX IF NOT EXISTS idx_update_history_target ON update_history(target_id, started_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_update_history_status ON update_history(status)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
