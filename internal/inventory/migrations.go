package inventory

import (
	"database/sql"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create inventory targets table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS inventory_targets (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						address TEXT NOT NULL,
						port INTEGER NOT NULL DEFAULT 22,
						username TEXT NOT NULL,
						auth_method TEXT NOT NULL DEFAULT 'key',
						credential_ref TEXT NOT NULL DEFAULT '',
						disabled_managers TEXT NOT NULL DEFAULT '',
						enabled INTEGER NOT NULL DEFAULT 1,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_targets_name ON inventory_targets(name)`,
					`CREATE INDEX IF NOT EXISTS idx_inventory_targets_enabled ON inventory_targets(enabled)`,
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
