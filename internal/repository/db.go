package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candidates (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount TEXT NOT NULL,
			due_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			owner_reference TEXT NOT NULL DEFAULT '',
			reconciliation_id TEXT,
			reconciled_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_tenant_status ON candidates(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_tenant_due ON candidates(tenant_id, due_date)`,

		`CREATE TABLE IF NOT EXISTS reconciliations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			date DATETIME NOT NULL,
			description TEXT NOT NULL,
			amount TEXT NOT NULL,
			type TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			bank_name TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			candidate_id TEXT,
			confidence INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			suggestions TEXT NOT NULL DEFAULT '[]',
			notes TEXT NOT NULL DEFAULT '',
			processed_by TEXT NOT NULL DEFAULT '',
			processed_at DATETIME,
			created_at DATETIME NOT NULL,
			UNIQUE(tenant_id, transaction_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliations_tenant_status ON reconciliations(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliations_tenant_date ON reconciliations(tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliations_candidate ON reconciliations(candidate_id)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pattern TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			boost INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_tenant ON reconciliation_rules(tenant_id, enabled)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
