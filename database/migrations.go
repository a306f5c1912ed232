package database

import (
	"context"
	"fmt"
	"log"
)

var sqliteMigrations = []string{
	// Client state table
	`CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS client_state_expires_at ON client_state (expires_at);`,
}

var postgresMigrations = []string{
	// Client state table
	`CREATE TABLE IF NOT EXISTS client_state (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS client_state_expires_at ON client_state (expires_at);`,
}

// runMigrations ensures tables are created if they don't exist
func runMigrations(ctx context.Context, exec func(ctx context.Context, query string) error, migrations []string) error {
	for _, query := range migrations {
		if err := exec(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("Migrations applied successfully.")
	return nil
}
