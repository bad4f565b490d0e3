// Package migration generates and applies the DDL that gives tables their
// tombstone columns.
package migration

import (
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version   string    // Version/timestamp (e.g., "20240101120000")
	Name      string    // Migration name (e.g., "add_tombstone_columns_products")
	UpSQL     string    // SQL for applying the migration
	DownSQL   string    // SQL for rolling back the migration
	AppliedAt time.Time // When the migration was applied
}

// MigrationStatus represents the status of a migration.
type MigrationStatus string

const (
	// StatusPending means the migration has not been applied.
	StatusPending MigrationStatus = "pending"
	// StatusApplied means the migration has been applied.
	StatusApplied MigrationStatus = "applied"
)

// MigrationRecord represents a migration in the tracking table.
type MigrationRecord struct {
	Version   string
	Name      string
	Status    MigrationStatus
	AppliedAt *time.Time
}

// Empty reports whether the migration has nothing to apply.
func (m Migration) Empty() bool {
	return len(splitSQL(m.UpSQL)) == 0
}

// GenerateVersion generates a timestamp-based version string.
// Format: YYYYMMDDHHmmss (e.g., "20240101120000")
func GenerateVersion(now time.Time) string {
	return now.UTC().Format("20060102150405")
}
