package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor applies and tracks migrations.
type Executor struct {
	pool   *pgxpool.Pool
	table  string
	lockID int64 // PostgreSQL advisory lock ID
}

// NewExecutor creates a new migration executor.
func NewExecutor(pool *pgxpool.Pool) *Executor {
	return &Executor{
		pool:   pool,
		table:  "tombstone_migrations",
		lockID: 7_204_553_112,
	}
}

// WithLockID sets a custom advisory lock ID.
func (e *Executor) WithLockID(lockID int64) *Executor {
	e.lockID = lockID
	return e
}

// Initialize creates the tracking table if it doesn't exist.
func (e *Executor) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version VARCHAR(14) NOT NULL,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (version, name)
		)
	`, e.table)

	if _, err := e.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s table: %w", e.table, err)
	}
	return nil
}

// Applied returns all applied migrations in version order.
func (e *Executor) Applied(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := e.pool.Query(ctx,
		fmt.Sprintf("SELECT version, name, applied_at FROM %s ORDER BY version ASC, name ASC", e.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			record    MigrationRecord
			appliedAt time.Time
		)
		if err := rows.Scan(&record.Version, &record.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		record.Status = StatusApplied
		record.AppliedAt = &appliedAt
		records = append(records, record)
	}

	return records, rows.Err()
}

// IsApplied reports whether a migration with the same name has been applied.
// Names identify the schema change; versions only order them.
func (e *Executor) IsApplied(ctx context.Context, name string) (bool, error) {
	return isApplied(ctx, e.pool, e.table, name)
}

func isApplied(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, table, name string) (bool, error) {
	var count int
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = $1", table), name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// Apply executes a migration's up SQL in one transaction holding the
// advisory lock. An already applied migration is skipped and reported as
// not applied.
func (e *Executor) Apply(ctx context.Context, m Migration) (bool, error) {
	if err := e.Initialize(ctx); err != nil {
		return false, err
	}

	applied := false
	err := e.withLockedTx(ctx, func(tx pgx.Tx) error {
		done, err := isApplied(ctx, tx, e.table, m.Name)
		if err != nil || done {
			return err
		}

		if err := execAll(ctx, tx, m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}

		_, err = tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", e.table),
			m.Version, m.Name)
		if err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Rollback executes a migration's down SQL and forgets it.
func (e *Executor) Rollback(ctx context.Context, m Migration) error {
	return e.withLockedTx(ctx, func(tx pgx.Tx) error {
		done, err := isApplied(ctx, tx, e.table, m.Name)
		if err != nil {
			return err
		}
		if !done {
			return fmt.Errorf("migration %s is not applied", m.Name)
		}

		if err := execAll(ctx, tx, m.DownSQL); err != nil {
			return fmt.Errorf("rollback %s: %w", m.Name, err)
		}

		_, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE name = $1", e.table), m.Name)
		if err != nil {
			return fmt.Errorf("failed to delete migration record: %w", err)
		}
		return nil
	})
}

// withLockedTx runs fn in a transaction that holds the executor's
// transaction-scoped advisory lock.
func (e *Executor) withLockedTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", e.lockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func execAll(ctx context.Context, tx pgx.Tx, sql string) error {
	for i, stmt := range splitSQL(sql) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d failed: %w", i+1, err)
		}
	}
	return nil
}

// splitSQL splits a SQL string into individual statements.
// It splits on semicolons; none of the generated DDL contains literal ones.
func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	var cleanedLines []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		cleanedLines = append(cleanedLines, line)
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleanedLines, "\n"), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}
