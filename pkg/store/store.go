// Package store defines the storage collaborator the cascade engine depends on.
//
// Implementations live in the memstore and pgstore subpackages. Records passed
// through a Tx are pointers to structs registered with a schema registry; when
// they implement tombstone.Record, implementations keep the embedded state's
// persisted snapshot current by calling MarkLoaded after reads and MarkSaved
// after writes.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// Store opens atomic units of work.
type Store interface {
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Hooks registered with
	// Tx.AfterCommit run after a successful commit, before InTx returns.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is one open transaction.
type Tx interface {
	// Save inserts rec when it is not yet persisted and updates it otherwise.
	Save(ctx context.Context, table *schema.TableMetadata, rec any) error
	// Find loads one record by primary key, ignoring tombstone state.
	Find(ctx context.Context, table *schema.TableMetadata, id any) (any, error)
	// FindAll loads the records with the given primary keys, ordered by key.
	// Missing ids are skipped.
	FindAll(ctx context.Context, table *schema.TableMetadata, ids []any) ([]any, error)
	// Query loads every record in scope, ordered by primary key.
	Query(ctx context.Context, scope Scope) ([]any, error)
	// IDs returns the primary keys of every record in scope, ascending.
	IDs(ctx context.Context, scope Scope) ([]any, error)
	// UpdateAll applies change to every record in scope in one statement and
	// returns the number of rows touched. No record is loaded.
	UpdateAll(ctx context.Context, scope Scope, change Change) (int64, error)
	// AfterCommit registers fn to run once the transaction commits. It never
	// runs if the transaction rolls back.
	AfterCommit(fn func(ctx context.Context))
}

// Scope selects records of one table.
type Scope struct {
	Table *schema.TableMetadata

	// ForeignKey and OwnerID restrict the scope to the dependents of one
	// owner. Both are empty for table-wide scopes.
	ForeignKey string
	OwnerID    any

	// State filters by tombstone state.
	State tombstone.Filter
	// BatchID, when set, restricts to records tombstoned in that batch.
	BatchID string
	// Limit caps the number of rows when positive.
	Limit int
}

// Validate reports whether the scope is well-formed.
func (s Scope) Validate() error {
	if s.Table == nil {
		return fmt.Errorf("store: scope has no table")
	}
	if (s.ForeignKey == "") != (s.OwnerID == nil) {
		return fmt.Errorf("store: scope on %s needs both a foreign key and an owner id", s.Table.Name)
	}
	if s.ForeignKey != "" && s.Table.GetColumnByName(s.ForeignKey) == nil {
		return fmt.Errorf("store: table %s has no column %s", s.Table.Name, s.ForeignKey)
	}
	if (s.State != tombstone.Any || s.BatchID != "") && !s.Table.HasTombstoneColumns() {
		return fmt.Errorf("store: table %s has no tombstone columns", s.Table.Name)
	}
	return nil
}

// Change is a mass tombstone transition.
type Change struct {
	Direction tombstone.Direction
	At        time.Time
	BatchID   string
	Actor     *int64
}

// Assignment is one column = value pair of an update.
type Assignment struct {
	Column string
	Value  any
}

// ColumnUpdatedAt is touched by every write when the table has it.
const ColumnUpdatedAt = "updated_at"

// Assignments returns the column updates that apply c to table, in a stable
// order. Restores leave the actor column untouched.
func (c Change) Assignments(table *schema.TableMetadata) ([]Assignment, error) {
	var out []Assignment
	switch c.Direction {
	case tombstone.Delete:
		if c.BatchID == "" {
			return nil, fmt.Errorf("store: delete change requires a batch id")
		}
		at := c.At.UTC()
		out = append(out,
			Assignment{Column: schema.ColumnTombstonedAt, Value: at},
			Assignment{Column: schema.ColumnBatchID, Value: c.BatchID},
		)
		if table.GetColumnByName(schema.ColumnTombstonedBy) != nil {
			var actor any
			if c.Actor != nil {
				actor = *c.Actor
			}
			out = append(out, Assignment{Column: schema.ColumnTombstonedBy, Value: actor})
		}
	case tombstone.Restore:
		out = append(out,
			Assignment{Column: schema.ColumnTombstonedAt, Value: nil},
			Assignment{Column: schema.ColumnBatchID, Value: nil},
		)
	default:
		return nil, fmt.Errorf("store: unknown direction %s", c.Direction)
	}
	if table.GetColumnByName(ColumnUpdatedAt) != nil {
		out = append(out, Assignment{Column: ColumnUpdatedAt, Value: c.At.UTC()})
	}
	return out, nil
}
