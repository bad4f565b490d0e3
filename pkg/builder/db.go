package builder

import (
	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

// DB binds query builders to a pool, connection or transaction.
type DB struct {
	q runtime.Querier
}

// New creates a new query builder DB. A nil querier is allowed for SQL
// generation only.
func New(q runtime.Querier) *DB {
	return &DB{q: q}
}

// Querier returns the underlying querier.
func (d *DB) Querier() runtime.Querier {
	return d.q
}

// Select creates a new SELECT query.
// Usage: builder.Select(db, table).Where(...).All(ctx)
func Select(d *DB, table *schema.TableMetadata) *SelectQuery {
	return &SelectQuery{
		db:      d,
		table:   table,
		columns: []string{"*"},
		where:   make([]Condition, 0),
		orderBy: make([]OrderBy, 0),
	}
}

// Insert creates a new INSERT query.
// Usage: builder.Insert(db, table).Values(rec).Returning("id").Scan(ctx, &id)
func Insert(d *DB, table *schema.TableMetadata) *InsertQuery {
	return &InsertQuery{
		db:        d,
		table:     table,
		values:    make([]interface{}, 0),
		returning: make([]string, 0),
	}
}

// Update creates a new UPDATE query.
// Usage: builder.Update(db, table).Set("name", "John").Where(...).Exec(ctx)
func Update(d *DB, table *schema.TableMetadata) *UpdateQuery {
	return &UpdateQuery{
		db:        d,
		table:     table,
		sets:      make([]set, 0),
		where:     make([]Condition, 0),
		returning: make([]string, 0),
	}
}
