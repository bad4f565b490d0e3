// Package builder provides a metadata-driven query builder for PostgreSQL.
//
// Queries are built against a *schema.TableMetadata rather than a Go type
// parameter, so that code which only learns the model type at runtime (the
// cascade engine, deferred jobs, the CLI) can use them.
package builder

import (
	"context"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

// Query represents a database query.
type Query interface {
	// ToSQL generates the SQL query and parameter values.
	ToSQL() (sql string, args []interface{}, err error)
}

// Executable represents a query that can be executed.
type Executable interface {
	Query
	// Exec executes the query and returns the number of affected rows.
	Exec(ctx context.Context) (int64, error)
}

// SelectQuery represents a SELECT query.
type SelectQuery struct {
	db        *DB
	table     *schema.TableMetadata
	columns   []string
	where     []Condition
	groupBy   []string
	orderBy   []OrderBy
	limit     *int
	forUpdate bool
}

// InsertQuery represents an INSERT query.
type InsertQuery struct {
	db        *DB
	table     *schema.TableMetadata
	values    []interface{}
	returning []string
}

// UpdateQuery represents an UPDATE query.
type UpdateQuery struct {
	db        *DB
	table     *schema.TableMetadata
	sets      []set
	where     []Condition
	returning []string
}

// set is one column assignment. Order is preserved so generated SQL is stable.
type set struct {
	column string
	value  interface{}
}

// Condition represents a WHERE condition. Conditions are joined with AND.
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
}

// OrderBy represents an ORDER BY clause.
type OrderBy struct {
	Column    string
	Direction OrderDirection
}

// Operator represents a comparison operator.
type Operator string

const (
	// OpEqual represents the = operator.
	OpEqual Operator = "="
	// OpAny represents = ANY($n) with a single array parameter.
	OpAny Operator = "ANY"
	// OpIsNull represents the IS NULL operator.
	OpIsNull Operator = "IS NULL"
	// OpIsNotNull represents the IS NOT NULL operator.
	OpIsNotNull Operator = "IS NOT NULL"
)

// OrderDirection represents the sort direction.
type OrderDirection string

const (
	// Asc represents ascending order.
	Asc OrderDirection = "ASC"
	// Desc represents descending order.
	Desc OrderDirection = "DESC"
)
