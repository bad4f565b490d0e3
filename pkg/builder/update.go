package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
)

// Set sets a column value for the UPDATE. Setting the same column twice keeps
// its first position and the last value.
func (q *UpdateQuery) Set(column string, value interface{}) *UpdateQuery {
	for i := range q.sets {
		if q.sets[i].column == column {
			q.sets[i].value = value
			return q
		}
	}
	q.sets = append(q.sets, set{column: column, value: value})
	return q
}

// Where adds a WHERE condition.
func (q *UpdateQuery) Where(condition Condition) *UpdateQuery {
	q.where = append(q.where, condition)
	return q
}

// Returning specifies columns to return after update.
func (q *UpdateQuery) Returning(columns ...string) *UpdateQuery {
	q.returning = columns
	return q
}

// ToSQL generates the UPDATE SQL and arguments.
func (q *UpdateQuery) ToSQL() (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	if len(q.sets) == 0 {
		return "", nil, fmt.Errorf("no columns to update")
	}

	var sql strings.Builder
	var args []interface{}
	paramNum := 1

	sql.WriteString("UPDATE ")
	sql.WriteString(q.table.Name)
	sql.WriteString(" SET ")

	setClauses := make([]string, 0, len(q.sets))
	for _, s := range q.sets {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", s.column, paramNum))
		args = append(args, s.value)
		paramNum++
	}
	sql.WriteString(strings.Join(setClauses, ", "))

	if len(q.where) > 0 {
		whereBuilder := NewWhereBuilderWithStart(paramNum)
		whereBuilder.Add(q.where...)
		whereSQL, whereArgs, err := whereBuilder.Build()
		if err != nil {
			return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
		}

		if whereSQL != "" {
			sql.WriteString(" ")
			sql.WriteString(whereSQL)
			args = append(args, whereArgs...)
		}
	}

	if len(q.returning) > 0 {
		sql.WriteString(" RETURNING ")
		sql.WriteString(strings.Join(q.returning, ", "))
	}

	return sql.String(), args, nil
}

// Exec executes the UPDATE query and returns the number of affected rows.
func (q *UpdateQuery) Exec(ctx context.Context) (int64, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return 0, err
	}

	tag, err := q.db.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, runtime.Wrap(sql, err)
	}

	return tag.RowsAffected(), nil
}
