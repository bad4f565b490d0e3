package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
)

// Values sets the records to insert (single or multiple rows). Each must be a
// struct or pointer to struct of the table's Go type.
func (q *InsertQuery) Values(values ...interface{}) *InsertQuery {
	q.values = append(q.values, values...)
	return q
}

// Returning specifies columns to return after insert.
func (q *InsertQuery) Returning(columns ...string) *InsertQuery {
	q.returning = columns
	return q
}

// ToSQL generates the INSERT SQL and arguments.
func (q *InsertQuery) ToSQL() (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	if len(q.values) == 0 {
		return "", nil, fmt.Errorf("no values to insert")
	}

	var sql strings.Builder
	var args []interface{}
	paramNum := 1

	sql.WriteString("INSERT INTO ")
	sql.WriteString(q.table.Name)

	// Get columns and values from the first row
	columns, firstRowValues, err := structToValues(q.values[0], q.table)
	if err != nil {
		return "", nil, fmt.Errorf("failed to extract values: %w", err)
	}

	sql.WriteString(" (")
	sql.WriteString(strings.Join(columns, ", "))
	sql.WriteString(") VALUES ")

	valueClauses := make([]string, len(q.values))
	for i, val := range q.values {
		rowValues := firstRowValues
		if i > 0 {
			var rowColumns []string
			rowColumns, rowValues, err = structToValues(val, q.table)
			if err != nil {
				return "", nil, fmt.Errorf("failed to extract values from row %d: %w", i, err)
			}
			if len(rowColumns) != len(columns) {
				return "", nil, fmt.Errorf("row %d has a different column set than row 0", i)
			}
		}

		placeholders := make([]string, len(rowValues))
		for j := range rowValues {
			placeholders[j] = fmt.Sprintf("$%d", paramNum)
			paramNum++
			args = append(args, rowValues[j])
		}

		valueClauses[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	sql.WriteString(strings.Join(valueClauses, ", "))

	if len(q.returning) > 0 {
		sql.WriteString(" RETURNING ")
		sql.WriteString(strings.Join(q.returning, ", "))
	}

	return sql.String(), args, nil
}

// Exec executes the INSERT query and returns the number of inserted rows.
func (q *InsertQuery) Exec(ctx context.Context) (int64, error) {
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

// Scan executes a single-row INSERT ... RETURNING and scans the returned
// columns into dest.
func (q *InsertQuery) Scan(ctx context.Context, dest ...interface{}) error {
	if len(q.returning) == 0 {
		return fmt.Errorf("scan requires a RETURNING clause")
	}
	if len(q.values) != 1 {
		return fmt.Errorf("scan requires exactly one row, got %d", len(q.values))
	}

	sql, args, err := q.ToSQL()
	if err != nil {
		return err
	}

	if err := q.db.q.QueryRow(ctx, sql, args...).Scan(dest...); err != nil {
		return runtime.Wrap(sql, err)
	}
	return nil
}
