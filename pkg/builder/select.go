package builder

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
)

// Columns specifies which columns to select.
func (q *SelectQuery) Columns(cols ...string) *SelectQuery {
	q.columns = cols
	return q
}

// Where adds a WHERE condition.
func (q *SelectQuery) Where(condition Condition) *SelectQuery {
	q.where = append(q.where, condition)
	return q
}

// OrderBy adds an ORDER BY clause.
func (q *SelectQuery) OrderBy(column string, direction OrderDirection) *SelectQuery {
	q.orderBy = append(q.orderBy, OrderBy{
		Column:    column,
		Direction: direction,
	})
	return q
}

// OrderByAsc adds an ascending ORDER BY clause.
func (q *SelectQuery) OrderByAsc(column string) *SelectQuery {
	return q.OrderBy(column, Asc)
}

// OrderByDesc adds a descending ORDER BY clause.
func (q *SelectQuery) OrderByDesc(column string) *SelectQuery {
	return q.OrderBy(column, Desc)
}

// Limit sets the LIMIT clause.
func (q *SelectQuery) Limit(limit int) *SelectQuery {
	q.limit = &limit
	return q
}

// ForUpdate locks the selected rows until the transaction ends.
func (q *SelectQuery) ForUpdate() *SelectQuery {
	q.forUpdate = true
	return q
}

// GroupBy adds a GROUP BY clause.
func (q *SelectQuery) GroupBy(columns ...string) *SelectQuery {
	q.groupBy = append(q.groupBy, columns...)
	return q
}

func (q *SelectQuery) whereSQL() (string, []interface{}, error) {
	if len(q.where) == 0 {
		return "", nil, nil
	}
	whereBuilder := NewWhereBuilder()
	whereBuilder.Add(q.where...)
	whereSQL, whereArgs, err := whereBuilder.Build()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
	}
	return whereSQL, whereArgs, nil
}

// ToSQL generates the SQL query and arguments.
func (q *SelectQuery) ToSQL() (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	var args []interface{}

	sql.WriteString("SELECT ")
	if len(q.columns) == 0 || (len(q.columns) == 1 && q.columns[0] == "*") {
		sql.WriteString("*")
	} else {
		sql.WriteString(strings.Join(q.columns, ", "))
	}

	sql.WriteString(" FROM ")
	sql.WriteString(q.table.Name)

	whereSQL, whereArgs, err := q.whereSQL()
	if err != nil {
		return "", nil, err
	}
	if whereSQL != "" {
		sql.WriteString(" ")
		sql.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	if len(q.groupBy) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(q.groupBy, ", "))
	}

	if len(q.orderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		orderParts := make([]string, len(q.orderBy))
		for i, order := range q.orderBy {
			orderParts[i] = order.Column + " " + string(order.Direction)
		}
		sql.WriteString(strings.Join(orderParts, ", "))
	}

	if q.limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT %d", *q.limit))
	}

	if q.forUpdate {
		sql.WriteString(" FOR UPDATE")
	}

	return sql.String(), args, nil
}

// Rows executes the query and returns the raw result set. The caller closes it.
func (q *SelectQuery) Rows(ctx context.Context) (pgx.Rows, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.db.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, runtime.Wrap(sql, err)
	}
	return rows, nil
}

// All executes the query and returns one pointer to a new record of the
// table's Go type per row.
func (q *SelectQuery) All(ctx context.Context) ([]interface{}, error) {
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []interface{}
	for rows.Next() {
		item := reflect.New(q.table.GoType).Interface()
		if err := scanIntoStruct(rows, item, q.table); err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// First executes the query and returns the first result.
func (q *SelectQuery) First(ctx context.Context) (interface{}, error) {
	q.Limit(1)

	results, err := q.All(ctx)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", runtime.ErrNotFound, q.table.Name)
	}

	return results[0], nil
}

// Pluck executes the query selecting a single column and returns its values.
func (q *SelectQuery) Pluck(ctx context.Context, column string) ([]interface{}, error) {
	q.columns = []string{column}

	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []interface{}
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		values = append(values, v)
	}

	return values, rows.Err()
}

// Count executes a COUNT query.
func (q *SelectQuery) Count(ctx context.Context) (int64, error) {
	if q.table == nil {
		return 0, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	sql.WriteString("SELECT COUNT(*) FROM ")
	sql.WriteString(q.table.Name)

	whereSQL, args, err := q.whereSQL()
	if err != nil {
		return 0, err
	}
	if whereSQL != "" {
		sql.WriteString(" ")
		sql.WriteString(whereSQL)
	}

	var count int64
	if err := q.db.q.QueryRow(ctx, sql.String(), args...).Scan(&count); err != nil {
		return 0, runtime.Wrap(sql.String(), err)
	}

	return count, nil
}

// Exists checks if any rows match the query.
func (q *SelectQuery) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
