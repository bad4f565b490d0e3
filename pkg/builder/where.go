package builder

import (
	"fmt"
	"reflect"
	"strings"
)

// WhereBuilder helps build WHERE clauses.
type WhereBuilder struct {
	conditions []Condition
	paramStart int
}

// NewWhereBuilder creates a new WhereBuilder.
func NewWhereBuilder() *WhereBuilder {
	return NewWhereBuilderWithStart(1)
}

// NewWhereBuilderWithStart creates a new WhereBuilder with a starting parameter number.
func NewWhereBuilderWithStart(paramStart int) *WhereBuilder {
	return &WhereBuilder{
		conditions: make([]Condition, 0),
		paramStart: paramStart,
	}
}

// Add adds a condition to the WHERE clause.
func (w *WhereBuilder) Add(conditions ...Condition) {
	w.conditions = append(w.conditions, conditions...)
}

// Build generates the WHERE clause SQL and arguments.
func (w *WhereBuilder) Build() (string, []interface{}, error) {
	if len(w.conditions) == 0 {
		return "", nil, nil
	}

	sql, args, err := w.buildConditions(w.conditions, w.paramStart)
	if err != nil {
		return "", nil, err
	}

	return "WHERE " + sql, args, nil
}

// buildConditions joins conditions with AND, numbering parameters from paramStart.
func (w *WhereBuilder) buildConditions(conditions []Condition, paramStart int) (string, []interface{}, error) {
	var parts []string
	var args []interface{}
	paramNum := paramStart

	for _, cond := range conditions {
		condSQL, condArgs, err := w.buildCondition(cond, paramNum)
		if err != nil {
			return "", nil, err
		}

		parts = append(parts, condSQL)
		args = append(args, condArgs...)
		paramNum += len(condArgs)
	}

	return strings.Join(parts, " AND "), args, nil
}

// buildCondition builds a single condition.
func (w *WhereBuilder) buildCondition(cond Condition, paramNum int) (string, []interface{}, error) {
	column := cond.Column
	value := cond.Value

	switch cond.Operator {
	case OpEqual:
		return fmt.Sprintf("%s %s $%d", column, cond.Operator, paramNum), []interface{}{value}, nil

	case OpAny:
		// pgx encodes the slice as a single array parameter
		if v := reflect.ValueOf(value); v.Kind() != reflect.Slice {
			return "", nil, fmt.Errorf("ANY operator requires a slice value, got %T", value)
		}
		return fmt.Sprintf("%s = ANY($%d)", column, paramNum), []interface{}{value}, nil

	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", column), nil, nil

	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", column), nil, nil

	default:
		return "", nil, fmt.Errorf("unknown operator: %s", cond.Operator)
	}
}

// Helper functions for building conditions

// Eq creates an equality condition.
func Eq(column string, value interface{}) Condition {
	return Condition{
		Column:   column,
		Operator: OpEqual,
		Value:    value,
	}
}

// Any creates a column = ANY($n) condition. values must be a slice; it is sent
// as one array parameter, which keeps large id sets to a single placeholder.
func Any(column string, values interface{}) Condition {
	return Condition{
		Column:   column,
		Operator: OpAny,
		Value:    values,
	}
}

// IsNull creates an IS NULL condition.
func IsNull(column string) Condition {
	return Condition{
		Column:   column,
		Operator: OpIsNull,
	}
}

// IsNotNull creates an IS NOT NULL condition.
func IsNotNull(column string) Condition {
	return Condition{
		Column:   column,
		Operator: OpIsNotNull,
	}
}
