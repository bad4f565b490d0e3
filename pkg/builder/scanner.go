package builder

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

// scanIntoStruct scans a database row into a struct. Columns promoted from
// embedded structs are reached through FieldByName.
func scanIntoStruct(rows pgx.Rows, dest interface{}, table *schema.TableMetadata) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("dest must be a pointer to struct")
	}

	destValue = destValue.Elem()
	if destValue.Kind() != reflect.Struct {
		return fmt.Errorf("dest must be a pointer to struct")
	}

	fieldDescriptions := rows.FieldDescriptions()

	scanTargets := make([]interface{}, len(fieldDescriptions))
	columnMap := make(map[string]int) // Map column name to field description index

	for i, fd := range fieldDescriptions {
		columnMap[fd.Name] = i
	}

	for _, col := range table.Columns {
		idx, ok := columnMap[col.Name]
		if !ok {
			continue
		}

		field := destValue.FieldByName(col.GoField)
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		scanTargets[idx] = field.Addr().Interface()
	}

	// Fill any nil scan targets with dummy variables
	var dummy interface{}
	for i := range scanTargets {
		if scanTargets[i] == nil {
			scanTargets[i] = &dummy
		}
	}

	if err := rows.Scan(scanTargets...); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}

	return nil
}

// structToValues converts a struct to column names and values for INSERT.
// It omits fields when:
// 1. Field has AutoIncrement and is zero
// 2. Field has a database Default and the Go value is zero
func structToValues(model interface{}, table *schema.TableMetadata) ([]string, []interface{}, error) {
	modelValue := reflect.ValueOf(model)
	if modelValue.Kind() == reflect.Ptr {
		modelValue = modelValue.Elem()
	}

	if modelValue.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("model must be a struct")
	}
	if table.GoType != nil && modelValue.Type() != table.GoType {
		return nil, nil, fmt.Errorf("model of type %s does not belong to table %s", modelValue.Type(), table.Name)
	}

	var columns []string
	var values []interface{}

	for _, col := range table.Columns {
		field := modelValue.FieldByName(col.GoField)
		if !field.IsValid() {
			continue
		}

		if col.AutoIncrement && field.IsZero() {
			continue
		}

		// Smart default detection: skip zero-valued fields that have database defaults
		if col.Default != nil && field.IsZero() {
			continue
		}

		columns = append(columns, col.Name)
		values = append(values, field.Interface())
	}

	return columns, values, nil
}
