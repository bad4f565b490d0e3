package store

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// New allocates a zero record of the table's Go type and returns the pointer.
func New(table *schema.TableMetadata) any {
	return reflect.New(table.GoType).Interface()
}

// StateOf returns the tombstone state of rec, or nil when rec does not
// participate in tombstoning.
func StateOf(rec any) *tombstone.State {
	if r, ok := rec.(tombstone.Record); ok {
		return r.TombstoneState()
	}
	return nil
}

func structValue(table *schema.TableMetadata, rec any) (reflect.Value, error) {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("store: %s record must be a non-nil pointer, got %T", table.Name, rec)
	}
	v = v.Elem()
	if v.Type() != table.GoType {
		return reflect.Value{}, fmt.Errorf("store: record of type %s does not belong to table %s", v.Type(), table.Name)
	}
	return v, nil
}

// ColumnValue reads one column of rec. Nil pointers read as nil and other
// pointers are dereferenced.
func ColumnValue(table *schema.TableMetadata, rec any, column string) (any, error) {
	v, err := structValue(table, rec)
	if err != nil {
		return nil, err
	}
	col := table.GetColumnByName(column)
	if col == nil {
		return nil, fmt.Errorf("store: table %s has no column %s", table.Name, column)
	}
	return fieldValue(v.FieldByName(col.GoField)), nil
}

func fieldValue(f reflect.Value) any {
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return nil
		}
		return f.Elem().Interface()
	}
	return f.Interface()
}

// SetColumn writes one column of rec, converting between compatible scalar
// types and allocating pointers as needed. A nil value zeroes the field.
func SetColumn(table *schema.TableMetadata, rec any, column string, value any) error {
	v, err := structValue(table, rec)
	if err != nil {
		return err
	}
	col := table.GetColumnByName(column)
	if col == nil {
		return fmt.Errorf("store: table %s has no column %s", table.Name, column)
	}
	return assign(v.FieldByName(col.GoField), value)
}

func assign(f reflect.Value, value any) error {
	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}

	target := f.Type()
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}

	src := reflect.ValueOf(value)
	if src.Kind() == reflect.Ptr {
		if src.IsNil() {
			f.Set(reflect.Zero(f.Type()))
			return nil
		}
		src = src.Elem()
	}

	var converted reflect.Value
	switch {
	case src.Type() == target:
		converted = src
	case src.Type().ConvertibleTo(target) && compatibleKinds(src.Kind(), target.Kind()):
		converted = src.Convert(target)
	default:
		return fmt.Errorf("store: cannot assign %T to %s", value, f.Type())
	}

	if f.Kind() == reflect.Ptr {
		p := reflect.New(target)
		p.Elem().Set(converted)
		f.Set(p)
		return nil
	}
	f.Set(converted)
	return nil
}

// compatibleKinds rejects conversions that reflect allows but that would
// corrupt a value, such as int to string.
func compatibleKinds(from, to reflect.Kind) bool {
	isNumber := func(k reflect.Kind) bool {
		return (k >= reflect.Int && k <= reflect.Float64)
	}
	if isNumber(from) && isNumber(to) {
		return true
	}
	return from == to
}

// PrimaryKey returns the primary key of rec and whether it is set.
func PrimaryKey(table *schema.TableMetadata, rec any) (any, bool, error) {
	pk, err := table.PrimaryKeyColumn()
	if err != nil {
		return nil, false, err
	}
	v, err := structValue(table, rec)
	if err != nil {
		return nil, false, err
	}
	f := v.FieldByName(pk.GoField)
	if f.IsZero() {
		return nil, false, nil
	}
	return fieldValue(f), true, nil
}

// SetPrimaryKey writes id into the primary key field of rec.
func SetPrimaryKey(table *schema.TableMetadata, rec any, id any) error {
	pk, err := table.PrimaryKeyColumn()
	if err != nil {
		return err
	}
	return SetColumn(table, rec, pk.Name, id)
}

// Touch sets the updated_at column of rec to now when the table has one.
func Touch(table *schema.TableMetadata, rec any, now time.Time) error {
	if table.GetColumnByName(ColumnUpdatedAt) == nil {
		return nil
	}
	return SetColumn(table, rec, ColumnUpdatedAt, now.UTC())
}

// NormalizeKey maps integer keys of any width, and integral floats, to int64 so that ids read from
// different sources compare equal.
func NormalizeKey(id any) any {
	v := reflect.ValueOf(id)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.Float32, reflect.Float64:
		// JSON decodes numeric ids as float64.
		if f := v.Float(); f == math.Trunc(f) {
			return int64(f)
		}
		return id
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return NormalizeKey(v.Elem().Interface())
	default:
		return id
	}
}

// LessKey orders normalized keys: integers numerically, everything else by
// its text form.
func LessKey(a, b any) bool {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai < bi
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
