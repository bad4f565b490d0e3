package schema

import (
	"database/sql"
	"reflect"
	"sync"
	"time"
)

// kindTypes maps scalar kinds to their PostgreSQL column types.
var kindTypes = map[reflect.Kind]string{
	reflect.Bool:    "boolean",
	reflect.Int8:    "smallint",
	reflect.Int16:   "smallint",
	reflect.Uint8:   "smallint",
	reflect.Int:     "integer",
	reflect.Int32:   "integer",
	reflect.Uint16:  "integer",
	reflect.Int64:   "bigint",
	reflect.Uint32:  "bigint",
	reflect.Uint64:  "bigint",
	reflect.Float32: "real",
	reflect.Float64: "double precision",
	reflect.String:  "text",
}

// nullTypes are the database/sql wrappers that map like their payload and
// accept NULL.
var nullTypes = map[reflect.Type]string{
	reflect.TypeFor[sql.NullString]():  "text",
	reflect.TypeFor[sql.NullInt64]():   "bigint",
	reflect.TypeFor[sql.NullInt32]():   "integer",
	reflect.TypeFor[sql.NullFloat64](): "double precision",
	reflect.TypeFor[sql.NullBool]():    "boolean",
	reflect.TypeFor[sql.NullTime]():    "timestamptz",
}

// TypeMapper infers column types for fields whose tag does not name one.
type TypeMapper struct {
	mu     sync.RWMutex
	custom map[reflect.Type]string
}

// NewTypeMapper creates a new TypeMapper instance.
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{custom: make(map[reflect.Type]string)}
}

// RegisterType maps goType to pgType ahead of the built-in rules.
func (tm *TypeMapper) RegisterType(goType reflect.Type, pgType string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.custom[goType] = pgType
}

// GoTypeToPostgreSQL returns the column type for t, or "" when the tag must
// supply one. Pointers map like their element, so the nullable tombstone
// columns infer the same types as their plain counterparts.
func (tm *TypeMapper) GoTypeToPostgreSQL(t reflect.Type) string {
	tm.mu.RLock()
	pgType, ok := tm.custom[t]
	tm.mu.RUnlock()
	if ok {
		return pgType
	}

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == reflect.TypeFor[time.Time]():
		return "timestamptz"
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return "bytea"
	}
	if pgType, ok := nullTypes[t]; ok {
		return pgType
	}
	return kindTypes[t.Kind()]
}

// IsNullable reports whether a field of type t can hold NULL.
func IsNullable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return true
	}
	_, ok := nullTypes[t]
	return ok
}

// DefaultTypeMapper is the global type mapper instance.
var DefaultTypeMapper = NewTypeMapper()
