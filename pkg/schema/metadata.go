// Package schema extracts table, column and relationship metadata from
// struct tags.
package schema

import (
	"fmt"
	"reflect"
)

// Tombstone column names every participating table carries.
const (
	ColumnTombstonedAt = "tombstoned_at"
	ColumnBatchID      = "batch_id"
	ColumnTombstonedBy = "tombstoned_by_id"
)

// TableMetadata describes a table derived from a Go struct.
type TableMetadata struct {
	Name          string
	GoType        reflect.Type
	Columns       []ColumnMetadata
	PrimaryKey    *PrimaryKeyMetadata
	ForeignKeys   []ForeignKeyMetadata
	Indexes       []IndexMetadata
	Relationships []RelationshipMetadata
}

// ColumnMetadata describes one column.
type ColumnMetadata struct {
	Name          string
	GoField       string
	GoType        reflect.Type
	SQLType       string
	Nullable      bool
	Default       *string
	Unique        bool
	AutoIncrement bool
	Position      int
}

// PrimaryKeyMetadata describes a primary key constraint.
type PrimaryKeyMetadata struct {
	Name    string
	Columns []string
}

// ForeignKeyMetadata describes a foreign key constraint.
type ForeignKeyMetadata struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          ReferenceAction
	OnUpdate          ReferenceAction
}

// IndexMetadata describes an index.
type IndexMetadata struct {
	Name    string
	Columns []string
	Unique  bool
}

// ReferenceAction is a foreign key ON DELETE / ON UPDATE action.
type ReferenceAction string

const (
	NoAction   ReferenceAction = "NO ACTION"
	Restrict   ReferenceAction = "RESTRICT"
	Cascade    ReferenceAction = "CASCADE"
	SetNull    ReferenceAction = "SET NULL"
	SetDefault ReferenceAction = "SET DEFAULT"
)

// RelationType is the kind of association between two tables.
type RelationType string

const (
	BelongsTo  RelationType = "belongsTo"
	HasOne     RelationType = "hasOne"
	HasMany    RelationType = "hasMany"
	ManyToMany RelationType = "manyToMany"
)

// RelationshipMetadata describes an association declared on a struct field.
type RelationshipMetadata struct {
	Type         RelationType
	SourceTable  string
	SourceField  string
	TargetTable  string
	TargetType   reflect.Type
	TargetField  string
	ForeignKey   string
	References   string
	JoinTable    *string
	InverseField *string

	// Cascade is how tombstone transitions propagate to the target.
	Cascade CascadeMode
	// BatchSize overrides the deferred partition size when positive.
	BatchSize int
}

// GetColumnByName returns the column with the given name, or nil.
func (t *TableMetadata) GetColumnByName(name string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// IsPrimaryKey reports whether column is part of the primary key.
func (t *TableMetadata) IsPrimaryKey(column string) bool {
	if t.PrimaryKey == nil {
		return false
	}
	for _, c := range t.PrimaryKey.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// PrimaryKeyColumn returns the single primary key column.
// Composite keys are not addressable by a scalar id and are rejected.
func (t *TableMetadata) PrimaryKeyColumn() (*ColumnMetadata, error) {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no primary key", t.Name)
	}
	if len(t.PrimaryKey.Columns) > 1 {
		return nil, fmt.Errorf("table %s has a composite primary key", t.Name)
	}
	col := t.GetColumnByName(t.PrimaryKey.Columns[0])
	if col == nil {
		return nil, fmt.Errorf("table %s: primary key column %s not found", t.Name, t.PrimaryKey.Columns[0])
	}
	return col, nil
}

// HasTombstoneColumns reports whether the table carries the tombstone
// timestamp and batch id columns.
func (t *TableMetadata) HasTombstoneColumns() bool {
	return t.GetColumnByName(ColumnTombstonedAt) != nil &&
		t.GetColumnByName(ColumnBatchID) != nil
}
