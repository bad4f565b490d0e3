package schema

import (
	"fmt"
	"reflect"
	"strconv"
)

// ParseRelationships extracts relationship metadata from struct fields.
func (p *Parser) ParseRelationships(modelType reflect.Type, table *TableMetadata) error {
	for modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}

	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct")
	}

	for _, field := range flattenFields(modelType) {
		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" {
			continue
		}

		tagOpts, err := p.parseTag(tagValue)
		if err != nil {
			continue
		}

		if !p.isRelationshipTag(tagOpts) {
			continue
		}

		rel, err := p.parseRelationship(field, tagOpts, table)
		if err != nil {
			return fmt.Errorf("failed to parse relationship for field %s: %w", field.Name, err)
		}

		if table.Relationships == nil {
			table.Relationships = make([]RelationshipMetadata, 0)
		}
		table.Relationships = append(table.Relationships, *rel)
	}

	return nil
}

// parseRelationship parses a relationship from a struct field.
func (p *Parser) parseRelationship(field reflect.StructField, opts *TagOptions, sourceTable *TableMetadata) (*RelationshipMetadata, error) {
	rel := &RelationshipMetadata{
		SourceTable: sourceTable.Name,
		SourceField: field.Name,
	}

	if opts.Has("belongsTo") {
		rel.Type = BelongsTo
	} else if opts.Has("hasOne") {
		rel.Type = HasOne
	} else if opts.Has("hasMany") {
		rel.Type = HasMany
	} else if opts.Has("manyToMany") {
		rel.Type = ManyToMany
	} else {
		return nil, fmt.Errorf("unknown relationship type")
	}

	if foreignKey := opts.Get("foreignKey"); foreignKey != "" {
		rel.ForeignKey = foreignKey
	}

	if references := opts.Get("references"); references != "" {
		rel.References = references
	}

	// Get target table from field type
	fieldType := field.Type

	switch rel.Type {
	case HasMany, ManyToMany:
		if fieldType.Kind() != reflect.Slice {
			return nil, fmt.Errorf("%s field must be a slice, got %s", rel.Type, fieldType)
		}
		fieldType = fieldType.Elem()
	case HasOne, BelongsTo:
		if fieldType.Kind() != reflect.Ptr {
			return nil, fmt.Errorf("%s field must be a pointer, got %s", rel.Type, fieldType)
		}
	}

	for fieldType.Kind() == reflect.Ptr {
		fieldType = fieldType.Elem()
	}

	if fieldType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relationship target must be a struct, got %s", fieldType.Kind())
	}
	rel.TargetType = fieldType
	rel.TargetTable = TableNameFor(fieldType)
	rel.TargetField = fieldType.Name()

	if rel.Type == ManyToMany {
		if joinTable := opts.Get("joinTable"); joinTable != "" {
			rel.JoinTable = &joinTable
		} else {
			junction := generateJunctionTableName(sourceTable.Name, rel.TargetTable)
			rel.JoinTable = &junction
		}
	}

	if rel.ForeignKey == "" {
		switch rel.Type {
		case BelongsTo:
			// For belongsTo, foreign key is on the source table
			rel.ForeignKey = toSnakeCase(rel.TargetField) + "_id"
		case HasOne, HasMany:
			// For hasOne/hasMany, foreign key is on the target table
			rel.ForeignKey = toSnakeCase(sourceTable.GoType.Name()) + "_id"
		}
	}

	if rel.References == "" {
		rel.References = "id"
	}

	if inverse := opts.Get("inverse"); inverse != "" {
		rel.InverseField = &inverse
	}

	if err := parseCascade(rel, opts); err != nil {
		return nil, err
	}

	return rel, nil
}

// parseCascade reads the cascade(...) and batchSize(...) options. Only
// hasMany and hasOne own their dependents, so a cascade anywhere else is a
// declaration error.
func parseCascade(rel *RelationshipMetadata, opts *TagOptions) error {
	mode, err := ParseCascadeMode(opts.Get("cascade"))
	if err != nil {
		return err
	}

	if mode != CascadeNone && rel.Type != HasMany && rel.Type != HasOne {
		return fmt.Errorf("%w: cascade(%s) on %s %s", ErrInvalidCascade, mode, rel.Type, rel.SourceField)
	}
	rel.Cascade = mode

	if opts.Has("batchSize") {
		n, err := strconv.Atoi(opts.Get("batchSize"))
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: batchSize(%s) must be a positive integer", ErrInvalidCascade, opts.Get("batchSize"))
		}
		if mode != CascadeDeferred {
			return fmt.Errorf("%w: batchSize requires cascade(deferred)", ErrInvalidCascade)
		}
		rel.BatchSize = n
	}

	return nil
}

// generateJunctionTableName generates a junction table name from two table names.
func generateJunctionTableName(table1, table2 string) string {
	// Sort alphabetically for consistency
	if table1 > table2 {
		table1, table2 = table2, table1
	}
	return table1 + "_" + table2
}

// GetRelationship returns a relationship by source field name.
func (t *TableMetadata) GetRelationship(fieldName string) *RelationshipMetadata {
	for i := range t.Relationships {
		if t.Relationships[i].SourceField == fieldName {
			return &t.Relationships[i]
		}
	}
	return nil
}

// CascadingRelationships returns the relationships whose cascade mode is not
// none, in declaration order.
func (t *TableMetadata) CascadingRelationships() []RelationshipMetadata {
	var result []RelationshipMetadata
	for _, rel := range t.Relationships {
		if rel.Cascade != CascadeNone {
			result = append(result, rel)
		}
	}
	return result
}
