package schema

import (
	"fmt"
	"reflect"
	"strings"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `po:"..."`).
	StructTagKey = "po"
)

// Parser parses struct definitions to extract table metadata.
type Parser struct {
	typeMapper *TypeMapper
	cache      map[reflect.Type]*TableMetadata
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		typeMapper: DefaultTypeMapper,
		cache:      make(map[reflect.Type]*TableMetadata),
	}
}

// Global table name registry for struct names whose table is not the
// snake_case of the struct name.
var customTableNames = make(map[string]string) // Struct name → table name

// RegisterTableName registers a custom table name for a struct type.
// Call it from an init function next to the model:
//
//	func init() {
//	    schema.RegisterTableName("Product", "products")
//	}
func RegisterTableName(structName, tableName string) {
	customTableNames[structName] = tableName
}

// TableNameFor returns the table name a struct type maps to.
func TableNameFor(modelType reflect.Type) string {
	for modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}
	return TableNameForName(modelType.Name())
}

// TableNameForName returns the table name for a bare struct name, honouring
// RegisterTableName.
func TableNameForName(structName string) string {
	if tableName, ok := customTableNames[structName]; ok {
		return tableName
	}
	return toSnakeCase(structName)
}

// Parse extracts TableMetadata from a Go struct type.
func (p *Parser) Parse(modelType reflect.Type) (*TableMetadata, error) {
	// Dereference pointer types
	for modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}
	// Check cache
	if cached, ok := p.cache[modelType]; ok {
		return cached, nil
	}
	table := &TableMetadata{
		Name:        TableNameFor(modelType),
		GoType:      modelType,
		Columns:     make([]ColumnMetadata, 0),
		ForeignKeys: make([]ForeignKeyMetadata, 0),
		Indexes:     make([]IndexMetadata, 0),
	}

	fields := flattenFields(modelType)
	for i, field := range fields {
		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" || tagValue == "-" {
			continue
		}
		tagOpts, err := p.parseTag(tagValue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tag for field %s: %w", field.Name, err)
		}
		// Relationships are handled by ParseRelationships
		if p.isRelationshipTag(tagOpts) {
			continue
		}
		if table.GetColumnByName(tagOpts.Name) != nil {
			return nil, fmt.Errorf("duplicate column %s on field %s", tagOpts.Name, field.Name)
		}

		column := p.createColumnMetadata(field, tagOpts, i)
		if tagOpts.Has("primaryKey") {
			if table.PrimaryKey == nil {
				table.PrimaryKey = &PrimaryKeyMetadata{
					Columns: []string{column.Name},
					Name:    table.Name + "_pkey",
				}
			} else {
				table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, column.Name)
			}
		}
		table.Columns = append(table.Columns, column)

		if fk, ok := p.parseForeignKey(table, column.Name, tagOpts); ok {
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
	}

	if err := p.ParseRelationships(modelType, table); err != nil {
		return nil, fmt.Errorf("failed to parse relationships: %w", err)
	}

	p.cache[modelType] = table
	return table, nil
}

// flattenFields returns the exported fields of t, descending into embedded
// structs that carry no tag of their own so that promoted fields such as the
// tombstone columns become columns of the outer table.
func flattenFields(t reflect.Type) []reflect.StructField {
	var fields []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Tag.Get(StructTagKey) == "" {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				fields = append(fields, flattenFields(ft)...)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// createColumnMetadata creates a ColumnMetadata from a struct field.
func (p *Parser) createColumnMetadata(field reflect.StructField, opts *TagOptions, position int) ColumnMetadata {
	column := ColumnMetadata{
		Name:     opts.Name,
		GoField:  field.Name,
		GoType:   field.Type,
		Position: position,
	}
	// Determine SQL type
	if sqlType := opts.GetSQLType(); sqlType != "" {
		column.SQLType = sqlType
	} else {
		column.SQLType = p.typeMapper.GoTypeToPostgreSQL(field.Type)
	}
	// Set nullability
	column.Nullable = !opts.Has("notNull") && !opts.Has("primaryKey")
	if IsNullable(field.Type) {
		column.Nullable = true
	}
	if defaultVal := opts.Get("default"); defaultVal != "" {
		column.Default = &defaultVal
	}
	column.Unique = opts.Has("unique")
	column.AutoIncrement = opts.Has("autoIncrement") || opts.Has("serial") || opts.Has("bigserial")
	return column
}

// isRelationshipTag checks if tag options indicate a relationship field.
func (p *Parser) isRelationshipTag(opts *TagOptions) bool {
	return opts.Has("belongsTo") || opts.Has("hasOne") ||
		opts.Has("hasMany") || opts.Has("manyToMany")
}

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Column name (first element)
	Options map[string]string // Other options
}

// parseTag parses a struct tag value into TagOptions.
// Format: "column_name,option1,option2(value),option3"
func (p *Parser) parseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	for i := 1; i < len(parts); i++ {
		opt := parts[i]
		// Check if option has a value: option(value) or option:value
		if idx := strings.Index(opt, "("); idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, fmt.Errorf("invalid option format: %s", opt)
			}
			key := opt[:idx]
			value := opt[idx+1 : len(opt)-1]
			opts.Options[key] = value
		} else if idx := strings.Index(opt, ":"); idx != -1 {
			key := opt[:idx]
			value := opt[idx+1:]
			opts.Options[key] = value
		} else {
			// Boolean option
			opts.Options[opt] = ""
		}
	}
	return opts, nil
}

// Has checks if an option exists.
func (t *TagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

// Get returns the value of an option.
func (t *TagOptions) Get(key string) string {
	return t.Options[key]
}

// GetSQLType returns the SQL type from tag options.
// Checks for: uuid, varchar(n), text, numeric(p,s), smallint, integer, bigint, etc.
func (t *TagOptions) GetSQLType() string {
	pgTypes := []string{
		"uuid", "varchar", "text", "char",
		"smallint", "integer", "bigint", "serial", "bigserial",
		"numeric", "decimal", "real", "double precision",
		"boolean", "bool",
		"date", "time", "timestamp", "timestamptz", "interval",
		"json", "jsonb",
		"bytea",
		"inet", "cidr",
	}
	for _, pgType := range pgTypes {
		if t.Has(pgType) {
			// If the type has a parameter (e.g., varchar(255))
			if value := t.Get(pgType); value != "" {
				return fmt.Sprintf("%s(%s)", pgType, value)
			}
			return pgType
		}
	}
	return ""
}

// splitTag splits a tag value by commas, handling nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// toSnakeCase converts a string from PascalCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, ch := range s {
		if i > 0 && ch >= 'A' && ch <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(ch)
	}
	return strings.ToLower(result.String())
}

// parseForeignKey reads an fk(table.column) or fk(table(column)) option.
func (p *Parser) parseForeignKey(table *TableMetadata, columnName string, opts *TagOptions) (ForeignKeyMetadata, bool) {
	fkStr := opts.Get("fk")
	if fkStr == "" {
		return ForeignKeyMetadata{}, false
	}

	var refTable, refColumn string
	if strings.Contains(fkStr, "(") {
		idx := strings.Index(fkStr, "(")
		if idx > 0 && strings.HasSuffix(fkStr, ")") {
			refTable = fkStr[:idx]
			refColumn = fkStr[idx+1 : len(fkStr)-1]
		}
	} else if strings.Contains(fkStr, ".") {
		parts := strings.SplitN(fkStr, ".", 2)
		refTable, refColumn = parts[0], parts[1]
	}
	if refTable == "" || refColumn == "" {
		return ForeignKeyMetadata{}, false
	}

	return ForeignKeyMetadata{
		Name:              fmt.Sprintf("fk_%s_%s_%s", table.Name, columnName, refTable),
		Columns:           []string{columnName},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
		OnDelete:          parseReferenceAction(opts.Get("onDelete")),
		OnUpdate:          parseReferenceAction(opts.Get("onUpdate")),
	}, true
}

// parseReferenceAction converts a string to ReferenceAction.
func parseReferenceAction(action string) ReferenceAction {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "CASCADE":
		return Cascade
	case "RESTRICT":
		return Restrict
	case "SETNULL", "SET NULL":
		return SetNull
	case "SETDEFAULT", "SET DEFAULT":
		return SetDefault
	default:
		return NoAction
	}
}
