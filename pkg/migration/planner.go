package migration

import (
	"fmt"
	"strings"

	"github.com/juju/clock"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

// quoteIdent quotes a PostgreSQL identifier (table name, column name, etc.)
// to handle reserved keywords and special characters.
func quoteIdent(name string) string {
	return fmt.Sprintf(`"%s"`, name)
}

// PlannerOptions configures migration generation behavior.
type PlannerOptions struct {
	// IfNotExists adds IF NOT EXISTS to CREATE TABLE, ADD COLUMN and
	// CREATE INDEX statements so migrations can be re-run.
	// Default: true
	IfNotExists bool

	// ActorTable is the table tombstoned_by_id references. Empty disables
	// the foreign key.
	ActorTable string

	// ActorColumn is the referenced column. Default: "id"
	ActorColumn string

	// Clock stamps migration versions. Default: clock.WallClock
	Clock clock.Clock
}

// Planner generates SQL migration statements for tombstone-aware tables.
type Planner struct {
	options PlannerOptions
}

// NewPlanner creates a planner whose tombstoned_by_id columns reference
// actorTable.
func NewPlanner(actorTable string) *Planner {
	return NewPlannerWithOptions(PlannerOptions{
		IfNotExists: true,
		ActorTable:  actorTable,
	})
}

// NewPlannerWithOptions creates a new migration planner with custom options.
func NewPlannerWithOptions(opts PlannerOptions) *Planner {
	if opts.ActorColumn == "" {
		opts.ActorColumn = "id"
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Planner{options: opts}
}

// ActorTableFor resolves the table an actor type name maps to.
func ActorTableFor(actorType string) string {
	return schema.TableNameForName(actorType)
}

// CreateTables generates one migration creating every table, ordered so
// that referenced tables come first.
func (p *Planner) CreateTables(tables ...*schema.TableMetadata) Migration {
	var up, down []string
	for _, table := range orderByReferences(tables, p.options.ActorTable) {
		up = append(up, p.generateCreateTable(table))
		down = append([]string{p.generateDropTable(table.Name)}, down...)
	}
	return p.migration("create_tables", up, down)
}

// CreateTable generates the migration for a single table.
func (p *Planner) CreateTable(table *schema.TableMetadata) Migration {
	return p.migration("create_"+table.Name,
		[]string{p.generateCreateTable(table)},
		[]string{p.generateDropTable(table.Name)})
}

// AddTombstoneColumns generates the migration that adds the tombstone
// columns, the actor foreign key and the lookup indexes to an existing table.
func (p *Planner) AddTombstoneColumns(tableName string) Migration {
	up, down := p.tombstoneColumns(tableName)
	return p.migration("add_tombstone_columns_"+tableName, up, down)
}

// RemoveTombstoneColumns is the inverse of AddTombstoneColumns.
func (p *Planner) RemoveTombstoneColumns(tableName string) Migration {
	up, down := p.tombstoneColumns(tableName)
	return p.migration("remove_tombstone_columns_"+tableName, down, up)
}

func (p *Planner) migration(name string, up, down []string) Migration {
	return Migration{
		Version: GenerateVersion(p.options.Clock.Now()),
		Name:    name,
		UpSQL:   strings.Join(up, "\n\n") + "\n",
		DownSQL: strings.Join(down, "\n\n") + "\n",
	}
}

// tombstoneColumns returns the statements adding the columns and the ones
// dropping them again.
func (p *Planner) tombstoneColumns(tableName string) (upSQL, downSQL []string) {
	addColumn := "ADD COLUMN"
	if p.options.IfNotExists {
		addColumn = "ADD COLUMN IF NOT EXISTS"
	}

	columns := []schema.ColumnMetadata{
		{Name: schema.ColumnTombstonedAt, SQLType: "timestamptz", Nullable: true},
		{Name: schema.ColumnBatchID, SQLType: "text", Nullable: true},
		{Name: schema.ColumnTombstonedBy, SQLType: "bigint", Nullable: true},
	}
	for _, col := range columns {
		upSQL = append(upSQL, fmt.Sprintf("ALTER TABLE %s %s %s;",
			tableName, addColumn, p.generateColumnDefinition(col)))
	}

	if fk, ok := p.actorForeignKey(tableName); ok {
		upSQL = append(upSQL, fmt.Sprintf("ALTER TABLE %s ADD %s;",
			tableName, p.generateForeignKeyDefinition(fk)))
		downSQL = append(downSQL, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;",
			tableName, fk.Name))
	}

	for _, idx := range tombstoneIndexes(tableName) {
		upSQL = append(upSQL, p.generateCreateIndex(tableName, idx))
		downSQL = append(downSQL, fmt.Sprintf("DROP INDEX IF EXISTS %s;", idx.Name))
	}

	for i := len(columns) - 1; i >= 0; i-- {
		downSQL = append(downSQL, fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s;",
			tableName, columns[i].Name))
	}
	return upSQL, downSQL
}

// actorForeignKey returns the constraint tying tombstoned_by_id to the
// actor table.
func (p *Planner) actorForeignKey(tableName string) (schema.ForeignKeyMetadata, bool) {
	if p.options.ActorTable == "" {
		return schema.ForeignKeyMetadata{}, false
	}
	return schema.ForeignKeyMetadata{
		Name:              fmt.Sprintf("fk_%s_%s_%s", tableName, schema.ColumnTombstonedBy, p.options.ActorTable),
		Columns:           []string{schema.ColumnTombstonedBy},
		ReferencedTable:   p.options.ActorTable,
		ReferencedColumns: []string{p.options.ActorColumn},
		OnDelete:          schema.SetNull,
	}, true
}

// tombstoneIndexes index the columns restores and audits look records up by.
func tombstoneIndexes(tableName string) []schema.IndexMetadata {
	return []schema.IndexMetadata{
		{Name: fmt.Sprintf("idx_%s_%s", tableName, schema.ColumnBatchID), Columns: []string{schema.ColumnBatchID}},
		{Name: fmt.Sprintf("idx_%s_%s", tableName, schema.ColumnTombstonedBy), Columns: []string{schema.ColumnTombstonedBy}},
	}
}

// generateCreateTable generates a CREATE TABLE statement.
func (p *Planner) generateCreateTable(table *schema.TableMetadata) string {
	var parts []string

	// Determine if we have a single-column primary key for inline declaration
	var singlePKColumn string
	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) == 1 {
		singlePKColumn = table.PrimaryKey.Columns[0]
	}

	for _, col := range table.Columns {
		colDef := p.generateColumnDefinition(col)
		if singlePKColumn != "" && col.Name == singlePKColumn {
			colDef += " PRIMARY KEY"
		}
		parts = append(parts, "    "+colDef)
	}

	// Primary key (composite only - single column handled inline)
	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) > 1 {
		pkCols := strings.Join(table.PrimaryKey.Columns, ", ")
		parts = append(parts, fmt.Sprintf("    CONSTRAINT %s PRIMARY KEY (%s)", table.PrimaryKey.Name, pkCols))
	}

	for _, fk := range table.ForeignKeys {
		parts = append(parts, "    "+p.generateForeignKeyDefinition(fk))
	}

	indexes := table.Indexes
	if table.GetColumnByName(schema.ColumnTombstonedBy) != nil {
		if fk, ok := p.actorForeignKey(table.Name); ok {
			parts = append(parts, "    "+p.generateForeignKeyDefinition(fk))
		}
	}
	if table.HasTombstoneColumns() {
		for _, idx := range tombstoneIndexes(table.Name) {
			if table.GetColumnByName(idx.Columns[0]) != nil {
				indexes = append(indexes, idx)
			}
		}
	}

	createClause := "CREATE TABLE"
	if p.options.IfNotExists {
		createClause = "CREATE TABLE IF NOT EXISTS"
	}
	sql := fmt.Sprintf("%s %s (\n%s\n);", createClause, table.Name, strings.Join(parts, ",\n"))

	// Indexes (separate statements)
	var indexStatements []string
	for _, idx := range indexes {
		indexStatements = append(indexStatements, p.generateCreateIndex(table.Name, idx))
	}
	if len(indexStatements) > 0 {
		sql += "\n\n" + strings.Join(indexStatements, "\n")
	}

	return sql
}

// generateColumnDefinition generates a column definition.
func (p *Planner) generateColumnDefinition(col schema.ColumnMetadata) string {
	parts := []string{col.Name, col.SQLType}

	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT", *col.Default)
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}

	return strings.Join(parts, " ")
}

// generateForeignKeyDefinition generates a foreign key constraint.
func (p *Planner) generateForeignKeyDefinition(fk schema.ForeignKeyMetadata) string {
	localCols := strings.Join(fk.Columns, ", ")
	refCols := strings.Join(fk.ReferencedColumns, ", ")

	parts := []string{
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s)", fk.Name, localCols),
		fmt.Sprintf("REFERENCES %s (%s)", fk.ReferencedTable, refCols),
	}

	if fk.OnDelete != schema.NoAction && fk.OnDelete != "" {
		parts = append(parts, "ON DELETE "+string(fk.OnDelete))
	}
	if fk.OnUpdate != schema.NoAction && fk.OnUpdate != "" {
		parts = append(parts, "ON UPDATE "+string(fk.OnUpdate))
	}

	return strings.Join(parts, " ")
}

// generateCreateIndex generates a CREATE INDEX statement.
func (p *Planner) generateCreateIndex(tableName string, idx schema.IndexMetadata) string {
	parts := []string{"CREATE INDEX"}
	if idx.Unique {
		parts = []string{"CREATE UNIQUE INDEX"}
	}
	if p.options.IfNotExists {
		parts = append(parts, "IF NOT EXISTS")
	}
	parts = append(parts, idx.Name, "ON", tableName, fmt.Sprintf("(%s)", strings.Join(idx.Columns, ", ")))

	return strings.Join(parts, " ") + ";"
}

// generateDropTable generates a DROP TABLE statement.
func (p *Planner) generateDropTable(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", quoteIdent(tableName))
}

// orderByReferences sorts tables so that every referenced table, the actor
// table included, is created before the tables pointing at it. Input order
// is kept otherwise; references outside the set are ignored.
func orderByReferences(tables []*schema.TableMetadata, actorTable string) []*schema.TableMetadata {
	byName := make(map[string]*schema.TableMetadata, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	ordered := make([]*schema.TableMetadata, 0, len(tables))
	visited := make(map[string]bool, len(tables))
	var visit func(t *schema.TableMetadata)
	visit = func(t *schema.TableMetadata) {
		if visited[t.Name] {
			return
		}
		visited[t.Name] = true
		deps := make([]string, 0, len(t.ForeignKeys)+1)
		if t.GetColumnByName(schema.ColumnTombstonedBy) != nil && actorTable != "" {
			deps = append(deps, actorTable)
		}
		for _, fk := range t.ForeignKeys {
			deps = append(deps, fk.ReferencedTable)
		}
		for _, dep := range deps {
			if d, ok := byName[dep]; ok {
				visit(d)
			}
		}
		ordered = append(ordered, t)
	}
	for _, t := range tables {
		visit(t)
	}
	return ordered
}
