package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-tombstone/cmd/tombstone/output"
	"github.com/marshallshelly/pebble-tombstone/pkg/migration"
	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
)

var removeColumns bool

// columnsCmd prints the DDL that adds tombstone columns to an existing table
var columnsCmd = &cobra.Command{
	Use:   "columns <table>",
	Short: "Print the SQL adding tombstone columns to a table",
	Long: `Print the SQL that adds (or, with --remove, drops) the tombstone columns, the
actor foreign key and the lookup indexes for any table.

Examples:
  tombstone columns invoices                 # Add the columns
  tombstone columns invoices --remove        # Drop them
  tombstone columns invoices | psql "$DB"    # Apply with psql`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runColumns(args[0])
	},
}

func init() {
	rootCmd.AddCommand(columnsCmd)
	columnsCmd.Flags().BoolVar(&removeColumns, "remove", false, "Drop the tombstone columns instead")
}

func runColumns(table string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	reg := registry.NewRegistry()
	if _, err := catalogTables(reg); err != nil {
		return err
	}
	planner := migration.NewPlanner(actorTable(reg, cfg.Cascade.ActorType))

	m, err := columnsMigration(reg, planner, table, removeColumns)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.JSON(m)
	}
	output.SQL(m.UpSQL)
	return nil
}

// columnsMigration plans the column change for table. Catalog tables that
// already declare the tombstone columns are created with them by migrate.
func columnsMigration(reg *registry.Registry, planner *migration.Planner, table string, remove bool) (migration.Migration, error) {
	if remove {
		return planner.RemoveTombstoneColumns(table), nil
	}
	if t, err := reg.GetByName(table); err == nil && t.HasTombstoneColumns() {
		return migration.Migration{}, fmt.Errorf("%s already declares tombstone columns; run tombstone migrate instead", table)
	}
	return planner.AddTombstoneColumns(table), nil
}
