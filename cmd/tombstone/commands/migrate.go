package commands

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-tombstone/cmd/tombstone/output"
	"github.com/marshallshelly/pebble-tombstone/internal/catalog"
	"github.com/marshallshelly/pebble-tombstone/pkg/migration"
	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

var (
	// Migrate flags
	dryRun bool
	down   bool
)

// migrateCmd creates the catalog tables
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog tables with their tombstone columns",
	Long: `Create the catalog tables, each with tombstoned_at, batch_id and
tombstoned_by_id columns, the actor foreign key and the lookup indexes.

Examples:
  tombstone migrate --dry-run          # Print the SQL without applying it
  tombstone migrate                    # Apply it in one transaction
  tombstone migrate --down             # Drop the catalog tables again`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

// migrateStatusCmd shows applied migrations
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrateStatus(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the SQL without applying it")
	migrateCmd.Flags().BoolVar(&down, "down", false, "Roll the catalog tables back")
}

// catalogTables returns the catalog's table metadata in declaration order.
func catalogTables(reg *registry.Registry) ([]*schema.TableMetadata, error) {
	tables := make([]*schema.TableMetadata, 0, len(catalog.Models()))
	for _, m := range catalog.Models() {
		table, err := reg.GetOrRegister(m)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", reflect.TypeOf(m).Name(), err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// actorTable resolves the configured actor type to its table.
func actorTable(reg *registry.Registry, actorType string) string {
	if table, err := reg.GetByTypeName(actorType); err == nil {
		return table.Name
	}
	return migration.ActorTableFor(actorType)
}

func planCatalog(actorType string) (migration.Migration, error) {
	reg := registry.NewRegistry()
	tables, err := catalogTables(reg)
	if err != nil {
		return migration.Migration{}, err
	}
	planner := migration.NewPlanner(actorTable(reg, actorType))
	return planner.CreateTables(tables...), nil
}

func runMigrate(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := planCatalog(cfg.Cascade.ActorType)
	if err != nil {
		return err
	}

	if dryRun {
		if down {
			output.SQL(m.DownSQL)
		} else {
			output.SQL(m.UpSQL)
		}
		return nil
	}

	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	executor := migration.NewExecutor(a.db.Pool())
	if down {
		if err := executor.Rollback(ctx, m); err != nil {
			return err
		}
		output.Success("Dropped catalog tables")
		return nil
	}

	applied, err := executor.Apply(ctx, m)
	if err != nil {
		return err
	}
	if !applied {
		output.Info("Catalog tables already exist, nothing to do")
		return nil
	}
	output.Success("Created %d catalog tables", len(catalog.Models()))
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	executor := migration.NewExecutor(a.db.Pool())
	if err := executor.Initialize(ctx); err != nil {
		return err
	}
	records, err := executor.Applied(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.JSON(records)
	}
	if len(records) == 0 {
		output.Info("No migrations applied")
		return nil
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Version, r.Name, string(r.Status), r.AppliedAt.Format("2006-01-02 15:04:05")}
	}
	return output.Table([]string{"VERSION", "NAME", "STATUS", "APPLIED AT"}, rows)
}
