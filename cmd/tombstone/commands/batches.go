package commands

import (
	"context"
	"reflect"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-tombstone/cmd/tombstone/output"
	"github.com/marshallshelly/pebble-tombstone/internal/catalog"
)

var batchesCmd = &cobra.Command{
	Use:   "batches <type>",
	Short: "List the delete batches of a table",
	Long: `List every batch currently tombstoned in a catalog table with its record count
and the time span of its tombstones, most recent first.

Examples:
  tombstone batches products
  tombstone batches product_variants --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatches(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(batchesCmd)
}

func runBatches(ctx context.Context, typeName string) error {
	model, err := catalog.Lookup(typeName)
	if err != nil {
		return err
	}

	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	table, err := a.engine.Registry().Get(reflect.TypeOf(model))
	if err != nil {
		return err
	}
	batches, err := a.store.Batches(ctx, table)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.JSON(batches)
	}
	if len(batches) == 0 {
		output.Info("No tombstoned %s", table.Name)
		return nil
	}

	output.Section("Batches in " + table.Name)
	rows := make([][]string, len(batches))
	for i, b := range batches {
		rows[i] = []string{
			b.BatchID,
			strconv.FormatInt(b.Count, 10),
			b.First.Format("2006-01-02 15:04:05"),
			b.Last.Format("2006-01-02 15:04:05"),
		}
	}
	return output.Table([]string{"BATCH", "RECORDS", "FIRST", "LAST"}, rows)
}
