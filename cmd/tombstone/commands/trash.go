package commands

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-tombstone/cmd/tombstone/output"
	"github.com/marshallshelly/pebble-tombstone/cmd/tombstone/tui"
	"github.com/marshallshelly/pebble-tombstone/internal/catalog"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

var interactive bool

var trashCmd = &cobra.Command{
	Use:   "trash <type>",
	Short: "List tombstoned records",
	Long: `List the tombstoned records of a catalog table. With -i, browse them in an
interactive list and restore the selected one.

Examples:
  tombstone trash products
  tombstone trash products -i`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run in interactive mode with TUI")
}

// trashEntry is one tombstoned record as the CLI shows it.
type trashEntry struct {
	ID           int64  `json:"id"`
	Label        string `json:"label"`
	BatchID      string `json:"batch_id"`
	TombstonedAt string `json:"tombstoned_at"`
	TombstonedBy *int64 `json:"tombstoned_by_id,omitempty"`
	record       any
}

func loadTrash(ctx context.Context, a *app, model any) ([]trashEntry, error) {
	table, err := a.engine.Registry().Get(reflect.TypeOf(model))
	if err != nil {
		return nil, err
	}
	recs, err := a.engine.List(ctx, model, tombstone.Tombstoned)
	if err != nil {
		return nil, err
	}

	entries := make([]trashEntry, 0, len(recs))
	for _, rec := range recs {
		id, _, err := store.PrimaryKey(table, rec)
		if err != nil {
			return nil, err
		}
		state := store.StateOf(rec)
		e := trashEntry{
			ID:           id.(int64),
			BatchID:      state.Batch(),
			TombstonedBy: state.TombstonedBy,
			record:       rec,
		}
		if state.TombstonedAt != nil {
			e.TombstonedAt = state.TombstonedAt.Format("2006-01-02 15:04:05")
		}
		if l, ok := rec.(catalog.Labeler); ok {
			e.Label = l.Label()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func runTrash(ctx context.Context, typeName string) error {
	model, err := catalog.Lookup(typeName)
	if err != nil {
		return err
	}

	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := loadTrash(ctx, a, model)
	if err != nil {
		return err
	}

	if interactive {
		items := make([]tui.TrashItem, len(entries))
		for i, e := range entries {
			items[i] = tui.TrashItem{ID: e.ID, Label: e.Label, BatchID: e.BatchID, TombstonedAt: e.TombstonedAt, Record: e.record}
		}
		restore := func(ctx context.Context, rec any) error {
			if err := a.engine.Restore(ctx, rec); err != nil {
				return err
			}
			return a.finish(ctx)
		}
		return tui.RunTrashUI(ctx, typeName, items, restore)
	}

	if jsonOutput {
		return output.JSON(entries)
	}
	if len(entries) == 0 {
		output.Info("Trash is empty")
		return nil
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		by := ""
		if e.TombstonedBy != nil {
			by = strconv.FormatInt(*e.TombstonedBy, 10)
		}
		rows[i] = []string{fmt.Sprint(e.ID), e.Label, e.BatchID, e.TombstonedAt, by}
	}
	return output.Table([]string{"ID", "LABEL", "BATCH", "TOMBSTONED AT", "BY"}, rows)
}
