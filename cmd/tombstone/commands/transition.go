package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-tombstone/cmd/tombstone/output"
	"github.com/marshallshelly/pebble-tombstone/internal/catalog"
	"github.com/marshallshelly/pebble-tombstone/pkg/batch"
	"github.com/marshallshelly/pebble-tombstone/pkg/cascade"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

var (
	// Transition flags
	actorID     int64
	batchID     string
	noCallbacks bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Tombstone a record and cascade to its dependents",
	Long: `Tombstone a record and cascade the delete to its dependents. Deferred cascades
run in-process before the command exits.

Examples:
  tombstone delete users 7 --actor 1         # Delete user 7 on behalf of user 1
  tombstone delete product 12 --batch b-42   # Use a chosen batch id
  tombstone delete products 12 --no-callbacks`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []cascade.TransitionOption
		if cmd.Flags().Changed("actor") {
			opts = append(opts, cascade.WithActor(actorID))
		}
		if cmd.Flags().Changed("batch") {
			id, err := parseBatch(batchID)
			if err != nil {
				return err
			}
			opts = append(opts, cascade.WithBatchID(id.String()))
		}
		if noCallbacks {
			opts = append(opts, cascade.WithoutCallbacks())
		}
		return runTransition(cmd.Context(), tombstone.Delete, args[0], args[1], opts)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <type> <id>",
	Short: "Restore a record and everything its delete cascaded to",
	Long: `Restore a tombstoned record and the dependents tombstoned in the same batch.
Dependents deleted separately stay deleted.

Examples:
  tombstone restore users 7
  tombstone restore product 12 --no-callbacks`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []cascade.TransitionOption
		if noCallbacks {
			opts = append(opts, cascade.WithoutCallbacks())
		}
		return runTransition(cmd.Context(), tombstone.Restore, args[0], args[1], opts)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd, restoreCmd)

	deleteCmd.Flags().Int64Var(&actorID, "actor", 0, "ID of the acting principal")
	deleteCmd.Flags().StringVar(&batchID, "batch", "", "Batch id to stamp (default: generated)")
	deleteCmd.Flags().BoolVar(&noCallbacks, "no-callbacks", false, "Skip callbacks and cascades")
	restoreCmd.Flags().BoolVar(&noCallbacks, "no-callbacks", false, "Skip callbacks and cascades")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}

func parseBatch(raw string) (batch.ID, error) {
	id, err := batch.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid --batch: %w", err)
	}
	return id, nil
}

func runTransition(ctx context.Context, dir tombstone.Direction, typeName, rawID string, opts []cascade.TransitionOption) error {
	model, err := catalog.Lookup(typeName)
	if err != nil {
		return err
	}
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.Find(ctx, model, id)
	if err != nil {
		return err
	}

	if dir == tombstone.Delete {
		err = a.engine.Delete(ctx, rec, opts...)
	} else {
		err = a.engine.Restore(ctx, rec, opts...)
	}

	var late *cascade.CommitHookError
	switch {
	case errors.As(err, &late):
		output.Warning("%s committed, but: %v", dir, late)
	case err != nil:
		return err
	}

	if err := a.finish(ctx); err != nil {
		return fmt.Errorf("deferred cascades: %w", err)
	}

	state := store.StateOf(rec)
	if jsonOutput {
		return output.JSON(map[string]any{
			"type":       typeName,
			"id":         id,
			"direction":  dir.String(),
			"tombstoned": state.IsTombstoned(),
			"batch_id":   state.Batch(),
		})
	}

	label := rawID
	if l, ok := rec.(catalog.Labeler); ok {
		label = fmt.Sprintf("%s (%s)", rawID, l.Label())
	}
	if dir == tombstone.Delete {
		output.Success("Deleted %s %s in batch %s", typeName, label, state.Batch())
	} else {
		output.Success("Restored %s %s", typeName, label)
	}
	return nil
}
