package cascade

import (
	"context"

	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// inline transitions every dependent in scope, with callbacks, inside the
// owner's transaction. All dependents are attempted; the first failure is
// returned.
func (c *cascadeCall) inline(ctx context.Context) error {
	deps, err := c.load(ctx)
	if err != nil {
		return err
	}

	o := c.options()
	var first error
	for _, dep := range deps {
		state := store.StateOf(dep)
		if !state.IsPersisted() {
			if err := setForeignKey(c.owner.Table, c.owner.Record, c.target.table, dep, c.rel); err != nil {
				if first == nil {
					first = err
				}
				continue
			}
		}
		if err := c.r.transition(ctx, c.target, dep, state, c.owner.Direction, o); err != nil && first == nil {
			first = err
		}
	}

	resetCache(c.owner.Record, c.rel)
	return first
}

// load returns the stored dependents in scope. On delete, cached instances
// replace their stored copies so that the caller's objects are the ones
// mutated, and unpersisted cached dependents are appended. A hasOne whose
// cached dependent is new reaches both the stored row and the new one.
func (c *cascadeCall) load(ctx context.Context) ([]any, error) {
	scope, err := c.scope()
	if err != nil {
		return nil, err
	}
	stored, err := c.r.tx.Query(ctx, scope)
	if err != nil {
		return nil, err
	}
	if c.owner.Direction != tombstone.Delete {
		return stored, nil
	}

	byKey := make(map[any]any)
	var fresh []any
	for _, dep := range c.cached() {
		if !store.StateOf(dep).IsPersisted() {
			fresh = append(fresh, dep)
			continue
		}
		if id, ok, err := store.PrimaryKey(c.target.table, dep); err == nil && ok {
			byKey[store.NormalizeKey(id)] = dep
		}
	}

	deps := make([]any, 0, len(stored)+len(fresh))
	for _, dep := range stored {
		id, _, err := store.PrimaryKey(c.target.table, dep)
		if err != nil {
			return nil, err
		}
		if cached, ok := byKey[store.NormalizeKey(id)]; ok {
			deps = append(deps, cached)
			continue
		}
		deps = append(deps, dep)
	}
	return append(deps, fresh...), nil
}

// bulkUpdate transitions every dependent in scope with one statement. No
// dependent is loaded and no dependent callback runs.
func (c *cascadeCall) bulkUpdate(ctx context.Context) error {
	scope, err := c.scope()
	if err != nil {
		return err
	}

	change := store.Change{
		Direction: c.owner.Direction,
		At:        c.owner.At,
	}
	if c.owner.Direction == tombstone.Delete {
		change.BatchID = c.owner.BatchID
		change.Actor = c.owner.Actor
		if c.owner.State.TombstonedAt != nil {
			change.At = *c.owner.State.TombstonedAt
		}
	}

	n, err := c.r.tx.UpdateAll(ctx, scope, change)
	if err != nil {
		return err
	}
	c.r.e.logger.Debug("bulk cascade applied",
		"type", c.target.table.GoType.Name(), "direction", c.owner.Direction.String(), "rows", n)

	resetCache(c.owner.Record, c.rel)
	return nil
}
