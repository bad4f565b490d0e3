package cascade

import (
	"context"
	"fmt"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// Resolve returns the cascade mode a transition of owner applies to rel.
// It is none unless the target type is registered, embeds tombstone.State and
// the declared mode is not none. An unregistered target is an error.
func (e *Engine) Resolve(owner *schema.TableMetadata, rel schema.RelationshipMetadata) (schema.CascadeMode, error) {
	if owner != nil && rel.SourceTable != "" && rel.SourceTable != owner.Name {
		return schema.CascadeNone, fmt.Errorf("cascade: relationship %s belongs to %s, not %s",
			rel.SourceField, rel.SourceTable, owner.Name)
	}
	mode, _, err := e.resolve(rel)
	return mode, err
}

func (e *Engine) resolve(rel schema.RelationshipMetadata) (schema.CascadeMode, *model, error) {
	if rel.Cascade == schema.CascadeNone {
		return schema.CascadeNone, nil, nil
	}
	target, err := e.modelOf(rel.TargetType)
	if err != nil {
		return schema.CascadeNone, nil, fmt.Errorf("%w: %s (%s.%s)",
			ErrUnknownType, rel.TargetField, rel.SourceTable, rel.SourceField)
	}
	if target.pipeline == nil {
		return schema.CascadeNone, nil, nil
	}
	return rel.Cascade, target, nil
}

// cascadeCall is one relationship being cascaded for one owner event.
type cascadeCall struct {
	r      *run
	owner  *Event
	rel    schema.RelationshipMetadata
	target *model
}

func (e *Engine) cascadeHook(rel schema.RelationshipMetadata) Hook {
	return func(ctx context.Context, ev *Event) error {
		mode, target, err := e.resolve(rel)
		if err != nil {
			return err
		}
		if mode == schema.CascadeNone {
			return nil
		}
		// A restore only reaches dependents deleted in the owner's batch.
		if ev.Direction == tombstone.Restore && ev.BatchID == "" {
			return nil
		}

		c := &cascadeCall{r: ev.run, owner: ev, rel: rel, target: target}

		if ev.Direction == tombstone.Delete && !ev.State.IsPersisted() {
			return c.markCached()
		}

		e.logger.Debug("cascading",
			"owner", ev.Table.GoType.Name(),
			"relationship", rel.SourceField,
			"mode", mode.String(),
			"direction", ev.Direction.String(),
			"batch", ev.BatchID)

		switch mode {
		case schema.CascadeInline:
			return c.inline(ctx)
		case schema.CascadeBulkUpdate:
			return c.bulkUpdate(ctx)
		case schema.CascadeDeferred:
			return c.deferred(ctx)
		default:
			return fmt.Errorf("%w: mode %s", schema.ErrInvalidCascade, mode)
		}
	}
}

// markCached tombstones the cached dependents of an owner that has no
// durable identity yet. They are written by the owner's autosave.
func (c *cascadeCall) markCached() error {
	for _, dep := range c.cached() {
		state := store.StateOf(dep)
		c.r.checkpoint(state)
		if err := state.Apply(tombstone.Delete, c.owner.At, c.owner.BatchID, c.owner.Actor); err != nil {
			return err
		}
	}
	return nil
}

func (c *cascadeCall) cached() []any {
	return cachedDependents(c.owner.Record, c.rel)
}

func (c *cascadeCall) ownerKey() (any, error) {
	key, err := store.ColumnValue(c.owner.Table, c.owner.Record, c.rel.References)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("cascade: %s has no %s to scope %s by",
			c.owner.Table.GoType.Name(), c.rel.References, c.rel.SourceField)
	}
	return key, nil
}

// scope selects the owner's dependents. Restores narrow it to the owner's batch.
func (c *cascadeCall) scope() (store.Scope, error) {
	key, err := c.ownerKey()
	if err != nil {
		return store.Scope{}, err
	}
	s := store.Scope{
		Table:      c.target.table,
		ForeignKey: c.rel.ForeignKey,
		OwnerID:    key,
	}
	if c.owner.Direction == tombstone.Restore {
		s.State = tombstone.Tombstoned
		s.BatchID = c.owner.BatchID
	}
	if c.rel.Type == schema.HasOne {
		s.Limit = 1
	}
	return s, nil
}

func (c *cascadeCall) options() transitionOptions {
	o := transitionOptions{at: c.owner.At}
	if c.owner.Direction == tombstone.Delete {
		o.batchID = c.owner.BatchID
		o.actor = c.owner.Actor
	}
	return o
}
