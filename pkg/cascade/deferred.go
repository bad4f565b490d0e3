package cascade

import (
	"context"
	"fmt"

	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// Job names of deferred cascade units.
const (
	JobDeleteBatch  = "tombstone.delete_batch"
	JobRestoreBatch = "tombstone.restore_batch"
)

// deferred hands the persisted dependents in scope to the queue, one unit per
// partition, once the owner's transaction commits. Cached dependents with no
// durable identity are deleted right away.
func (c *cascadeCall) deferred(ctx context.Context) error {
	scope, err := c.scope()
	if err != nil {
		return err
	}
	ids, err := c.r.tx.IDs(ctx, scope)
	if err != nil {
		return err
	}

	if c.owner.Direction == tombstone.Delete {
		if err := c.transitionFresh(ctx); err != nil {
			return err
		}
	}

	units := c.units(ids)
	if len(units) == 0 {
		return nil
	}

	q := c.r.e.queue
	logger := c.r.e.logger
	c.r.afterCommit(func(ctx context.Context) error {
		if err := q.Enqueue(ctx, units...); err != nil {
			logger.Error("enqueue failed", "units", len(units), "type", units[0].Payload.TypeName, "error", err)
			return fmt.Errorf("enqueue %d %s unit(s): %w", len(units), units[0].Name, err)
		}
		logger.Debug("deferred cascade enqueued",
			"units", len(units), "type", units[0].Payload.TypeName, "records", len(ids))
		return nil
	})
	return nil
}

func (c *cascadeCall) transitionFresh(ctx context.Context) error {
	o := c.options()
	var first error
	for _, dep := range c.cached() {
		state := store.StateOf(dep)
		if state.IsPersisted() {
			continue
		}
		if err := setForeignKey(c.owner.Table, c.owner.Record, c.target.table, dep, c.rel); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		if err := c.r.transition(ctx, c.target, dep, state, tombstone.Delete, o); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// batchSize is the relationship's partition size, else the configured one.
func (c *cascadeCall) batchSize() int {
	if c.rel.BatchSize > 0 {
		return c.rel.BatchSize
	}
	return c.r.e.cfg.BatchSize
}

func (c *cascadeCall) units(ids []any) []queue.Unit {
	cfg := c.r.e.cfg
	typeName := registry.TypeName(c.target.table.GoType)

	var units []queue.Unit
	for _, part := range partition(ids, c.batchSize()) {
		u := queue.Unit{Payload: queue.Payload{TypeName: typeName, IDs: part}}
		switch c.owner.Direction {
		case tombstone.Delete:
			u.Name = JobDeleteBatch
			u.Queue = cfg.DeleteQueue
			u.Payload.Actor = c.owner.Actor
			u.Payload.BatchID = c.owner.BatchID
		case tombstone.Restore:
			u.Name = JobRestoreBatch
			u.Queue = cfg.RestoreQueue
		}
		units = append(units, u)
	}
	return units
}

// partition splits ids into consecutive slices of at most size elements.
func partition(ids []any, size int) [][]any {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var parts [][]any
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		parts = append(parts, ids[start:end:end])
	}
	return parts
}
