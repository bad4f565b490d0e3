package cascade

import (
	"context"
	"errors"

	"github.com/marshallshelly/pebble-tombstone/pkg/batch"
	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// RegisterJobs binds the deferred cascade jobs to reg.
func (e *Engine) RegisterJobs(reg queue.Registrar) {
	reg.Handle(JobDeleteBatch, e.PerformDeleteBatch)
	reg.Handle(JobRestoreBatch, e.PerformRestoreBatch)
}

// PerformDeleteBatch deletes every record named by p, each in its own
// transaction and with callbacks, so nested cascades fan out further. A
// payload without a batch id gets a fresh one.
func (e *Engine) PerformDeleteBatch(ctx context.Context, p queue.Payload) error {
	o := transitionOptions{
		batchID: batch.Ensure(p.BatchID).String(),
		actor:   p.Actor,
	}
	return e.perform(ctx, p, tombstone.Delete, o)
}

// PerformRestoreBatch restores every record named by p.
func (e *Engine) PerformRestoreBatch(ctx context.Context, p queue.Payload) error {
	return e.perform(ctx, p, tombstone.Restore, transitionOptions{})
}

// perform attempts every id. Records that no longer exist are skipped. Failed
// records do not stop the others; the last failure is returned so the queue
// retries the unit.
func (e *Engine) perform(ctx context.Context, p queue.Payload, dir tombstone.Direction, o transitionOptions) error {
	m, err := e.modelByTypeName(p.TypeName)
	if err != nil {
		return queue.Permanent(err)
	}
	if m.pipeline == nil {
		return queue.Permanent(errors.Join(ErrUnknownType, ErrNotRecord))
	}

	var last error
	for _, id := range p.IDs {
		err := e.do(ctx, func(ctx context.Context, r *run) error {
			rec, err := r.tx.Find(ctx, m.table, store.NormalizeKey(id))
			if errors.Is(err, runtime.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return r.transition(ctx, m, rec, store.StateOf(rec), dir, o)
		})
		if err != nil {
			e.logger.Warn("deferred transition failed",
				"type", p.TypeName, "id", id, "direction", dir.String(), "error", err)
			last = err
		}
	}
	return last
}
