package cascade

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/batch"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

type transitionOptions struct {
	batchID       string
	actor         *int64
	at            time.Time
	skipCallbacks bool
}

// TransitionOption configures Delete, Restore and MarkForDeletion.
type TransitionOption func(*transitionOptions)

// WithBatchID deletes into an existing batch instead of a fresh one.
func WithBatchID(id string) TransitionOption {
	return func(o *transitionOptions) {
		o.batchID = id
	}
}

// WithActor records who performed the delete.
func WithActor(id int64) TransitionOption {
	return func(o *transitionOptions) {
		o.actor = &id
	}
}

// WithoutCallbacks writes the tombstone columns directly. No hooks run, so
// nothing cascades.
func WithoutCallbacks() TransitionOption {
	return func(o *transitionOptions) {
		o.skipCallbacks = true
	}
}

func collectOptions(opts []TransitionOption) transitionOptions {
	var o transitionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// run is one top-level operation: a single transaction plus everything that
// must happen once it commits or rolls back.
type run struct {
	e  *Engine
	tx store.Tx

	checkpoints []func()

	mu       sync.Mutex
	postErrs []error
}

// do runs fn in one transaction. In-memory states touched by a failed
// transaction are rolled back; post-commit failures are returned as a
// *CommitHookError.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context, r *run) error) error {
	r := &run{e: e}
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r.tx = tx
		return fn(ctx, r)
	})
	if err != nil {
		for i := len(r.checkpoints) - 1; i >= 0; i-- {
			r.checkpoints[i]()
		}
		return err
	}
	if len(r.postErrs) > 0 {
		return &CommitHookError{Errs: r.postErrs}
	}
	return nil
}

func (r *run) checkpoint(state *tombstone.State) {
	cp := state.Checkpoint()
	r.checkpoints = append(r.checkpoints, func() { state.Rollback(cp) })
}

// afterCommit runs fn once the transaction commits, keeping its error.
func (r *run) afterCommit(fn func(ctx context.Context) error) {
	r.tx.AfterCommit(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			r.mu.Lock()
			r.postErrs = append(r.postErrs, err)
			r.mu.Unlock()
		}
	})
}

// Delete tombstones rec and cascades to its dependents in one transaction.
// rec must be a pointer to a registered model.
func (e *Engine) Delete(ctx context.Context, rec any, opts ...TransitionOption) error {
	return e.apply(ctx, rec, tombstone.Delete, collectOptions(opts))
}

// Restore clears rec's tombstone and restores the dependents deleted in the
// same batch.
func (e *Engine) Restore(ctx context.Context, rec any, opts ...TransitionOption) error {
	return e.apply(ctx, rec, tombstone.Restore, collectOptions(opts))
}

func (e *Engine) apply(ctx context.Context, rec any, dir tombstone.Direction, o transitionOptions) error {
	m, state, err := e.recordModel(rec)
	if err != nil {
		return err
	}
	return e.do(ctx, func(ctx context.Context, r *run) error {
		return r.transition(ctx, m, rec, state, dir, o)
	})
}

// Save writes rec. A pending tombstone change, such as one made by
// MarkForDeletion, runs the matching callbacks and cascades.
func (e *Engine) Save(ctx context.Context, rec any) error {
	m, _, err := e.recordModel(rec)
	if err != nil {
		return err
	}
	return e.do(ctx, func(ctx context.Context, r *run) error {
		return r.saveRecord(ctx, m, rec)
	})
}

// MarkForDeletion tombstones rec in memory only. The next Save persists the
// delete and cascades it.
func (e *Engine) MarkForDeletion(rec any, opts ...TransitionOption) error {
	_, state, err := e.recordModel(rec)
	if err != nil {
		return err
	}
	o := collectOptions(opts)
	return state.Apply(tombstone.Delete, e.clock.Now(), batch.Ensure(o.batchID).String(), o.actor)
}

// Find loads one record of model's type by primary key, tombstoned or not.
func (e *Engine) Find(ctx context.Context, model any, id any) (any, error) {
	m, err := e.modelOf(reflect.TypeOf(model))
	if err != nil {
		return nil, err
	}
	var rec any
	err = e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.Find(ctx, m.table, id)
		return err
	})
	return rec, err
}

// List loads every record of model's type that passes filter, ordered by
// primary key.
func (e *Engine) List(ctx context.Context, model any, filter tombstone.Filter) ([]any, error) {
	m, err := e.modelOf(reflect.TypeOf(model))
	if err != nil {
		return nil, err
	}
	var recs []any
	err = e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		recs, err = tx.Query(ctx, store.Scope{Table: m.table, State: filter})
		return err
	})
	return recs, err
}

// transition applies dir to rec and saves it inside r's transaction.
func (r *run) transition(ctx context.Context, m *model, rec any, state *tombstone.State, dir tombstone.Direction, o transitionOptions) error {
	at := o.at
	if at.IsZero() {
		at = r.e.clock.Now()
	}

	r.checkpoint(state)
	cp := state.Checkpoint()

	var batchID string
	switch dir {
	case tombstone.Delete:
		batchID = batch.Ensure(o.batchID).String()
	case tombstone.Restore:
		batchID = state.Batch()
	}

	if err := state.Apply(dir, at, batchID, o.actor); err != nil {
		return err
	}
	if state.IsPersisted() && !state.ChangedSince(cp) {
		return nil
	}

	ev := &Event{
		Record:    rec,
		State:     state,
		Table:     m.table,
		Direction: dir,
		BatchID:   batchID,
		At:        at.UTC(),
		Tx:        r.tx,
		run:       r,
	}
	if dir == tombstone.Delete {
		ev.Actor = o.actor
	}
	return r.save(ctx, m, ev, !o.skipCallbacks)
}

// saveRecord saves rec with callbacks, deriving the event from its pending
// tombstone change.
func (r *run) saveRecord(ctx context.Context, m *model, rec any) error {
	state := store.StateOf(rec)
	r.checkpoint(state)

	ev := &Event{
		Record: rec,
		State:  state,
		Table:  m.table,
		At:     r.e.clock.Now().UTC(),
		Tx:     r.tx,
		run:    r,
	}
	if dir, ok := pending(state); ok {
		ev.Direction = dir
		switch dir {
		case tombstone.Delete:
			ev.BatchID = state.Batch()
			ev.Actor = state.TombstonedBy
			ev.At = *state.TombstonedAt
		case tombstone.Restore:
			ev.BatchID = state.PersistedBatch()
		}
	}
	return r.save(ctx, m, ev, true)
}

func pending(state *tombstone.State) (tombstone.Direction, bool) {
	switch {
	case state.TransitionedTo(tombstone.Delete):
		return tombstone.Delete, true
	case state.TransitionedTo(tombstone.Restore):
		return tombstone.Restore, true
	default:
		return 0, false
	}
}

// save writes ev.Record, wrapping the write in the model's callbacks when the
// record is changing tombstone state.
func (r *run) save(ctx context.Context, m *model, ev *Event, withCallbacks bool) error {
	_, changing := pending(ev.State)
	hooked := changing && withCallbacks && m.pipeline != nil

	saved := false
	write := func(ctx context.Context) error {
		if err := r.tx.Save(ctx, m.table, ev.Record); err != nil {
			return err
		}
		saved = ev.State.SavedTransitionTo(ev.Direction)
		if withCallbacks {
			return r.autosave(ctx, m, ev.Record)
		}
		return nil
	}

	var err error
	if hooked {
		err = m.pipeline.Run(ctx, ev.Direction, ev, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		id, _, _ := store.PrimaryKey(m.table, ev.Record)
		return &TransitionError{
			Type:      m.table.GoType.Name(),
			ID:        id,
			Direction: ev.Direction,
			Err:       err,
		}
	}

	if hooked && saved && m.pipeline.HasCommitHooks(ev.Direction) {
		committed := *ev
		committed.Tx = nil
		committed.run = nil
		r.afterCommit(func(ctx context.Context) error {
			errs := m.pipeline.RunCommit(ctx, committed.Direction, &committed)
			for _, err := range errs {
				r.e.logger.Error("commit hook failed",
					"type", m.table.GoType.Name(), "direction", committed.Direction.String(), "error", err)
			}
			if len(errs) == 0 {
				return nil
			}
			id, _, _ := store.PrimaryKey(m.table, committed.Record)
			return fmt.Errorf("%s %s(%v) commit hooks: %w",
				committed.Direction, m.table.GoType.Name(), id, errors.Join(errs...))
		})
	}
	return nil
}

// autosave writes the unpersisted dependents cached on owner, pointing their
// foreign keys at it.
func (r *run) autosave(ctx context.Context, owner *model, rec any) error {
	for _, rel := range owner.table.Relationships {
		if rel.Type != schema.HasMany && rel.Type != schema.HasOne {
			continue
		}

		var fresh []any
		for _, dep := range cachedDependents(rec, rel) {
			if st := store.StateOf(dep); st != nil && !st.IsPersisted() {
				fresh = append(fresh, dep)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		target, err := r.e.modelOf(rel.TargetType)
		if err != nil {
			return fmt.Errorf("%w: %s.%s", ErrUnknownType, owner.table.GoType.Name(), rel.SourceField)
		}
		for _, dep := range fresh {
			if err := setForeignKey(owner.table, rec, target.table, dep, rel); err != nil {
				return err
			}
			if err := r.saveRecord(ctx, target, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

func setForeignKey(ownerTable *schema.TableMetadata, owner any, depTable *schema.TableMetadata, dep any, rel schema.RelationshipMetadata) error {
	key, err := store.ColumnValue(ownerTable, owner, rel.References)
	if err != nil {
		return err
	}
	return store.SetColumn(depTable, dep, rel.ForeignKey, key)
}

// cachedDependents returns pointers to the dependents loaded into owner's
// relationship field. A nil field yields none.
func cachedDependents(owner any, rel schema.RelationshipMetadata) []any {
	f := reflect.ValueOf(owner).Elem().FieldByName(rel.SourceField)
	if !f.IsValid() {
		return nil
	}

	var out []any
	switch f.Kind() {
	case reflect.Slice:
		for i := 0; i < f.Len(); i++ {
			el := f.Index(i)
			if el.Kind() == reflect.Pointer {
				if !el.IsNil() {
					out = append(out, el.Interface())
				}
				continue
			}
			out = append(out, el.Addr().Interface())
		}
	case reflect.Pointer:
		if !f.IsNil() {
			out = append(out, f.Interface())
		}
	}
	return out
}

// resetCache marks owner's relationship field as not loaded.
func resetCache(owner any, rel schema.RelationshipMetadata) {
	f := reflect.ValueOf(owner).Elem().FieldByName(rel.SourceField)
	if f.IsValid() && f.CanSet() {
		f.Set(reflect.Zero(f.Type()))
	}
}
