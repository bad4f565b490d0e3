// Package pgstore implements store.Store on PostgreSQL through pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/pebble-tombstone/pkg/builder"
	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// Store runs units of work in PostgreSQL transactions.
type Store struct {
	db      *runtime.DB
	now     func() time.Time
	options pgx.TxOptions
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the time source used for updated_at columns.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTxOptions sets the options every transaction begins with.
func WithTxOptions(options pgx.TxOptions) Option {
	return func(s *Store) {
		s.options = options
	}
}

// New creates a store over db.
func New(db *runtime.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgtx, err := s.db.BeginTx(ctx, s.options)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{
		tx:  pgtx,
		b:   builder.New(pgtx),
		now: s.now,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = pgtx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := pgtx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

// Tx is an open PostgreSQL transaction.
type Tx struct {
	tx    pgx.Tx
	b     *builder.DB
	now   func() time.Time
	hooks []func(context.Context)
}

var _ store.Tx = (*Tx)(nil)

// Save implements store.Tx.
func (tx *Tx) Save(ctx context.Context, table *schema.TableMetadata, rec any) error {
	pk, err := table.PrimaryKeyColumn()
	if err != nil {
		return fmt.Errorf("%w: %v", runtime.ErrNoPrimaryKey, err)
	}

	if err := store.Touch(table, rec, tx.now()); err != nil {
		return err
	}

	id, hasID, err := store.PrimaryKey(table, rec)
	if err != nil {
		return err
	}

	state := store.StateOf(rec)
	var insert bool
	switch {
	case state != nil:
		insert = !state.IsPersisted()
	case hasID:
		exists, err := builder.Select(tx.b, table).Where(builder.Eq(pk.Name, id)).Exists(ctx)
		if err != nil {
			return err
		}
		insert = !exists
	default:
		insert = true
	}

	if insert {
		if !hasID && !pk.AutoIncrement && pk.Default == nil {
			return fmt.Errorf("%w: %s insert without a primary key value", runtime.ErrNoPrimaryKey, table.Name)
		}
		var newID any
		if err := builder.Insert(tx.b, table).Values(rec).Returning(pk.Name).Scan(ctx, &newID); err != nil {
			return err
		}
		if err := store.SetPrimaryKey(table, rec, newID); err != nil {
			return err
		}
	} else {
		q := builder.Update(tx.b, table)
		for _, col := range table.Columns {
			if col.Name == pk.Name {
				continue
			}
			v, err := store.ColumnValue(table, rec, col.Name)
			if err != nil {
				return err
			}
			q.Set(col.Name, v)
		}
		n, err := q.Where(builder.Eq(pk.Name, id)).Exec(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s(%v)", runtime.ErrNotFound, table.Name, id)
		}
	}

	if state != nil {
		state.MarkSaved()
	}
	return nil
}

func loaded(recs []any) []any {
	for _, rec := range recs {
		if state := store.StateOf(rec); state != nil {
			state.MarkLoaded()
		}
	}
	return recs
}

// selectKey loads one row by primary key and locks it, so concurrent jobs
// cascading from the same owner serialize on it.
func (tx *Tx) selectKey(table *schema.TableMetadata, id any) (*builder.SelectQuery, error) {
	pk, err := table.PrimaryKeyColumn()
	if err != nil {
		return nil, err
	}
	return builder.Select(tx.b, table).Where(builder.Eq(pk.Name, id)).ForUpdate(), nil
}

// Find implements store.Tx.
func (tx *Tx) Find(ctx context.Context, table *schema.TableMetadata, id any) (any, error) {
	q, err := tx.selectKey(table, id)
	if err != nil {
		return nil, err
	}
	rec, err := q.First(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s(%v): %w", table.Name, id, err)
	}
	loaded([]any{rec})
	return rec, nil
}

// FindAll implements store.Tx.
func (tx *Tx) FindAll(ctx context.Context, table *schema.TableMetadata, ids []any) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pk, err := table.PrimaryKeyColumn()
	if err != nil {
		return nil, err
	}
	recs, err := builder.Select(tx.b, table).
		Where(builder.Any(pk.Name, keyArray(ids))).
		OrderByAsc(pk.Name).
		All(ctx)
	if err != nil {
		return nil, err
	}
	return loaded(recs), nil
}

// keyArray converts ids into a typed slice pgx can encode as one array.
func keyArray(ids []any) any {
	ints := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, ok := store.NormalizeKey(id).(int64)
		if !ok {
			strs := make([]string, len(ids))
			for i, id := range ids {
				strs[i] = fmt.Sprint(store.NormalizeKey(id))
			}
			return strs
		}
		ints = append(ints, n)
	}
	return ints
}

func conditions(scope store.Scope) []builder.Condition {
	var conds []builder.Condition
	if scope.ForeignKey != "" {
		conds = append(conds, builder.Eq(scope.ForeignKey, scope.OwnerID))
	}
	switch scope.State {
	case tombstone.Live:
		conds = append(conds, builder.IsNull(schema.ColumnTombstonedAt))
	case tombstone.Tombstoned:
		conds = append(conds, builder.IsNotNull(schema.ColumnTombstonedAt))
	}
	if scope.BatchID != "" {
		conds = append(conds, builder.Eq(schema.ColumnBatchID, scope.BatchID))
	}
	return conds
}

// selectScope builds the scoped load. Rows that will be saved back are
// loaded with lock set.
func (tx *Tx) selectScope(scope store.Scope, lock bool) (*builder.SelectQuery, *schema.ColumnMetadata, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}
	pk, err := scope.Table.PrimaryKeyColumn()
	if err != nil {
		return nil, nil, err
	}
	q := builder.Select(tx.b, scope.Table)
	for _, cond := range conditions(scope) {
		q.Where(cond)
	}
	q.OrderByAsc(pk.Name)
	if scope.Limit > 0 {
		q.Limit(scope.Limit)
	}
	if lock {
		q.ForUpdate()
	}
	return q, pk, nil
}

// Query implements store.Tx.
func (tx *Tx) Query(ctx context.Context, scope store.Scope) ([]any, error) {
	q, _, err := tx.selectScope(scope, true)
	if err != nil {
		return nil, err
	}
	recs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	return loaded(recs), nil
}

// IDs implements store.Tx.
func (tx *Tx) IDs(ctx context.Context, scope store.Scope) ([]any, error) {
	q, pk, err := tx.selectScope(scope, false)
	if err != nil {
		return nil, err
	}
	return q.Pluck(ctx, pk.Name)
}

// UpdateAll implements store.Tx.
func (tx *Tx) UpdateAll(ctx context.Context, scope store.Scope, change store.Change) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	assignments, err := change.Assignments(scope.Table)
	if err != nil {
		return 0, err
	}

	q := builder.Update(tx.b, scope.Table)
	for _, a := range assignments {
		q.Set(a.Column, a.Value)
	}

	if scope.Limit > 0 {
		// UPDATE has no LIMIT; resolve the capped id set first.
		ids, err := tx.IDs(ctx, scope)
		if err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		pk, err := scope.Table.PrimaryKeyColumn()
		if err != nil {
			return 0, err
		}
		return q.Where(builder.Any(pk.Name, keyArray(ids))).Exec(ctx)
	}

	for _, cond := range conditions(scope) {
		q.Where(cond)
	}
	return q.Exec(ctx)
}

// AfterCommit implements store.Tx.
func (tx *Tx) AfterCommit(fn func(ctx context.Context)) {
	tx.hooks = append(tx.hooks, fn)
}
