// Package memstore is an in-memory implementation of store.Store.
//
// Transactions are serialized: InTx holds the store lock for the whole unit of
// work. Writes go to a per-transaction overlay that is merged into the
// committed tables on commit and dropped on rollback.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

type row map[string]any

func (r row) clone() row {
	c := make(row, len(r))
	for col, v := range r {
		c[col] = v
	}
	return c
}

type tableData struct {
	rows   map[any]row
	nextID int64
}

// Store keeps every table in memory.
type Store struct {
	mu     sync.Mutex
	tables map[string]*tableData
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the time source used for updated_at columns.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string]*tableData),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Tx{
		store:    s,
		overlays: make(map[string]*overlay),
	}

	s.mu.Lock()
	err := func() error {
		defer s.mu.Unlock()
		defer func() { tx.done = true }()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.commit(tx)
		return nil
	}()
	if err != nil {
		return err
	}

	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

func (s *Store) commit(tx *Tx) {
	for name, o := range tx.overlays {
		t, ok := s.tables[name]
		if !ok {
			t = &tableData{rows: make(map[any]row)}
			s.tables[name] = t
		}
		for key, r := range o.rows {
			t.rows[key] = r
		}
		if o.nextID > t.nextID {
			t.nextID = o.nextID
		}
	}
}

// Len returns the number of committed rows in a table.
func (s *Store) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[table]; ok {
		return len(t.rows)
	}
	return 0
}

// overlay holds the rows one transaction has written to one table.
type overlay struct {
	base   *tableData
	rows   map[any]row
	nextID int64
}

func (o *overlay) get(key any) (row, bool) {
	if r, ok := o.rows[key]; ok {
		return r, true
	}
	if o.base != nil {
		r, ok := o.base.rows[key]
		return r, ok
	}
	return nil, false
}

func (o *overlay) keys() []any {
	keys := make([]any, 0, len(o.rows))
	for key := range o.rows {
		keys = append(keys, key)
	}
	if o.base != nil {
		for key := range o.base.rows {
			if _, ok := o.rows[key]; !ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// Tx is an open memstore transaction.
type Tx struct {
	store    *Store
	overlays map[string]*overlay
	hooks    []func(context.Context)
	done     bool
}

var _ store.Tx = (*Tx)(nil)

func (tx *Tx) table(name string) *overlay {
	o, ok := tx.overlays[name]
	if !ok {
		o = &overlay{
			base: tx.store.tables[name],
			rows: make(map[any]row),
		}
		if o.base != nil {
			o.nextID = o.base.nextID
		}
		tx.overlays[name] = o
	}
	return o
}

func (tx *Tx) check() error {
	if tx.done {
		return runtime.ErrTransactionClosed
	}
	return nil
}

// Save implements store.Tx.
func (tx *Tx) Save(_ context.Context, table *schema.TableMetadata, rec any) error {
	if err := tx.check(); err != nil {
		return err
	}
	pkCol, err := table.PrimaryKeyColumn()
	if err != nil {
		return fmt.Errorf("%w: %v", runtime.ErrNoPrimaryKey, err)
	}
	data := tx.table(table.Name)

	if err := store.Touch(table, rec, tx.store.now()); err != nil {
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
		_, exists := data.get(store.NormalizeKey(id))
		insert = !exists
	default:
		insert = true
	}

	if insert {
		if !hasID {
			if !pkCol.AutoIncrement {
				return fmt.Errorf("%w: %s insert without a primary key value", runtime.ErrNoPrimaryKey, table.Name)
			}
			data.nextID++
			if err := store.SetPrimaryKey(table, rec, data.nextID); err != nil {
				return err
			}
			id = data.nextID
		}
		key := store.NormalizeKey(id)
		if _, exists := data.get(key); exists {
			return fmt.Errorf("%w: %s(%v)", runtime.ErrDuplicateKey, table.Name, id)
		}
		if n, ok := key.(int64); ok && n > data.nextID {
			data.nextID = n
		}
	} else if _, exists := data.get(store.NormalizeKey(id)); !exists {
		return fmt.Errorf("%w: %s(%v)", runtime.ErrNotFound, table.Name, id)
	}

	r := make(row, len(table.Columns))
	for _, col := range table.Columns {
		v, err := store.ColumnValue(table, rec, col.Name)
		if err != nil {
			return err
		}
		r[col.Name] = v
	}
	data.rows[store.NormalizeKey(id)] = r

	if state != nil {
		state.MarkSaved()
	}
	return nil
}

func materialize(table *schema.TableMetadata, r row) (any, error) {
	rec := store.New(table)
	for _, col := range table.Columns {
		if err := store.SetColumn(table, rec, col.Name, r[col.Name]); err != nil {
			return nil, err
		}
	}
	if state := store.StateOf(rec); state != nil {
		state.MarkLoaded()
	}
	return rec, nil
}

// Find implements store.Tx.
func (tx *Tx) Find(_ context.Context, table *schema.TableMetadata, id any) (any, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	r, ok := tx.table(table.Name).get(store.NormalizeKey(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s(%v)", runtime.ErrNotFound, table.Name, id)
	}
	return materialize(table, r)
}

// FindAll implements store.Tx.
func (tx *Tx) FindAll(_ context.Context, table *schema.TableMetadata, ids []any) ([]any, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	data := tx.table(table.Name)

	keys := make([]any, 0, len(ids))
	seen := make(map[any]bool, len(ids))
	for _, id := range ids {
		key := store.NormalizeKey(id)
		if _, ok := data.get(key); !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return store.LessKey(keys[i], keys[j]) })

	out := make([]any, 0, len(keys))
	for _, key := range keys {
		r, _ := data.get(key)
		rec, err := materialize(table, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func matches(scope store.Scope, owner any, r row) bool {
	if scope.ForeignKey != "" && store.NormalizeKey(r[scope.ForeignKey]) != owner {
		return false
	}
	tombstoned := r[schema.ColumnTombstonedAt] != nil
	switch scope.State {
	case tombstone.Live:
		if tombstoned {
			return false
		}
	case tombstone.Tombstoned:
		if !tombstoned {
			return false
		}
	}
	if scope.BatchID != "" && r[schema.ColumnBatchID] != scope.BatchID {
		return false
	}
	return true
}

func (tx *Tx) scoped(scope store.Scope) (*overlay, []any, error) {
	if err := tx.check(); err != nil {
		return nil, nil, err
	}
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}
	data := tx.table(scope.Table.Name)
	owner := store.NormalizeKey(scope.OwnerID)

	var keys []any
	for _, key := range data.keys() {
		r, _ := data.get(key)
		if matches(scope, owner, r) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return store.LessKey(keys[i], keys[j]) })
	if scope.Limit > 0 && len(keys) > scope.Limit {
		keys = keys[:scope.Limit]
	}
	return data, keys, nil
}

// Query implements store.Tx.
func (tx *Tx) Query(_ context.Context, scope store.Scope) ([]any, error) {
	data, keys, err := tx.scoped(scope)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		r, _ := data.get(key)
		rec, err := materialize(scope.Table, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// IDs implements store.Tx.
func (tx *Tx) IDs(_ context.Context, scope store.Scope) ([]any, error) {
	data, keys, err := tx.scoped(scope)
	if err != nil {
		return nil, err
	}
	pk, err := scope.Table.PrimaryKeyColumn()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		r, _ := data.get(key)
		out = append(out, r[pk.Name])
	}
	return out, nil
}

// UpdateAll implements store.Tx.
func (tx *Tx) UpdateAll(_ context.Context, scope store.Scope, change store.Change) (int64, error) {
	data, keys, err := tx.scoped(scope)
	if err != nil {
		return 0, err
	}
	assignments, err := change.Assignments(scope.Table)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		r, _ := data.get(key)
		r = r.clone()
		for _, a := range assignments {
			r[a.Column] = a.Value
		}
		data.rows[key] = r
	}
	return int64(len(keys)), nil
}

// AfterCommit implements store.Tx.
func (tx *Tx) AfterCommit(fn func(ctx context.Context)) {
	tx.hooks = append(tx.hooks, fn)
}
