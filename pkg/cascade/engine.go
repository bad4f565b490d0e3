// Package cascade implements reversible soft deletion that propagates from an
// owner record to its dependents.
//
// A delete stamps a record with a timestamp, a batch id and an optional actor
// and then reaches every relationship declared with a cascade mode. A restore
// reverses exactly the dependents that carry the owner's batch id, so records
// deleted independently stay deleted. Dependents are transitioned inline in
// the owner's transaction, in one bulk update, or in partitions of deferred
// work handed to a queue once the owner's transaction has committed.
//
// Models embed tombstone.State and declare cascades in their relationship tags:
//
//	type Product struct {
//	    tombstone.State
//	    ID       int64             `po:"id,primaryKey,bigserial"`
//	    Variants []*ProductVariant `po:"-,hasMany,foreignKey(product_id),cascade(deferred)"`
//	}
package cascade

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/marshallshelly/pebble-tombstone/pkg/callbacks"
	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

// Event describes one record's transition as seen by callbacks.
type Event struct {
	// Record is the pointer being transitioned.
	Record any
	// State is Record's tombstone state.
	State *tombstone.State
	// Table is Record's metadata.
	Table *schema.TableMetadata
	// Direction is the transition being applied.
	Direction tombstone.Direction
	// BatchID is the batch the record is deleted into, or, for a restore, the
	// batch it is being restored from.
	BatchID string
	// Actor is the acting principal of a delete.
	Actor *int64
	// At is the transition time.
	At time.Time
	// Tx is the open transaction. It is nil inside commit hooks.
	Tx store.Tx

	run *run
}

// Hook observes a transition.
type Hook = callbacks.Func[*Event]

// AroundHook wraps the write of a transition.
type AroundHook = callbacks.AroundFunc[*Event]

type model struct {
	table    *schema.TableMetadata
	pipeline *callbacks.Pipeline[*Event]
}

// Engine applies tombstone transitions and their cascades.
type Engine struct {
	cfg      Config
	store    store.Store
	queue    queue.Queue
	registry *registry.Registry
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.RWMutex
	models map[reflect.Type]*model
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock transitions are stamped with.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRegistry sets the schema registry models are parsed into.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine over st. Deferred cascades are enqueued on q.
func New(cfg Config, st store.Store, q queue.Queue, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("cascade: store is nil")
	}
	if q == nil {
		return nil, fmt.Errorf("cascade: queue is nil")
	}

	e := &Engine{
		cfg:      cfg,
		store:    st,
		queue:    q,
		registry: registry.NewRegistry(),
		clock:    clock.WallClock,
		logger:   slog.Default(),
		models:   make(map[reflect.Type]*model),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Registry returns the schema registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

var recordType = reflect.TypeOf((*tombstone.Record)(nil)).Elem()

// participates reports whether records of table can be tombstoned.
func participates(table *schema.TableMetadata) bool {
	return table.HasTombstoneColumns() && reflect.PointerTo(table.GoType).Implements(recordType)
}

// Register parses models and installs their cascade hooks. Models that do not
// embed tombstone.State may be registered as plain dependents but may not
// declare cascades.
func (e *Engine) Register(models ...any) error {
	for _, m := range models {
		if err := e.register(m); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) register(m any) error {
	table, err := e.registry.GetOrRegister(m)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.models[table.GoType]; ok {
		return nil
	}

	if _, err := table.PrimaryKeyColumn(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoPrimaryKey, err)
	}

	cascading := table.CascadingRelationships()
	if !participates(table) {
		if len(cascading) > 0 {
			return fmt.Errorf("%w: %s declares cascades", ErrNotRecord, table.GoType.Name())
		}
		e.models[table.GoType] = &model{table: table}
		return nil
	}

	for _, rel := range cascading {
		if rel.Type != schema.HasMany && rel.Type != schema.HasOne {
			return fmt.Errorf("%w: cascade(%s) on %s %s.%s",
				schema.ErrInvalidCascade, rel.Cascade, rel.Type, table.GoType.Name(), rel.SourceField)
		}
	}

	p := callbacks.New[*Event]()
	for _, rel := range cascading {
		p.Before(tombstone.Delete, e.cascadeHook(rel))
		p.After(tombstone.Restore, e.cascadeHook(rel))
	}

	e.models[table.GoType] = &model{table: table, pipeline: p}
	e.logger.Debug("model registered",
		"type", table.GoType.Name(), "table", table.Name, "cascades", len(cascading))
	return nil
}

func baseType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (e *Engine) modelOf(t reflect.Type) (*model, error) {
	t = baseType(t)
	if t == nil {
		return nil, fmt.Errorf("%w: nil model", ErrNotRegistered)
	}
	e.mu.RLock()
	m, ok := e.models[t]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: type %s", ErrNotRegistered, t.Name())
	}
	return m, nil
}

// recordModel returns the model of rec, which must be a registered,
// participating pointer.
func (e *Engine) recordModel(rec any) (*model, *tombstone.State, error) {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, nil, fmt.Errorf("cascade: record must be a non-nil pointer, got %T", rec)
	}
	m, err := e.modelOf(v.Type())
	if err != nil {
		return nil, nil, err
	}
	if m.pipeline == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotRecord, m.table.GoType.Name())
	}
	return m, store.StateOf(rec), nil
}

func (e *Engine) modelByTypeName(name string) (*model, error) {
	table, err := e.registry.GetByTypeName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	m, err := e.modelOf(table.GoType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return m, nil
}

func (e *Engine) hookModel(rec any) (*callbacks.Pipeline[*Event], error) {
	m, err := e.modelOf(reflect.TypeOf(rec))
	if err != nil {
		return nil, err
	}
	if m.pipeline == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRecord, m.table.GoType.Name())
	}
	return m.pipeline, nil
}

// BeforeDelete registers fn to run before a record of model's type is written
// as deleted. Hooks run after the cascade hooks installed by Register.
func (e *Engine) BeforeDelete(model any, fn Hook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.Before(tombstone.Delete, fn)
	return nil
}

// AfterDelete registers fn to run after the delete write, inside the transaction.
func (e *Engine) AfterDelete(model any, fn Hook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.After(tombstone.Delete, fn)
	return nil
}

// AroundDelete registers fn to wrap the delete write.
func (e *Engine) AroundDelete(model any, fn AroundHook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.Around(tombstone.Delete, fn)
	return nil
}

// BeforeRestore registers fn to run before the restore write.
func (e *Engine) BeforeRestore(model any, fn Hook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.Before(tombstone.Restore, fn)
	return nil
}

// AfterRestore registers fn to run after the restore write. Hooks run after
// the restore cascades installed by Register.
func (e *Engine) AfterRestore(model any, fn Hook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.After(tombstone.Restore, fn)
	return nil
}

// AroundRestore registers fn to wrap the restore write.
func (e *Engine) AroundRestore(model any, fn AroundHook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.Around(tombstone.Restore, fn)
	return nil
}

// AfterDeleteCommit registers fn to run once per record whose delete was
// durably committed. It never runs on rollback or for saves that did not
// change the tombstone state.
func (e *Engine) AfterDeleteCommit(model any, fn Hook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.OnCommit(tombstone.Delete, fn)
	return nil
}

// AfterRestoreCommit is AfterDeleteCommit for restores.
func (e *Engine) AfterRestoreCommit(model any, fn Hook) error {
	p, err := e.hookModel(model)
	if err != nil {
		return err
	}
	p.OnCommit(tombstone.Restore, fn)
	return nil
}
