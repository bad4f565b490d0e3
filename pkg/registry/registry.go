// Package registry provides a central schema registry for table metadata.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

// ErrNotRegistered is returned when a lookup misses.
var ErrNotRegistered = errors.New("model not registered")

// Registry is a thread-safe registry for table metadata.
type Registry struct {
	mu        sync.RWMutex
	parser    *schema.Parser
	tables    map[reflect.Type]*schema.TableMetadata
	names     map[string]*schema.TableMetadata
	typeNames map[string]*schema.TableMetadata
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		parser:    schema.NewParser(),
		tables:    make(map[reflect.Type]*schema.TableMetadata),
		names:     make(map[string]*schema.TableMetadata),
		typeNames: make(map[string]*schema.TableMetadata),
	}
}

// TypeName returns the name a model type is addressed by in deferred
// payloads: the bare Go type name.
func TypeName(modelType reflect.Type) string {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	return modelType.Name()
}

// Register registers a model type and extracts its metadata.
func (r *Registry) Register(model any) error {
	modelType := reflect.TypeOf(model)
	if modelType == nil {
		return fmt.Errorf("model must be a struct, got nil")
	}

	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[modelType]; ok {
		return nil // Already registered
	}

	table, err := r.parser.Parse(modelType)
	if err != nil {
		return fmt.Errorf("failed to parse model %s: %w", modelType.Name(), err)
	}

	if other, ok := r.typeNames[modelType.Name()]; ok {
		return fmt.Errorf("type name %s already registered by %s", modelType.Name(), other.GoType.PkgPath())
	}
	if other, ok := r.names[table.Name]; ok {
		return fmt.Errorf("table %s already registered by %s", table.Name, other.GoType)
	}

	r.tables[modelType] = table
	r.names[table.Name] = table
	r.typeNames[modelType.Name()] = table

	return nil
}

// Get retrieves TableMetadata by Go type.
func (r *Registry) Get(modelType reflect.Type) (*schema.TableMetadata, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	table, ok := r.tables[modelType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: type %s", ErrNotRegistered, modelType.Name())
	}

	return table, nil
}

// GetByName retrieves TableMetadata by table name.
func (r *Registry) GetByName(tableName string) (*schema.TableMetadata, error) {
	r.mu.RLock()
	table, ok := r.names[tableName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrNotRegistered, tableName)
	}

	return table, nil
}

// GetByTypeName retrieves TableMetadata by Go type name.
func (r *Registry) GetByTypeName(typeName string) (*schema.TableMetadata, error) {
	r.mu.RLock()
	table, ok := r.typeNames[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: type name %s", ErrNotRegistered, typeName)
	}

	return table, nil
}

// GetOrRegister retrieves TableMetadata or registers it if not found.
func (r *Registry) GetOrRegister(model any) (*schema.TableMetadata, error) {
	modelType := reflect.TypeOf(model)
	if modelType == nil {
		return nil, fmt.Errorf("model must be a struct, got nil")
	}

	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	table, ok := r.tables[modelType]
	r.mu.RUnlock()

	if ok {
		return table, nil
	}

	if err := r.Register(model); err != nil {
		return nil, err
	}

	return r.Get(modelType)
}

// All returns all registered table metadata ordered by table name.
func (r *Registry) All() []*schema.TableMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables := make([]*schema.TableMetadata, 0, len(r.names))
	for _, table := range r.names {
		tables = append(tables, table)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	return tables
}

// Has checks if a model type is registered.
func (r *Registry) Has(modelType reflect.Type) bool {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	_, ok := r.tables[modelType]
	r.mu.RUnlock()

	return ok
}
