package cascade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

var (
	// ErrUnknownType is returned when a relationship or deferred payload names
	// a type the engine has not registered. It aborts the whole cascade.
	ErrUnknownType = errors.New("unknown dependent type")

	// ErrNotRegistered is returned when a record's type was never registered.
	ErrNotRegistered = registry.ErrNotRegistered

	// ErrNotRecord is returned when a model does not embed tombstone.State or
	// lacks the tombstone columns.
	ErrNotRecord = errors.New("model does not participate in tombstoning")

	// ErrNoPrimaryKey is returned when a model has no single-column primary key.
	ErrNoPrimaryKey = errors.New("model has no single-column primary key")
)

// TransitionError reports the failure of one record's transition.
type TransitionError struct {
	Type      string
	ID        any
	Direction tombstone.Direction
	Err       error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("%s new %s: %v", e.Direction, e.Type, e.Err)
	}
	return fmt.Sprintf("%s %s(%v): %v", e.Direction, e.Type, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// CommitHookError collects failures that happened after a transaction had
// already committed: commit hooks and deferred enqueues. The transition itself
// stays committed.
type CommitHookError struct {
	Errs []error
}

// Error implements the error interface.
func (e *CommitHookError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d post-commit failure(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}

// Unwrap returns the collected errors.
func (e *CommitHookError) Unwrap() []error {
	return e.Errs
}
