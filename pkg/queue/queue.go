// Package queue defines the background job collaborator used for deferred
// cascades, and an in-process implementation of it.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// ErrNoHandler is returned when a unit names a job nobody handles.
var ErrNoHandler = errors.New("no handler registered")

// Payload is the serializable argument of a deferred cascade job.
type Payload struct {
	// TypeName is the registered Go type name of the records to transition.
	TypeName string `json:"type_name" yaml:"type_name"`
	// IDs are the primary keys of the records, ascending.
	IDs []any `json:"ids" yaml:"ids"`
	// Actor is the acting principal for deletes; restores leave it nil.
	Actor *int64 `json:"actor,omitempty" yaml:"actor,omitempty"`
	// BatchID correlates a delete with its cascade; restores leave it empty.
	BatchID string `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
}

// Unit is one job to run on a named queue.
type Unit struct {
	Name    string  `json:"name" yaml:"name"`
	Queue   string  `json:"queue" yaml:"queue"`
	Payload Payload `json:"payload" yaml:"payload"`
}

// String returns a short description for logs.
func (u Unit) String() string {
	return fmt.Sprintf("%s[%s] %s x%d", u.Name, u.Queue, u.Payload.TypeName, len(u.Payload.IDs))
}

// Queue accepts units for later execution.
type Queue interface {
	// Enqueue schedules all units. Implementations either accept all of them
	// or return an error.
	Enqueue(ctx context.Context, units ...Unit) error
}

// Handler executes one unit's payload. A returned error makes the queue retry
// the unit unless it is marked with Permanent.
type Handler func(ctx context.Context, payload Payload) error

// Registrar binds job names to handlers.
type Registrar interface {
	Handle(name string, h Handler)
}

// Permanent marks err as not worth retrying. errors.Is and errors.As still see
// through it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}
