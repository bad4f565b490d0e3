// Package batch generates the correlation ids that scope one logical delete or
// restore across an owner and every dependent it cascades to.
package batch

import (
	"fmt"

	"github.com/google/uuid"
)

// ID identifies the records tombstoned together by one logical operation.
type ID string

// New returns a fresh random id.
func New() ID {
	return ID(uuid.NewString())
}

// Ensure returns id, or a fresh one when id is empty.
func Ensure(id string) ID {
	if ID(id).IsZero() {
		return New()
	}
	return ID(id)
}

// Parse validates an externally supplied id. Ids generated by New are UUIDs,
// but any non-empty text is accepted so that callers may use their own
// correlation scheme; Parse only normalises UUID input.
func Parse(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("batch id is empty")
	}
	if u, err := uuid.Parse(s); err == nil {
		return ID(u.String()), nil
	}
	return ID(s), nil
}

// String returns the id as text.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return id == ""
}
