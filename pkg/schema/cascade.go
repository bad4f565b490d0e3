package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCascade is returned when a relationship declares a cascade the
// engine cannot honour.
var ErrInvalidCascade = errors.New("invalid cascade declaration")

// CascadeMode is how a tombstone transition on an owner reaches a relationship.
type CascadeMode int

const (
	// CascadeNone leaves dependents untouched.
	CascadeNone CascadeMode = iota
	// CascadeInline transitions each dependent, with callbacks, inside the
	// owner's transaction.
	CascadeInline
	// CascadeDeferred partitions dependent ids into units of deferred work.
	CascadeDeferred
	// CascadeBulkUpdate issues one mass update without per-record callbacks.
	CascadeBulkUpdate
)

// String returns the tag spelling of the mode.
func (m CascadeMode) String() string {
	switch m {
	case CascadeNone:
		return "none"
	case CascadeInline:
		return "inline"
	case CascadeDeferred:
		return "deferred"
	case CascadeBulkUpdate:
		return "bulkUpdate"
	default:
		return fmt.Sprintf("cascade(%d)", int(m))
	}
}

// ParseCascadeMode parses the value of a cascade(...) tag option.
// An empty value means none.
func ParseCascadeMode(s string) (CascadeMode, error) {
	switch strings.TrimSpace(s) {
	case "", "none":
		return CascadeNone, nil
	case "inline":
		return CascadeInline, nil
	case "deferred":
		return CascadeDeferred, nil
	case "bulkUpdate", "bulk-update":
		return CascadeBulkUpdate, nil
	default:
		return CascadeNone, fmt.Errorf("%w: unknown mode %q", ErrInvalidCascade, s)
	}
}
