// Package tombstone provides the tombstone attributes a record carries and the
// transition predicates evaluated against them.
package tombstone

import (
	"fmt"
	"time"
)

// Direction is the kind of state transition applied to a record.
type Direction int

const (
	// Delete tombstones a record.
	Delete Direction = iota + 1
	// Restore clears a record's tombstone.
	Restore
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Delete:
		return "delete"
	case Restore:
		return "restore"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Record is implemented by every model that participates in tombstoning.
// Models get it for free by embedding State.
type Record interface {
	TombstoneState() *State
}

// snapshot holds the tombstone columns as they were at some point in time.
type snapshot struct {
	tombstonedAt *time.Time
	batchID      *string
	tombstonedBy *int64
}

func (s snapshot) tombstoned() bool {
	return s.tombstonedAt != nil
}

// State holds the tombstone columns of a record together with what was last
// persisted, so that pending changes can be told apart from saved ones.
//
// Embed it in a model struct:
//
//	type Product struct {
//	    tombstone.State
//	    ID   int64  `po:"id,primaryKey,bigserial"`
//	    Name string `po:"name,text,notNull"`
//	}
type State struct {
	TombstonedAt *time.Time `po:"tombstoned_at,timestamptz"`
	BatchID      *string    `po:"batch_id,text"`
	TombstonedBy *int64     `po:"tombstoned_by_id,bigint"`

	persisted bool
	was       snapshot // last persisted values
	before    snapshot // persisted values before the most recent save
}

// TombstoneState implements Record.
func (s *State) TombstoneState() *State {
	return s
}

func (s *State) current() snapshot {
	return snapshot{
		tombstonedAt: s.TombstonedAt,
		batchID:      s.BatchID,
		tombstonedBy: s.TombstonedBy,
	}
}

// MarkTombstoned sets all three tombstone attributes. Repeating it on an
// already tombstoned record overwrites them.
func (s *State) MarkTombstoned(at time.Time, batchID string, actor *int64) {
	at = at.UTC()
	id := batchID
	s.TombstonedAt = &at
	s.BatchID = &id
	if actor != nil {
		by := *actor
		s.TombstonedBy = &by
	} else {
		s.TombstonedBy = nil
	}
}

// MarkRestored clears the tombstone timestamp and batch id together.
// TombstonedBy is kept as an audit trail.
func (s *State) MarkRestored() {
	s.TombstonedAt = nil
	s.BatchID = nil
}

// Apply performs the in-memory part of a transition.
func (s *State) Apply(dir Direction, at time.Time, batchID string, actor *int64) error {
	switch dir {
	case Delete:
		if batchID == "" {
			return fmt.Errorf("tombstone: delete requires a batch id")
		}
		s.MarkTombstoned(at, batchID, actor)
	case Restore:
		s.MarkRestored()
	default:
		return fmt.Errorf("tombstone: unknown direction %s", dir)
	}
	return nil
}

// IsTombstoned reports whether the record is tombstoned, including unsaved changes.
func (s *State) IsTombstoned() bool {
	return s.TombstonedAt != nil
}

// Batch returns the batch id, or "" when the record is live.
func (s *State) Batch() string {
	if s.BatchID == nil {
		return ""
	}
	return *s.BatchID
}

// WasTombstoned reports the tombstone state as last persisted.
func (s *State) WasTombstoned() bool {
	return s.was.tombstoned()
}

// TombstonedBeforeLastSave reports the persisted tombstone state prior to the
// most recent save.
func (s *State) TombstonedBeforeLastSave() bool {
	return s.before.tombstoned()
}

// TransitionedTo reports whether there is an unsaved change towards dir.
func (s *State) TransitionedTo(dir Direction) bool {
	return changedTo(dir, s.WasTombstoned(), s.IsTombstoned())
}

// SavedTransitionTo reports whether the most recent save changed the record towards dir.
func (s *State) SavedTransitionTo(dir Direction) bool {
	return changedTo(dir, s.before.tombstoned(), s.was.tombstoned())
}

func changedTo(dir Direction, from, to bool) bool {
	if from == to {
		return false
	}
	switch dir {
	case Delete:
		return to
	case Restore:
		return !to
	default:
		return false
	}
}

// IsPersisted reports whether the record has a durable identity.
func (s *State) IsPersisted() bool {
	return s.persisted
}

// MarkLoaded records the current values as freshly read from storage.
func (s *State) MarkLoaded() {
	s.persisted = true
	s.was = s.current()
	s.before = s.was
}

// MarkSaved records the current values as written by a save.
func (s *State) MarkSaved() {
	s.persisted = true
	s.before = s.was
	s.was = s.current()
}

// Invariant reports an error when exactly one of the timestamp and batch id is set.
func (s *State) Invariant() error {
	if (s.TombstonedAt == nil) != (s.BatchID == nil) {
		return fmt.Errorf("tombstone: tombstoned_at and batch_id must be set together")
	}
	return nil
}

// PersistedBatch returns the batch id as last persisted, or "" when the record
// was live.
func (s *State) PersistedBatch() string {
	if s.was.batchID == nil {
		return ""
	}
	return *s.was.batchID
}

// Checkpoint is a copy of a State, including what it last persisted.
type Checkpoint struct {
	state State
}

// Checkpoint captures the state so that Rollback can return to it.
func (s *State) Checkpoint() Checkpoint {
	return Checkpoint{state: *s}
}

// Rollback returns the state to c. It is used when the transaction that
// wrote the state did not commit.
func (s *State) Rollback(c Checkpoint) {
	*s = c.state
}

// ChangedSince reports whether any tombstone attribute differs from c.
func (s *State) ChangedSince(c Checkpoint) bool {
	return !equalTime(s.TombstonedAt, c.state.TombstonedAt) ||
		!equalString(s.BatchID, c.state.BatchID) ||
		!equalInt(s.TombstonedBy, c.state.TombstonedBy)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
