package tombstone

// Filter selects records by tombstone state.
type Filter int

const (
	// Any ignores tombstone state.
	Any Filter = iota
	// Live matches records that are not tombstoned.
	Live
	// Tombstoned matches tombstoned records only.
	Tombstoned
)

// Match reports whether a record with the given state passes the filter.
func (f Filter) Match(s *State) bool {
	switch f {
	case Live:
		return !s.IsTombstoned()
	case Tombstoned:
		return s.IsTombstoned()
	default:
		return true
	}
}
