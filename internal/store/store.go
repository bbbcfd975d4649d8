// Package store implements the versioned shared-variable store.
//
// One Store is shared by every sequence of a generation request and is the
// sole coordination point between forked sequences. Writes are atomic and
// versioned; compare-and-swap writes let concurrent sequences race on a
// variable with exactly one winner.
//
// A version-conflicted write is not an error: the response carries the
// current state of the variable (or its absence) and callers branch on the
// response shape, exactly as they would after a read.
package store

import "sync"

// Op selects how a write combines with the stored value.
type Op uint8

const (
	// OpSet replaces the stored value.
	OpSet Op = iota
	// OpAppend concatenates onto the stored value, treating a missing
	// variable as empty.
	OpAppend
)

// Value is one versioned variable state. Versions start at 1 on the first
// successful write and increase by exactly 1 on every successful write.
// Absence is a distinct observable state, not version 0.
type Value struct {
	Version uint64
	Data    []byte
}

// WriteResult is the shape-discriminated response to Write.
//
// When Written is true, Version is the new version of the variable.
// Otherwise the write was a version conflict and was not applied; Current
// and Exists report the state a Read at that instant would have returned.
type WriteResult struct {
	Written bool
	Version uint64
	Current Value
	Exists  bool
}

// Store is a versioned key/value store with compare-and-swap writes.
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	vars map[string]Value
}

// New returns an empty store.
func New() *Store {
	return &Store{vars: make(map[string]Value)}
}

// Read returns the current value of a variable. The second result is false
// when the variable has never been written.
func (s *Store) Read(name string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return Value{}, false
	}
	return Value{Version: v.Version, Data: cloneBytes(v.Data)}, true
}

// Write applies one write to a variable.
//
// With whenVersion == nil the write is unconditional and always succeeds.
// With whenVersion set, the write applies iff the stored version currently
// equals *whenVersion; a missing variable never matches. On conflict
// nothing is applied and the result carries the current read state.
func (s *Store) Write(name string, value []byte, op Op, whenVersion *uint64) WriteResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.vars[name]
	if whenVersion != nil && (!exists || cur.Version != *whenVersion) {
		res := WriteResult{Exists: exists}
		if exists {
			res.Current = Value{Version: cur.Version, Data: cloneBytes(cur.Data)}
		}
		return res
	}

	var data []byte
	switch op {
	case OpAppend:
		data = append(cloneBytes(cur.Data), value...)
	default:
		data = cloneBytes(value)
	}

	next := Value{Version: cur.Version + 1, Data: data}
	s.vars[name] = next
	return WriteResult{Written: true, Version: next.Version}
}

// Len returns the number of variables that exist.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vars)
}

// cloneBytes copies b so no caller can alias the store's internal state.
func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
