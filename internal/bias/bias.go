// Package bias implements the per-step token constraint bitmap.
//
// A Vector holds one bit per token id plus a trailing stop sentinel bit.
// It defaults to all-false ("no token currently allowed"); a controller
// clears it and then incrementally allows tokens before asking the sampler
// to sample under it. The sampler must never choose a token whose bit is
// false.
package bias

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrOutOfRange is returned when a token id does not fit the vector.
var ErrOutOfRange = errors.New("token id out of bias vector range")

const wordBits = 32

// Vector is a dense allow/disallow bitmap over token ids.
//
// The zero value is an empty vector; use New or Resize to size it.
// A Vector is private to one controller and is not safe for concurrent use.
type Vector struct {
	words []uint32
	size  int
}

// New returns an all-false vector with n bits. For a vocabulary of size V
// the conventional length is V+1, the last bit being the stop sentinel.
func New(n int) *Vector {
	v := &Vector{}
	v.Resize(n)
	return v
}

// Resize sets the capacity to n bits, all false.
func (v *Vector) Resize(n int) {
	v.words = make([]uint32, (n+wordBits-1)/wordBits)
	v.size = n
}

// Size returns the number of bits.
func (v *Vector) Size() int {
	return v.size
}

// Clear sets every bit to false.
func (v *Vector) Clear() {
	for i := range v.words {
		v.words[i] = 0
	}
}

// SetAll sets every bit to the given value.
func (v *Vector) SetAll(val bool) {
	var w uint32
	if val {
		w = ^uint32(0)
	}
	for i := range v.words {
		v.words[i] = w
	}
	if val {
		v.clearTail()
	}
}

// clearTail zeroes the unused bits of the last word so NumSet stays exact.
func (v *Vector) clearTail() {
	if rem := v.size % wordBits; rem != 0 && len(v.words) > 0 {
		v.words[len(v.words)-1] &= (1 << rem) - 1
	}
}

// Allow sets the bit for one token id.
func (v *Vector) Allow(id uint32) error {
	if int(id) >= v.size {
		return fmt.Errorf("%w: id %d, size %d", ErrOutOfRange, id, v.size)
	}
	v.words[id/wordBits] |= 1 << (id % wordBits)
	return nil
}

// Disallow clears the bit for one token id.
func (v *Vector) Disallow(id uint32) error {
	if int(id) >= v.size {
		return fmt.Errorf("%w: id %d, size %d", ErrOutOfRange, id, v.size)
	}
	v.words[id/wordBits] &^= 1 << (id % wordBits)
	return nil
}

// IsAllowed reports whether the bit for id is set. Out-of-range ids are
// never allowed.
func (v *Vector) IsAllowed(id uint32) bool {
	if int(id) >= v.size {
		return false
	}
	return v.words[id/wordBits]&(1<<(id%wordBits)) != 0
}

// NumSet returns the number of true bits.
func (v *Vector) NumSet() int {
	n := 0
	for _, w := range v.words {
		n += bits.OnesCount32(w)
	}
	return n
}

// Words exposes the raw bitmap for the out-of-band bias channel. The slice
// aliases the vector's storage; callers must treat it as read-only.
func (v *Vector) Words() []uint32 {
	return v.words
}
