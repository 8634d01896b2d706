package frame

import (
	"errors"
	"fmt"
)

// RingAlignment is the alignment of every Ring allocation. It covers the
// 256-byte row pitch and 512-byte placement rules of common APIs.
const RingAlignment = 512

// ErrRingOverflow is returned when a single allocation exceeds the ring.
var ErrRingOverflow = errors.New("frame: allocation larger than ring")

// Ring is a bump allocator over a fixed-size staging buffer. It wraps to
// offset zero when an allocation would cross the end.
type Ring struct {
	size   uint64
	cursor uint64
	wraps  uint64
}

// NewRing creates a ring of size bytes.
func NewRing(size uint64) *Ring {
	return &Ring{size: size}
}

// Size returns the ring capacity in bytes.
func (r *Ring) Size() uint64 { return r.size }

// Cursor returns the offset of the next allocation attempt.
func (r *Ring) Cursor() uint64 { return r.cursor }

// Wraps counts how many times the ring restarted at zero.
func (r *Ring) Wraps() uint64 { return r.wraps }

// Alloc reserves n bytes and returns their offset. Offsets are multiples of
// RingAlignment.
func (r *Ring) Alloc(n uint64) (uint64, error) {
	if n > r.size {
		return 0, fmt.Errorf("%w: %d bytes, ring holds %d", ErrRingOverflow, n, r.size)
	}
	if alignUp(r.cursor+n) > r.size {
		r.cursor = 0
		r.wraps++
	}
	offset := r.cursor
	r.cursor = alignUp(r.cursor+n) % r.size
	return offset, nil
}

// Reset moves the cursor back to zero.
func (r *Ring) Reset() {
	r.cursor = 0
}

func alignUp(x uint64) uint64 {
	return (x + RingAlignment - 1) &^ (RingAlignment - 1)
}
