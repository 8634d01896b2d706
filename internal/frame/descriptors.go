package frame

// DescriptorRing is a fixed table of descriptors reused in round-robin
// order. Putting a value into an occupied entry returns the previous
// occupant so its owner can release it once the GPU is done with it.
type DescriptorRing[T any] struct {
	entries []T
	used    []bool
	next    int
}

// NewDescriptorRing creates a ring with capacity entries. A capacity below 1
// is treated as 1.
func NewDescriptorRing[T any](capacity int) *DescriptorRing[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &DescriptorRing[T]{
		entries: make([]T, capacity),
		used:    make([]bool, capacity),
	}
}

// Cap returns the number of entries.
func (d *DescriptorRing[T]) Cap() int { return len(d.entries) }

// Offset returns the index the next Put will use.
func (d *DescriptorRing[T]) Offset() int { return d.next }

// Put stores v at the next index. If the entry was occupied, the previous
// value is returned with evicted set.
func (d *DescriptorRing[T]) Put(v T) (index int, old T, evicted bool) {
	index = d.next
	old, evicted = d.entries[index], d.used[index]
	d.entries[index] = v
	d.used[index] = true
	d.next = (d.next + 1) % len(d.entries)
	return index, old, evicted
}

// Drain empties the ring, calling fn for every occupied entry.
func (d *DescriptorRing[T]) Drain(fn func(T)) {
	var zero T
	for i := range d.entries {
		if d.used[i] && fn != nil {
			fn(d.entries[i])
		}
		d.entries[i] = zero
		d.used[i] = false
	}
	d.next = 0
}
