package rendezvous

// Ring is a bounded FIFO: pushing onto a full ring evicts the oldest element.
type Ring[T any] struct {
	buf  []T
	head int // Index of the oldest element.
	size int
}

// NewRing returns an empty ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Len returns the number of elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Push appends v and reports whether the oldest element was evicted.
func (r *Ring[T]) Push(v T) (evicted bool) {
	if r.size == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
	return false
}

// At returns the i-th element, zero being the oldest. It panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("ring: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element, if any.
func (r *Ring[T]) Last() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	return r.At(r.size - 1), true
}

// SetLast replaces the newest element and reports whether there was one.
func (r *Ring[T]) SetLast(v T) bool {
	if r.size == 0 {
		return false
	}
	r.buf[(r.head+r.size-1)%len(r.buf)] = v
	return true
}

// Truncate keeps the n oldest elements.
func (r *Ring[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= r.size {
		return
	}
	var zero T
	for i := n; i < r.size; i++ {
		r.buf[(r.head+i)%len(r.buf)] = zero
	}
	r.size = n
}

// Clear removes every element.
func (r *Ring[T]) Clear() {
	r.Truncate(0)
	r.head = 0
}

// Search returns the number of leading elements for which keep is true.
// keep must be true for a prefix of the ring and false afterwards.
func (r *Ring[T]) Search(keep func(T) bool) int {
	lo, hi := 0, r.size
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if keep(r.At(mid)) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Slice returns a copy of the elements, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}
