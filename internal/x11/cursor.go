package x11

import "iter"

// record is the platform-side cursor: the backing elements, the current
// position and how many elements remain. advance moves it in place.
type record[S any] struct {
	data  []S
	index int
	rem   int
}

func (r *record[S]) advance() int {
	r.index++
	r.rem--
	return r.rem
}

// Cursor is a single-pass, forward-only sequence over a setup record.
// Each element is copied out before the record advances, so values returned
// by Next stay valid after later calls. Once exhausted it stays exhausted.
type Cursor[T any] struct {
	current func() T
	advance func() int
}

func newCursor[S, T any](data []S, view func(*S) T) *Cursor[T] {
	if len(data) == 0 {
		return &Cursor[T]{}
	}
	r := &record[S]{data: data, rem: len(data)}
	return &Cursor[T]{
		current: func() T { return view(&r.data[r.index]) },
		advance: r.advance,
	}
}

// Next returns the element under the cursor and moves past it.
func (c *Cursor[T]) Next() (T, bool) {
	var zero T
	if c.current == nil {
		return zero, false
	}
	v := c.current()
	if c.advance() == 0 {
		c.current, c.advance = nil, nil
	}
	return v, true
}

// Exhausted reports whether every element has been returned.
func (c *Cursor[T]) Exhausted() bool {
	return c.current == nil
}

// Find consumes elements until match returns true.
func (c *Cursor[T]) Find(match func(T) bool) (T, bool) {
	for v, ok := c.Next(); ok; v, ok = c.Next() {
		if match(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Seq drains the remaining elements as a range-over-func sequence.
func (c *Cursor[T]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		for v, ok := c.Next(); ok; v, ok = c.Next() {
			if !yield(v) {
				return
			}
		}
	}
}
