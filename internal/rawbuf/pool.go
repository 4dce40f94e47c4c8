package rawbuf

import "sync"

// Pool hands out boxed values recycled through a sync.Pool. Every box it
// returns frees back into the pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T)
}

// NewPool builds a pool. newFn allocates a fresh value; reset, if non-nil,
// scrubs a value before it goes back into the pool.
func NewPool[T any](newFn func() *T, reset func(*T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any { return newFn() }
	return p
}

// Alloc returns an owned value from the pool.
func (p *Pool[T]) Alloc() *Box[T] {
	return Wrap(p.pool.Get().(*T), p.put)
}

func (p *Pool[T]) put(v *T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.pool.Put(v)
}
