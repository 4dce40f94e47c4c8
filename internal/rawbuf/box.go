// Package rawbuf owns memory handed out by an allocator the caller does not
// control, and guarantees it goes back through that allocator's free
// function exactly once.
package rawbuf

import (
	"runtime"
	"sync"
)

// noCopy trips go vet's copylocks check when a Box is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Box is the single owner of one allocation. Callers hold it by pointer and
// release it with defer; a runtime cleanup releases it if they forget.
type Box[T any] struct {
	_ noCopy

	ptr  *T
	free func(*T)

	once    *sync.Once
	cleanup runtime.Cleanup
}

// Wrap takes ownership of p. free is called with p exactly once. Wrapping a
// nil pointer is a programming error and panics.
func Wrap[T any](p *T, free func(*T)) *Box[T] {
	if p == nil {
		panic("rawbuf: Wrap called with a nil pointer")
	}
	if free == nil {
		free = func(*T) {}
	}
	once := new(sync.Once)
	b := &Box[T]{ptr: p, free: free, once: once}
	b.cleanup = runtime.AddCleanup(b, func(r *releaser[T]) { r.run() }, &releaser[T]{ptr: p, free: free, once: once})
	return b
}

// releaser carries what the cleanup needs without referencing the Box itself.
type releaser[T any] struct {
	ptr  *T
	free func(*T)
	once *sync.Once
}

func (r *releaser[T]) run() {
	r.once.Do(func() { r.free(r.ptr) })
}

// Get returns the owned value. It must not be used after Release.
func (b *Box[T]) Get() *T {
	return b.ptr
}

// Release returns the allocation to its allocator. Further calls do nothing.
func (b *Box[T]) Release() {
	b.once.Do(func() {
		b.cleanup.Stop()
		b.free(b.ptr)
		b.ptr = nil
	})
}

// Released reports whether Release has run.
func (b *Box[T]) Released() bool {
	return b.ptr == nil
}
