// Package override composes a recipe's implementation, a struct of function
// fields, from a base constructor and any number of wrapping layers.
//
// Layers run outermost-last: with layers [A, B] a call enters B, whose
// "original" is A, whose "original" is the base. The base receives a pointer
// to the final composed value, so a base operation calling self.X always
// reaches the outermost X.
//
// A nil function field means the operation is disabled. Callers check for
// nil before registering routes for it.
package override

import "sync"

// Layer wraps an implementation. Fields it leaves untouched keep the value
// from original.
type Layer[T any] func(original T) T

// Builder accumulates layers until Build is called.
type Builder[T any] struct {
	base   func(self *T) T
	layers []Layer[T]
	self   *T

	mu    sync.Mutex
	built bool
}

// New starts a builder from base.
func New[T any](base func(self *T) T) *Builder[T] {
	return &Builder[T]{base: base, self: new(T)}
}

// Override appends layers; the last one appended ends up outermost. Nil
// layers are skipped. Calling Override after Build panics because the
// composed value has already been handed out.
func (b *Builder[T]) Override(layers ...Layer[T]) *Builder[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		panic("override: Override called after Build")
	}
	for _, l := range layers {
		if l != nil {
			b.layers = append(b.layers, l)
		}
	}
	return b
}

// Self is the pointer Build will fill. Layers that need to call sibling
// operations on the composed value may capture it.
func (b *Builder[T]) Self() *T { return b.self }

// Build composes the base with every layer. The first call does the work;
// later calls return the same pointer.
func (b *Builder[T]) Build() *T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return b.self
	}

	impl := b.base(b.self)
	for _, l := range b.layers {
		impl = l(impl)
	}
	*b.self = impl
	b.built = true
	return b.self
}
