// Package reactive holds observable values that push snapshots to their subscribers.
package reactive

import (
	"sync"
	"sync/atomic"
)

// Listener receives a snapshot after every change.
type Listener[T any] func(T)

type subscription[T any] struct {
	id     uint64
	fn     Listener[T]
	active atomic.Bool
}

type delivery[T any] struct {
	subs  []*subscription[T]
	value T
}

// Value is a mutable value with an ordered listener list.
//
// Changes are delivered in the order they were applied. Whichever goroutine
// finds the queue idle drains it, so a listener may read or write the Value it
// is subscribed to; a nested write is delivered after the current callback
// returns.
type Value[T any] struct {
	mu        sync.Mutex
	current   T
	nextID    uint64
	listeners []*subscription[T]
	pending   []delivery[T]
	draining  bool
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{current: initial}
}

// Get returns the current snapshot.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and notifies every subscriber.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	v.current = next
	v.enqueueLocked(append([]*subscription[T](nil), v.listeners...), next)
	v.drainLocked()
}

// Update applies fn to the current value atomically and notifies subscribers
// with the result.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	next := fn(v.current)
	v.current = next
	v.enqueueLocked(append([]*subscription[T](nil), v.listeners...), next)
	v.drainLocked()
	return next
}

// Subscribe registers fn, calls it once with the current value and returns a
// func that removes the subscription. The returned func is safe to call more
// than once.
func (v *Value[T]) Subscribe(fn Listener[T]) func() {
	if fn == nil {
		return func() {}
	}
	sub := &subscription[T]{fn: fn}
	sub.active.Store(true)

	v.mu.Lock()
	v.nextID++
	sub.id = v.nextID
	v.listeners = append(v.listeners, sub)
	v.enqueueLocked([]*subscription[T]{sub}, v.current)
	v.drainLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, s := range v.listeners {
				if s.id == sub.id {
					v.listeners = append(v.listeners[:i], v.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Subscribers reports how many listeners are registered.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners)
}

func (v *Value[T]) enqueueLocked(subs []*subscription[T], value T) {
	v.pending = append(v.pending, delivery[T]{subs: subs, value: value})
}

// drainLocked is entered with mu held and returns with it released. Only one
// goroutine drains at a time; others leave their delivery queued for it.
func (v *Value[T]) drainLocked() {
	if v.draining {
		v.mu.Unlock()
		return
	}
	v.draining = true
	defer func() {
		if r := recover(); r != nil {
			v.mu.Lock()
			v.pending = nil
			v.draining = false
			v.mu.Unlock()
			panic(r)
		}
	}()
	for len(v.pending) > 0 {
		next := v.pending[0]
		v.pending[0] = delivery[T]{}
		v.pending = v.pending[1:]
		v.mu.Unlock()
		for _, sub := range next.subs {
			if sub.active.Load() {
				sub.fn(next.value)
			}
		}
		v.mu.Lock()
	}
	v.pending = nil
	v.draining = false
	v.mu.Unlock()
}
