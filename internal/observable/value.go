// Package observable provides a process-wide value holder that notifies
// subscribers when the value changes.
package observable

import "sync"

// Value is safe for concurrent use. Subscribers are called synchronously, in
// subscription order, after the lock is released, so they may read the value
// again or subscribe further without deadlocking.
type Value[T comparable] struct {
	mu     sync.RWMutex
	value  T
	nextID int
	subs   []subscriber[T]
}

type subscriber[T comparable] struct {
	id int
	fn func(T)
}

func New[T comparable](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores next and reports whether it differed from the previous value.
// Subscribers only hear about actual changes.
func (v *Value[T]) Set(next T) bool {
	return v.Update(func(T) (T, bool) { return next, true })
}

// Update applies fn under the lock. fn returns the new value and whether it
// should be applied; the call reports whether the stored value changed.
func (v *Value[T]) Update(fn func(current T) (T, bool)) bool {
	v.mu.Lock()
	next, apply := fn(v.value)
	if !apply || next == v.value {
		v.mu.Unlock()
		return false
	}
	v.value = next
	subs := make([]subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
	return true
}

// Subscribe registers fn and returns a function that removes it.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, s := range v.subs {
				if s.id == id {
					v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
					return
				}
			}
		})
	}
}
