// Package watch publishes the latest value of a state machine to any number
// of readers without giving them a way to mutate it.
package watch

import "sync"

// Value holds the most recent T. Subscribers receive every change in order
// unless they fall behind, in which case intermediate values are dropped and
// the newest one is kept.
type Value[T any] struct {
	mu   sync.RWMutex
	cur  T
	subs map[int]chan T
	next int
}

// New returns a Value seeded with initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[int]chan T)}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Store replaces the current value and notifies subscribers.
func (v *Value[T]) Store(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.subs {
		select {
		case ch <- val:
		default:
			// slow reader: keep only the newest value
			select {
			case <-ch:
			default:
			}
			ch <- val
		}
	}
}

// Subscribe returns a channel that first yields the current value and then
// each subsequent change. The returned func unsubscribes and closes the
// channel; it is safe to call more than once.
func (v *Value[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = ch
	ch <- v.cur
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			close(ch)
			v.mu.Unlock()
		})
	}
}
