// Package notify delivers adapter results to a single registered listener.
//
// A Notifier holds at most one listener. Setting a new listener replaces the
// previous one. Delivery is a direct synchronous call from the caller's
// goroutine: no buffering, no retry, no goroutines. Results from one producer
// therefore reach the listener in the order the producer completed them.
package notify

import "sync/atomic"

// Listener receives one result.
type Listener[T any] func(T)

// Notifier is a single-subscriber call-through.
// The zero value is ready to use and has no listener.
type Notifier[T any] struct {
	listener atomic.Pointer[Listener[T]]
}

// New creates a notifier with an initial listener (nil allowed).
func New[T any](l Listener[T]) *Notifier[T] {
	n := &Notifier[T]{}
	n.Set(l)
	return n
}

// Set registers l, replacing any previous listener. A nil l detaches.
func (n *Notifier[T]) Set(l Listener[T]) {
	if l == nil {
		n.listener.Store(nil)
		return
	}
	n.listener.Store(&l)
}

// Detach removes the current listener.
func (n *Notifier[T]) Detach() {
	n.listener.Store(nil)
}

// HasListener reports whether a listener is registered.
func (n *Notifier[T]) HasListener() bool {
	return n.listener.Load() != nil
}

// Notify calls the current listener with v. It reports whether a listener
// was called.
func (n *Notifier[T]) Notify(v T) bool {
	l := n.listener.Load()
	if l == nil {
		return false
	}
	(*l)(v)
	return true
}
