// Package bus provides an ownerless in-process broadcast channel.
//
// Any component may publish or subscribe without coordinating with others.
// Every published message is stamped with a bus-wide sequence number, which
// lets subscribers order messages that reach them through different paths.
package bus

import (
	"sync"
	"sync/atomic"
)

// Envelope wraps a published message with its sequence number.
type Envelope[T any] struct {
	Seq uint64
	Msg T
}

// Handler receives published messages. Handlers run in the publisher's
// goroutine and must not block.
type Handler[T any] func(Envelope[T])

// Bus is a multi-publisher, multi-subscriber broadcast channel.
type Bus[T any] struct {
	seq atomic.Uint64

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Handler[T]
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]Handler[T])}
}

// Subscribe registers h and returns a function that removes it. The returned
// function is safe to call more than once.
func (b *Bus[T]) Subscribe(h Handler[T]) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers msg to every current subscriber and returns its sequence number.
func (b *Bus[T]) Publish(msg T) uint64 {
	env := Envelope[T]{Seq: b.seq.Add(1), Msg: msg}

	b.mu.RLock()
	handlers := make([]Handler[T], 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	// Deliver outside the lock so handlers may publish or unsubscribe.
	for _, h := range handlers {
		h(env)
	}
	return env.Seq
}

// Subscribers returns the number of registered handlers.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
