// Package events is a typed in-process publish/subscribe bus used for
// loosely coupled signalling between components (notifications, collection
// changes, extension broadcasts).
package events

import (
	"sync"
	"sync/atomic"
)

// Bus holds the subscribers of every topic.
type Bus struct {
	mu     sync.RWMutex
	nextID atomic.Uint64
	subs   map[string]map[uint64]func(any)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]func(any))}
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns the process-wide bus.
func Default() *Bus {
	defaultOnce.Do(func() { defaultBus = NewBus() })
	return defaultBus
}

// Topic is a named channel carrying payloads of type T.
type Topic[T any] struct {
	Name string
}

// NewTopic declares a topic.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{Name: name}
}

// Subscribe registers fn on topic t and returns the function that removes
// it again. Handlers run synchronously on the publisher's goroutine and
// must not block.
func Subscribe[T any](b *Bus, t Topic[T], fn func(T)) (unsubscribe func()) {
	id := b.nextID.Add(1)

	b.mu.Lock()
	m, ok := b.subs[t.Name]
	if !ok {
		m = make(map[uint64]func(any))
		b.subs[t.Name] = m
	}
	m[id] = func(v any) { fn(v.(T)) }
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[t.Name], id)
			if len(b.subs[t.Name]) == 0 {
				delete(b.subs, t.Name)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber of t. A nil bus drops v.
func Publish[T any](b *Bus, t Topic[T], v T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]func(any), 0, len(b.subs[t.Name]))
	for _, h := range b.subs[t.Name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(v)
	}
}

// Subscribers returns the number of handlers on a topic.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
