package remote

import (
	"context"
	"sync"
)

const defaultBuffer = 64

// Broker fans events out to in-process subscribers. Backends without a
// native pub/sub primitive publish through it after every write.
type Broker struct {
	mu     sync.Mutex
	next   uint64
	subs   map[string]map[uint64]chan Event
	buffer int
}

// NewBroker creates a broker. Each subscriber gets a buffer of the given
// size; events to a full subscriber are dropped.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{subs: make(map[string]map[uint64]chan Event), buffer: buffer}
}

// Publish delivers ev to every subscriber of channel and returns how many
// received it.
func (b *Broker) Publish(channel string, ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs[channel] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribe returns a stream for channel that closes when ctx ends.
func (b *Broker) Subscribe(ctx context.Context, channel string) <-chan Event {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[uint64]chan Event)
	}
	b.subs[channel][id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, live := b.subs[channel][id]; !live {
			return // already closed by Close
		}
		delete(b.subs[channel], id)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		close(ch)
	}()

	return ch
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, channel)
	}
}

// Subscribers returns the number of live subscriptions on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[channel])
}
