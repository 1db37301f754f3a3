package notification

import (
	"context"
	"errors"
	"sync"

	"disputedesk/internal/models"
)

var ErrBusClosed = errors.New("event bus closed")

type memorySub struct {
	ch   chan Event
	done chan struct{}
}

// MemoryBus fans events out inside one process. The Redis and Postgres
// buses use it to deliver what they receive.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[models.AlertCategory]map[*memorySub]struct{}
	buffer int
	closed bool
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{
		subs:   map[models.AlertCategory]map[*memorySub]struct{}{},
		buffer: buffer,
	}
}

// Publish never blocks. Subscribers whose buffer is full are dropped.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for sub := range b.subs[event.Category] {
		select {
		case sub.ch <- event:
		default:
			b.removeLocked(event.Category, sub)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, category models.AlertCategory) (<-chan Event, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrBusClosed
	}
	sub := &memorySub{ch: make(chan Event, b.buffer), done: make(chan struct{})}
	if b.subs[category] == nil {
		b.subs[category] = map[*memorySub]struct{}{}
	}
	b.subs[category][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(category, sub)
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel, nil
}

// Subscribers counts live subscriptions of a category.
func (b *MemoryBus) Subscribers(category models.AlertCategory) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[category])
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for category, subs := range b.subs {
		for sub := range subs {
			b.removeLocked(category, sub)
		}
	}
	return nil
}

func (b *MemoryBus) removeLocked(category models.AlertCategory, sub *memorySub) {
	if _, ok := b.subs[category][sub]; !ok {
		return
	}
	delete(b.subs[category], sub)
	close(sub.ch)
	close(sub.done)
}
