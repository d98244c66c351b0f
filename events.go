package main

import (
	"context"
	"sync"
)

type Event string

const (
	EventLoggedIn       Event = "logged_in"
	EventLoggedOut      Event = "logged_out"
	EventPostCreated    Event = "post_created"
	EventPostDeleted    Event = "post_deleted"
	EventCommentCreated Event = "comment_created"
)

// Bus delivers mutation events to subscribers synchronously, in
// subscription order, on the publishing goroutine.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(context.Context, Event)
	order    []int
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]func(context.Context, Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(context.Context, Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i:i], b.order[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	fns := make([]func(context.Context, Event), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, e)
	}
}
