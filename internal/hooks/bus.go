// Package hooks provides the event bus the address pipeline attaches to:
// pre-commit filters that may rewrite or reject a payload, and post-commit
// actions that run detached from the request that triggered them.
package hooks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// FilterFunc transforms a payload before persistence. An error aborts the
// whole write.
type FilterFunc func(ctx context.Context, payload platform.Item) (platform.Item, error)

// Event carries what a post-commit action needs: the written keys and the
// payload as submitted (after filters).
type Event struct {
	Keys    []string
	Payload platform.Item
}

// ActionFunc reacts to a committed write. It has no way to fail the write;
// problems are its own to log.
type ActionFunc func(ctx context.Context, event Event)

// Bus routes named events to registered filters and actions.
type Bus struct {
	mu      sync.RWMutex
	filters map[string][]FilterFunc
	actions map[string][]ActionFunc
	wg      sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		filters: map[string][]FilterFunc{},
		actions: map[string][]ActionFunc{},
	}
}

// Filter registers a pre-commit filter for the named event.
func (b *Bus) Filter(event string, fn FilterFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters[event] = append(b.filters[event], fn)
}

// Action registers a post-commit action for the named event.
func (b *Bus) Action(event string, fn ActionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions[event] = append(b.actions[event], fn)
}

// ApplyFilters chains every registered filter over the payload, in
// registration order. The first error wins and aborts the chain.
func (b *Bus) ApplyFilters(ctx context.Context, event string, payload platform.Item) (platform.Item, error) {
	b.mu.RLock()
	fns := b.filters[event]
	b.mu.RUnlock()

	var err error
	for _, fn := range fns {
		payload, err = fn(ctx, payload)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// EmitAsync runs every registered action for the event on its own
// goroutine, detached from the caller's cancellation. Panicking actions are
// logged and swallowed.
func (b *Bus) EmitAsync(ctx context.Context, event string, ev Event) {
	b.mu.RLock()
	fns := b.actions[event]
	b.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, fn := range fns {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					zap.L().Named("hooks").Error("action panicked",
						zap.String("event", event), zap.Any("panic", r))
				}
			}()
			fn(detached, ev)
		}()
	}
}

// Drain waits for every in-flight action to finish. Called on shutdown.
func (b *Bus) Drain() {
	b.wg.Wait()
}
