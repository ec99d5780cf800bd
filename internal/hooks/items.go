package hooks

import (
	"context"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// Items wraps one collection's writes with the bus lifecycle: filters run
// before the store commit, actions fire after it.
type Items struct {
	bus        *Bus
	store      platform.Store
	collection string
}

// NewItems builds a bus-aware item writer for the collection.
func NewItems(bus *Bus, store platform.Store, collection string) *Items {
	return &Items{bus: bus, store: store, collection: collection}
}

// Create filters the payload, persists it, and emits the create action.
func (s *Items) Create(ctx context.Context, payload platform.Item) (string, error) {
	payload, err := s.bus.ApplyFilters(ctx, s.collection+".items.create", payload)
	if err != nil {
		return "", err
	}
	id, err := s.store.Items(s.collection).CreateOne(ctx, payload)
	if err != nil {
		return "", err
	}
	s.bus.EmitAsync(ctx, s.collection+".items.create", Event{
		Keys:    []string{id},
		Payload: payload,
	})
	return id, nil
}

// Update filters the patch, applies it, and emits the update action.
func (s *Items) Update(ctx context.Context, id string, patch platform.Item) error {
	patch, err := s.bus.ApplyFilters(ctx, s.collection+".items.update", patch)
	if err != nil {
		return err
	}
	if err := s.store.Items(s.collection).UpdateOne(ctx, id, patch); err != nil {
		return err
	}
	s.bus.EmitAsync(ctx, s.collection+".items.update", Event{
		Keys:    []string{id},
		Payload: patch,
	})
	return nil
}

// Read proxies a read through the underlying store.
func (s *Items) Read(ctx context.Context, id string, fields []string) (platform.Item, error) {
	return s.store.Items(s.collection).ReadOne(ctx, id, fields)
}
