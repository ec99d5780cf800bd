package hooks

import (
	"context"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/endereco"
)

// RegisterAddress attaches the address pipeline to the bus: enrichment as a
// pre-commit filter on create and update, geocoding as a post-commit action
// on both.
func RegisterAddress(bus *Bus, enricher *endereco.Enricher, dispatcher *endereco.Dispatcher) {
	bus.Filter("endereco_br.items.create", enricher.Enrich)
	bus.Filter("endereco_br.items.update", enricher.Enrich)

	bus.Action("endereco_br.items.create", func(ctx context.Context, ev Event) {
		for _, id := range ev.Keys {
			dispatcher.AfterCreate(ctx, id)
		}
	})
	bus.Action("endereco_br.items.update", func(ctx context.Context, ev Event) {
		dispatcher.AfterUpdate(ctx, ev.Keys, ev.Payload)
	})
}
