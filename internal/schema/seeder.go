package schema

import (
	"context"

	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// Seeder inserts reference countries and their states, keyed by sigla, on
// first run. Rows present are left untouched; per-row failures are logged
// and skipped.
type Seeder struct {
	store     platform.Store
	countries []SeedCountry
}

// NewSeeder builds a seeder over the given store.
func NewSeeder(store platform.Store, countries []SeedCountry) *Seeder {
	return &Seeder{store: store, countries: countries}
}

// Run seeds all countries and states, returning how many of each were
// inserted. Best-effort: it never returns an error.
func (s *Seeder) Run(ctx context.Context) (countriesSeeded, statesSeeded int) {
	log := zap.L().Named("seeder")
	paisItems := s.store.Items("pais")
	estadoItems := s.store.Items("estado")

	for _, country := range s.countries {
		paisID, err := s.ensureCountry(ctx, paisItems, country)
		if err != nil {
			log.Error("seed country failed", zap.String("sigla", country.Sigla), zap.Error(err))
			continue
		}
		if paisID.created {
			countriesSeeded++
			log.Info("country seeded", zap.String("sigla", country.Sigla))
		}

		for _, estado := range country.Estados {
			created, err := s.ensureState(ctx, estadoItems, estado, paisID.id)
			if err != nil {
				log.Error("seed state failed", zap.String("sigla", estado.Sigla), zap.Error(err))
				continue
			}
			if created {
				statesSeeded++
			}
		}
	}
	return countriesSeeded, statesSeeded
}

type ensured struct {
	id      string
	created bool
}

func (s *Seeder) ensureCountry(ctx context.Context, items platform.ItemService, country SeedCountry) (ensured, error) {
	rows, err := items.Query(ctx, platform.Query{
		Filter: map[string]any{"sigla": map[string]any{"_eq": country.Sigla}},
		Fields: []string{"id"},
		Limit:  1,
	})
	if err != nil {
		return ensured{}, err
	}
	if len(rows) > 0 {
		id, _ := rows[0]["id"].(string)
		return ensured{id: id}, nil
	}

	id, err := items.CreateOne(ctx, platform.Item{
		"nome":   country.Nome,
		"sigla":  country.Sigla,
		"status": "published",
	})
	if err != nil {
		return ensured{}, err
	}
	return ensured{id: id, created: true}, nil
}

func (s *Seeder) ensureState(ctx context.Context, items platform.ItemService, estado SeedState, paisID string) (bool, error) {
	rows, err := items.Query(ctx, platform.Query{
		Filter: map[string]any{
			"sigla": map[string]any{"_eq": estado.Sigla},
			"pais":  map[string]any{"_eq": paisID},
		},
		Fields: []string{"id"},
		Limit:  1,
	})
	if err != nil {
		return false, err
	}
	if len(rows) > 0 {
		return false, nil
	}

	_, err = items.CreateOne(ctx, platform.Item{
		"nome":        estado.Nome,
		"sigla":       estado.Sigla,
		"codigo_ibge": estado.CodigoIBGE,
		"pais":        paisID,
		"status":      "published",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
