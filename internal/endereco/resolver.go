package endereco

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// Resolver finds or lazily creates the neighborhood a lookup result points
// at. Reference rows are create-if-absent only; concurrent submissions for
// the same missing neighborhood can race and both create one, which the
// caller accepts instead of locking.
type Resolver struct {
	store platform.Store
}

// NewResolver builds a resolver over the given store.
func NewResolver(store platform.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the id of the neighborhood matching the given names,
// creating the neighborhood (and its city, when absent) as needed.
// cidadeIBGE is the official numeric city code from the lookup provider.
func (r *Resolver) Resolve(ctx context.Context, bairro, cidadeIBGE, cidade, uf string) (string, error) {
	candidates, err := r.candidatesByIBGE(ctx, cidadeIBGE)
	if err != nil {
		return "", err
	}
	if id := matchBairro(candidates, bairro, cidade, uf); id != "" {
		return id, nil
	}
	return r.createBairro(ctx, bairro, cidadeIBGE, cidade, uf)
}

// candidatesByIBGE loads every stored neighborhood of the city with the
// given official code, with the city and state names needed for matching.
func (r *Resolver) candidatesByIBGE(ctx context.Context, cidadeIBGE string) ([]platform.Item, error) {
	rows, err := r.store.Items("bairro").Query(ctx, platform.Query{
		Fields: []string{
			"id",
			"nome",
			"cidade.id",
			"cidade.nome",
			"cidade.codigo_ibge",
			"cidade.estado.id",
			"cidade.estado.nome",
			"cidade.estado.sigla",
		},
		Filter: map[string]any{
			"cidade.codigo_ibge": map[string]any{"_eq": cidadeIBGE},
		},
	})
	if err != nil {
		if platform.IsNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "endereco: query neighborhoods")
	}
	return rows, nil
}

// matchBairro scans candidates for a normalized-name match. The city input
// may arrive as a name or as the official code, the state as a name or a
// two-letter sigla; either form matches.
func matchBairro(candidates []platform.Item, bairro, cidade, uf string) string {
	bairroN, cidadeN, ufN := normalize(bairro), normalize(cidade), normalize(uf)

	for _, cand := range candidates {
		nome, _ := cand["nome"].(string)
		cid, _ := cand["cidade"].(platform.Item)
		if normalize(nome) != bairroN || cid == nil {
			continue
		}
		cidNome, _ := cid["nome"].(string)
		cidIBGE, _ := cid["codigo_ibge"].(string)
		if normalize(cidNome) != cidadeN && cidIBGE != cidadeN {
			continue
		}
		est, _ := cid["estado"].(platform.Item)
		if est == nil {
			continue
		}
		estNome, _ := est["nome"].(string)
		estSigla, _ := est["sigla"].(string)
		if normalize(estNome) != ufN && normalize(estSigla) != ufN {
			continue
		}
		if id, ok := cand["id"].(string); ok {
			return id
		}
	}
	return ""
}

// createBairro inserts the missing neighborhood. When the city is also
// missing it is created in the same operation as a nested record, with its
// state resolved by sigla first.
func (r *Resolver) createBairro(ctx context.Context, bairro, cidadeIBGE, cidade, uf string) (string, error) {
	cidadeID, err := r.lookupID(ctx, "cidade", "codigo_ibge", cidadeIBGE)
	if err != nil {
		return "", err
	}

	var cidadeRef any = cidadeID
	if cidadeID == "" {
		estadoID, err := r.lookupID(ctx, "estado", "sigla", uf)
		if err != nil {
			return "", err
		}
		var estadoRef any
		if estadoID != "" {
			estadoRef = estadoID
		}
		cidadeRef = platform.Item{
			"nome":        cidade,
			"codigo_ibge": cidadeIBGE,
			"estado":      estadoRef,
		}
	}

	id, err := r.store.Items("bairro").CreateOne(ctx, platform.Item{
		"nome":   bairro,
		"cidade": cidadeRef,
	})
	if err != nil {
		return "", eris.Wrapf(err, "endereco: create neighborhood %q", bairro)
	}
	zap.L().Named("resolver").Info("neighborhood created",
		zap.String("bairro", bairro),
		zap.String("cidade", cidade),
		zap.String("codigo_ibge", cidadeIBGE))
	return id, nil
}

func (r *Resolver) lookupID(ctx context.Context, collection, field, value string) (string, error) {
	rows, err := r.store.Items(collection).Query(ctx, platform.Query{
		Fields: []string{"id"},
		Filter: map[string]any{field: map[string]any{"_in": []any{value}}},
		Limit:  1,
	})
	if err != nil {
		if platform.IsNotFound(err) {
			return "", nil
		}
		return "", eris.Wrapf(err, "endereco: lookup %s by %s", collection, field)
	}
	if len(rows) == 0 {
		return "", nil
	}
	id, _ := rows[0]["id"].(string)
	return id, nil
}
