package endereco

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
	"github.com/devix-tecnologia/directus-extension-endereco-br/pkg/viacep"
)

// Address payload fields the pipeline reads and writes.
const (
	FieldPesquisaCep = "pesquisa_cep"
	FieldCep         = "cep"
	FieldLogradouro  = "logradouro"
	FieldBairro      = "bairro"
	FieldLocalizacao = "localizacao"
)

// Enricher rewrites address submissions before they are persisted. A
// submission carrying a serialized CEP lookup in pesquisa_cep gets its cep,
// logradouro and bairro reference filled in from the lookup; anything else
// passes through untouched.
type Enricher struct {
	resolver *Resolver
}

// NewEnricher builds an enricher resolving neighborhoods through the
// given resolver.
func NewEnricher(resolver *Resolver) *Enricher {
	return &Enricher{resolver: resolver}
}

// Enrich transforms one create/update payload. A malformed pesquisa_cep
// value or a resolution failure is a hard error: the write must be rejected
// rather than persist a partially resolved address.
func (e *Enricher) Enrich(ctx context.Context, payload platform.Item) (platform.Item, error) {
	raw, ok := payload[FieldPesquisaCep].(string)
	if !ok || raw == "" {
		return payload, nil
	}

	var dados viacep.Result
	if err := json.Unmarshal([]byte(raw), &dados); err != nil {
		return nil, eris.Wrap(err, "endereco: parse pesquisa_cep payload")
	}

	payload[FieldCep] = dados.Cep
	payload[FieldLogradouro] = dados.Logradouro

	bairroID, err := e.resolver.Resolve(ctx, dados.Bairro, dados.IBGE, dados.Localidade, dados.UF)
	if err != nil {
		return nil, err
	}
	payload[FieldBairro] = bairroID
	return payload, nil
}
