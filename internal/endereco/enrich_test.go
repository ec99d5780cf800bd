package endereco

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

const seLookupPayload = `{
	"cep": "01001-000",
	"logradouro": "Praça da Sé",
	"complemento": "lado ímpar",
	"bairro": "Sé",
	"localidade": "São Paulo",
	"uf": "SP",
	"ibge": "3550308",
	"gia": "1004",
	"ddd": "11",
	"siafi": "7107"
}`

func TestEnrichRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	enricher := NewEnricher(NewResolver(store))

	payload, err := enricher.Enrich(ctx, platform.Item{
		"numero":       "100",
		FieldPesquisaCep: seLookupPayload,
	})
	require.NoError(t, err)

	assert.Equal(t, "01001-000", payload[FieldCep])
	assert.Equal(t, "Praça da Sé", payload[FieldLogradouro])
	assert.Equal(t, "100", payload["numero"])

	bairroID, ok := payload[FieldBairro].(string)
	require.True(t, ok)
	require.NotEmpty(t, bairroID)

	row, err := store.Items("bairro").ReadOne(ctx, bairroID, []string{
		"nome", "cidade.nome", "cidade.codigo_ibge", "cidade.estado.sigla",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sé", row["nome"])
	cidade := row["cidade"].(platform.Item)
	assert.Equal(t, "São Paulo", cidade["nome"])
	assert.Equal(t, "3550308", cidade["codigo_ibge"])
	assert.Equal(t, "SP", cidade["estado"].(platform.Item)["sigla"])
}

func TestEnrichReusesExistingNeighborhood(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	enricher := NewEnricher(NewResolver(store))

	existing, err := store.Items("bairro").CreateOne(ctx, platform.Item{
		"nome": "Sé",
		"cidade": map[string]any{
			"nome":        "São Paulo",
			"codigo_ibge": "3550308",
			"estado":      stateID(t, store, "SP"),
		},
	})
	require.NoError(t, err)

	payload, err := enricher.Enrich(ctx, platform.Item{FieldPesquisaCep: seLookupPayload})
	require.NoError(t, err)
	assert.Equal(t, existing, payload[FieldBairro])
}

func TestEnrichPassThrough(t *testing.T) {
	enricher := NewEnricher(NewResolver(nil))

	in := platform.Item{"numero": "42", "complemento": "fundos"}
	out, err := enricher.Enrich(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnrichRejectsMalformedPayload(t *testing.T) {
	enricher := NewEnricher(NewResolver(nil))

	_, err := enricher.Enrich(context.Background(), platform.Item{
		FieldPesquisaCep: "{not json",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse pesquisa_cep")
}
