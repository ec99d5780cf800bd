package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *snapshot {
	snap := newSnapshot()
	snap.addField("pais", "id", "uuid", true)
	snap.addField("pais", "sigla", "string", false)
	snap.addField("estado", "id", "uuid", true)
	snap.addField("estado", "sigla", "string", false)
	snap.addField("estado", "pais", "uuid", false)
	snap.addField("cidade", "id", "uuid", true)
	snap.addField("cidade", "nome", "string", false)
	snap.addField("cidade", "codigo_ibge", "string", false)
	snap.addField("cidade", "estado", "uuid", false)
	snap.addField("bairro", "id", "uuid", true)
	snap.addField("bairro", "nome", "string", false)
	snap.addField("bairro", "cidade", "uuid", false)
	snap.addField("endereco_br", "id", "uuid", true)
	snap.addField("endereco_br", "localizacao", "geometry.Point", false)
	snap.addRelation("estado", "pais", "pais")
	snap.addRelation("cidade", "estado", "estado")
	snap.addRelation("bairro", "cidade", "cidade")
	snap.addRelation("endereco_br", "bairro", "bairro")
	return snap
}

func TestBuildSelectPlainColumns(t *testing.T) {
	plan, err := buildSelect(testSnapshot(), dialectPostgres, "cidade",
		[]string{"id", "nome"}, map[string]any{"codigo_ibge": map[string]any{"_eq": "3550308"}}, 1)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT t0."id" AS "id", t0."nome" AS "nome" FROM "cidade" t0 WHERE t0."codigo_ibge" = $1 LIMIT 1`,
		plan.sql)
	assert.Equal(t, []any{"3550308"}, plan.args)
}

func TestBuildSelectNestedPath(t *testing.T) {
	plan, err := buildSelect(testSnapshot(), dialectPostgres, "bairro",
		[]string{"id", "nome", "cidade.nome", "cidade.estado.sigla"},
		map[string]any{"cidade.codigo_ibge": "3550308"}, 0)
	require.NoError(t, err)

	assert.Contains(t, plan.sql, `LEFT JOIN "cidade" t1 ON t0."cidade" = t1."id"`)
	assert.Contains(t, plan.sql, `LEFT JOIN "estado" t2 ON t1."estado" = t2."id"`)
	assert.Contains(t, plan.sql, `t2."sigla" AS "cidade.estado.sigla"`)
	assert.Contains(t, plan.sql, `WHERE t1."codigo_ibge" = $1`)
	assert.NotContains(t, plan.sql, "LIMIT")
	assert.Equal(t, []any{"3550308"}, plan.args)
}

func TestBuildSelectSharesJoinAliases(t *testing.T) {
	// Two paths through the same relation must reuse one join.
	plan, err := buildSelect(testSnapshot(), dialectPostgres, "bairro",
		[]string{"cidade.nome", "cidade.codigo_ibge"}, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, countOccurrences(plan.sql, "LEFT JOIN"))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestBuildSelectInFilter(t *testing.T) {
	plan, err := buildSelect(testSnapshot(), dialectSQLite, "estado",
		[]string{"id"}, map[string]any{"sigla": map[string]any{"_in": []any{"SP", "RJ"}}}, 1)
	require.NoError(t, err)

	assert.Contains(t, plan.sql, `t0."sigla" IN (?, ?)`)
	assert.Equal(t, []any{"SP", "RJ"}, plan.args)
}

func TestBuildSelectRejectsNonRelationPath(t *testing.T) {
	_, err := buildSelect(testSnapshot(), dialectPostgres, "bairro",
		[]string{"nome.cidade"}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a relation")
}

func TestBuildSelectRejectsUnknownOperator(t *testing.T) {
	_, err := buildSelect(testSnapshot(), dialectPostgres, "bairro",
		[]string{"id"}, map[string]any{"nome": map[string]any{"_contains": "x"}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported filter operator")
}

func TestNest(t *testing.T) {
	item := nest(
		[]string{"id", "nome", "cidade.nome", "cidade.estado.sigla"},
		[]any{"b1", "Centro", "Campinas", "SP"},
	)

	assert.Equal(t, "b1", item["id"])
	cidade, ok := item["cidade"].(Item)
	require.True(t, ok)
	assert.Equal(t, "Campinas", cidade["nome"])
	estado, ok := cidade["estado"].(Item)
	require.True(t, ok)
	assert.Equal(t, "SP", estado["sigla"])
}

func TestDecodeValueJSONColumn(t *testing.T) {
	v := decodeValue("geometry.Point", []byte(`{"type":"Point","coordinates":[-46.63,-23.55]}`))
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Point", m["type"])
}

func TestDecodeValueTextBytes(t *testing.T) {
	assert.Equal(t, "Centro", decodeValue("string", []byte("Centro")))
	assert.Nil(t, decodeValue("string", nil))
}

func TestEncodeValueSerializesMaps(t *testing.T) {
	v, err := encodeValue("geometry.Point", map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, v.(string))

	plain, err := encodeValue("string", "Centro")
	require.NoError(t, err)
	assert.Equal(t, "Centro", plain)
}

func TestColumnTypes(t *testing.T) {
	assert.Equal(t, "JSONB", dialectPostgres.columnType("geometry.Point"))
	assert.Equal(t, "TEXT", dialectSQLite.columnType("geometry.Point"))
	assert.Equal(t, "BIGINT", dialectPostgres.columnType("integer"))
	assert.Equal(t, "TEXT", dialectPostgres.columnType("uuid"))
}
