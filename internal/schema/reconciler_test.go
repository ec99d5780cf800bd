package schema

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func loadTestDescriptor(t *testing.T) (*Descriptor, []SeedCountry) {
	t.Helper()
	desc, err := LoadDescriptor()
	require.NoError(t, err)
	seed, err := LoadSeed()
	require.NoError(t, err)
	return desc, seed
}

func TestRunFromEmpty(t *testing.T) {
	desc, seed := loadTestDescriptor(t)
	store := newFakeStore()

	summary, err := NewReconciler(store, desc, seed).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(desc.Collections), summary.CollectionsCreated)
	assert.Equal(t, len(desc.Relations), summary.RelationsCreated)
	assert.Equal(t, 1, summary.CountriesSeeded)
	assert.Equal(t, 27, summary.StatesSeeded)
	assert.Empty(t, summary.SkippedCollections)
	assert.Equal(t, 1, store.refreshes)

	// The folder comes first, then parents before children.
	order := map[string]int{}
	for i, name := range store.createdOrder {
		order[name] = i
	}
	assert.Equal(t, 0, order["enderecos"])
	assert.Less(t, order["pais"], order["estado"])
	assert.Less(t, order["estado"], order["cidade"])
	assert.Less(t, order["cidade"], order["bairro"])
	assert.Less(t, order["bairro"], order["endereco_br"])
}

func TestRunIdempotent(t *testing.T) {
	desc, seed := loadTestDescriptor(t)
	store := newFakeStore()
	rec := NewReconciler(store, desc, seed)

	first, err := rec.Run(context.Background())
	require.NoError(t, err)
	require.Positive(t, first.CollectionsCreated)

	collections := len(store.collections)
	relations := len(store.relations)
	countries := len(store.items["pais"])
	states := len(store.items["estado"])

	second, err := rec.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.CollectionsCreated)
	assert.Zero(t, second.FieldsCreated)
	assert.Zero(t, second.RelationsCreated)
	assert.Zero(t, second.CountriesSeeded)
	assert.Zero(t, second.StatesSeeded)

	assert.Equal(t, collections, len(store.collections))
	assert.Equal(t, relations, len(store.relations))
	assert.Equal(t, countries, len(store.items["pais"]))
	assert.Equal(t, states, len(store.items["estado"]))
}

func TestRunBackfillsMissingFields(t *testing.T) {
	desc, seed := loadTestDescriptor(t)
	store := newFakeStore()

	// Pre-existing pais collection carrying only its identifier.
	store.collections = append(store.collections, platform.Collection{Collection: "pais"})
	store.fields["pais"] = []platform.Field{{Collection: "pais", Field: "id", Type: "uuid"}}

	summary, err := NewReconciler(store, desc, seed).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(desc.Collections)-1, summary.CollectionsCreated)
	want := map[string]bool{}
	for _, f := range desc.FieldsOf("pais") {
		want[f.Field] = true
	}
	got := map[string]bool{}
	for _, f := range store.fields["pais"] {
		got[f.Field] = true
	}
	assert.Equal(t, want, got)
}

func TestRunContinuesPastCreateFailure(t *testing.T) {
	desc, seed := loadTestDescriptor(t)
	store := newFakeStore()
	store.failCreateCollection["estado"] = eris.New("permission denied")

	summary, err := NewReconciler(store, desc, seed).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(desc.Collections)-1, summary.CollectionsCreated)
	assert.False(t, store.hasCollection("estado"))
	assert.True(t, store.hasCollection("cidade"))
}

func TestCheck(t *testing.T) {
	desc, seed := loadTestDescriptor(t)
	store := newFakeStore()
	rec := NewReconciler(store, desc, seed)

	present, total, err := rec.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, present)
	assert.Equal(t, len(desc.Collections), total)

	_, err = rec.Run(context.Background())
	require.NoError(t, err)

	present, total, err = rec.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, present)
}

func col(name, group string) platform.Collection {
	return platform.Collection{Collection: name, Meta: platform.CollectionMeta{Group: group}}
}

func names(cols []platform.Collection) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Collection
	}
	return out
}

func TestPlanOrder(t *testing.T) {
	tests := []struct {
		name        string
		collections []platform.Collection
		existing    map[string]bool
		wantOrder   []string
		wantSkipped []string
	}{
		{
			name:        "child declared before parent",
			collections: []platform.Collection{col("a", "b"), col("b", "")},
			wantOrder:   []string{"b", "a"},
		},
		{
			name:        "ready collections keep declaration order",
			collections: []platform.Collection{col("x", ""), col("y", ""), col("z", "x")},
			wantOrder:   []string{"x", "y", "z"},
		},
		{
			name:        "missing parent skips child and grandchild",
			collections: []platform.Collection{col("a", "ghost"), col("c", "a"), col("b", "")},
			wantOrder:   []string{"b"},
			wantSkipped: []string{"a", "c"},
		},
		{
			name:        "parent already live",
			collections: []platform.Collection{col("a", "live")},
			existing:    map[string]bool{"live": true},
			wantOrder:   []string{"a"},
		},
		{
			name:        "group cycle skipped",
			collections: []platform.Collection{col("a", "b"), col("b", "a"), col("c", "")},
			wantOrder:   []string{"c"},
			wantSkipped: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := tt.existing
			if existing == nil {
				existing = map[string]bool{}
			}
			ordered, skipped := planOrder(tt.collections, existing)
			assert.Equal(t, tt.wantOrder, names(ordered))
			assert.ElementsMatch(t, tt.wantSkipped, skipped)
		})
	}
}
