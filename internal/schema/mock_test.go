package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

// fakeStore is an in-memory platform.Store for reconciler and seeder tests.
type fakeStore struct {
	collections []platform.Collection
	fields      map[string][]platform.Field
	relations   []platform.Relation
	items       map[string][]platform.Item

	failCreateCollection map[string]error
	createdOrder         []string
	refreshes            int
	nextID               int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fields:               map[string][]platform.Field{},
		items:                map[string][]platform.Item{},
		failCreateCollection: map[string]error{},
	}
}

func (f *fakeStore) ReadCollections(context.Context) ([]platform.Collection, error) {
	return append([]platform.Collection(nil), f.collections...), nil
}

func (f *fakeStore) CreateCollection(_ context.Context, col platform.Collection) error {
	if err := f.failCreateCollection[col.Collection]; err != nil {
		return err
	}
	fields := col.Fields
	col.Fields = nil
	f.collections = append(f.collections, col)
	f.fields[col.Collection] = append(f.fields[col.Collection], fields...)
	f.createdOrder = append(f.createdOrder, col.Collection)
	return nil
}

func (f *fakeStore) ReadFields(_ context.Context, collection string) ([]platform.Field, error) {
	return append([]platform.Field(nil), f.fields[collection]...), nil
}

func (f *fakeStore) CreateField(_ context.Context, collection string, field platform.Field) error {
	field.Collection = collection
	f.fields[collection] = append(f.fields[collection], field)
	return nil
}

func (f *fakeStore) ReadRelations(context.Context) ([]platform.Relation, error) {
	return append([]platform.Relation(nil), f.relations...), nil
}

func (f *fakeStore) CreateRelation(_ context.Context, rel platform.Relation) error {
	f.relations = append(f.relations, rel)
	return nil
}

func (f *fakeStore) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Items(collection string) platform.ItemService {
	return &fakeItems{store: f, collection: collection}
}

func (f *fakeStore) hasCollection(name string) bool {
	for _, c := range f.collections {
		if c.Collection == name {
			return true
		}
	}
	return false
}

type fakeItems struct {
	store      *fakeStore
	collection string
}

// Query supports flat equality filters, which is all the seeder needs.
func (it *fakeItems) Query(_ context.Context, q platform.Query) ([]platform.Item, error) {
	var out []platform.Item
	for _, item := range it.store.items[it.collection] {
		if matches(item, q.Filter) {
			out = append(out, item)
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
	}
	return out, nil
}

func matches(item platform.Item, filter map[string]any) bool {
	for key, cond := range filter {
		if strings.Contains(key, ".") {
			return false
		}
		want := cond
		if m, ok := cond.(map[string]any); ok {
			want = m["_eq"]
		}
		if item[key] != want {
			return false
		}
	}
	return true
}

func (it *fakeItems) CreateOne(_ context.Context, data platform.Item) (string, error) {
	it.store.nextID++
	id := fmt.Sprintf("%s-%d", it.collection, it.store.nextID)
	row := platform.Item{"id": id}
	for k, v := range data {
		row[k] = v
	}
	it.store.items[it.collection] = append(it.store.items[it.collection], row)
	return id, nil
}

func (it *fakeItems) CreateMany(ctx context.Context, rows []platform.Item) error {
	for _, row := range rows {
		if _, err := it.CreateOne(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (it *fakeItems) ReadOne(_ context.Context, id string, _ []string) (platform.Item, error) {
	for _, item := range it.store.items[it.collection] {
		if item["id"] == id {
			return item, nil
		}
	}
	return nil, eris.Wrapf(platform.ErrNotFound, "%s %s", it.collection, id)
}

func (it *fakeItems) UpdateOne(_ context.Context, id string, patch platform.Item) error {
	for _, item := range it.store.items[it.collection] {
		if item["id"] == id {
			for k, v := range patch {
				item[k] = v
			}
			return nil
		}
	}
	return eris.Wrapf(platform.ErrNotFound, "%s %s", it.collection, id)
}
