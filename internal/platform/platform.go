// Package platform abstracts the host CMS persistence layer: collection,
// field and relation management plus per-collection item CRUD. Two
// implementations exist, Postgres (pgx) and SQLite (modernc), selected by
// the store driver configuration.
package platform

import (
	"context"
)

// Collection describes a collection (table) or folder in the platform schema.
// Folders carry metadata only and own no physical table.
type Collection struct {
	Collection string         `json:"collection"`
	Meta       CollectionMeta `json:"meta"`
	// Folder is true for grouping-only collections without storage.
	Folder bool `json:"folder,omitempty"`
	// Fields is honored on create only: the collection is created together
	// with these fields so the platform does not auto-generate a default
	// identifier column that would conflict with declared ones.
	Fields []Field `json:"fields,omitempty"`
}

// CollectionMeta holds display and grouping metadata for a collection.
type CollectionMeta struct {
	Icon  string `json:"icon,omitempty"`
	Note  string `json:"note,omitempty"`
	Group string `json:"group,omitempty"`
	Sort  int    `json:"sort,omitempty"`
}

// Field describes a single field of a collection.
type Field struct {
	Collection string         `json:"collection"`
	Field      string         `json:"field"`
	Type       string         `json:"type"`
	Meta       map[string]any `json:"meta,omitempty"`
	// Schema is nil for alias (presentation-only) fields which have no column.
	Schema *FieldSchema `json:"schema,omitempty"`
}

// FieldSchema holds column-level constraints for a field.
type FieldSchema struct {
	IsPrimaryKey bool   `json:"is_primary_key,omitempty"`
	IsNullable   bool   `json:"is_nullable,omitempty"`
	DefaultValue any    `json:"default_value,omitempty"`
	ForeignKey   string `json:"foreign_key_table,omitempty"`
}

// Relation describes a many-to-one relation between two collections.
type Relation struct {
	Collection        string         `json:"collection"`
	Field             string         `json:"field"`
	RelatedCollection string         `json:"related_collection"`
	Meta              map[string]any `json:"meta,omitempty"`
}

// Query specifies criteria for listing items of a collection. Filter keys
// may be dot-separated paths traversing many-to-one relations
// (e.g. "cidade.codigo_ibge"); values are either a literal compared with
// equality or an operator map ({"_eq": v}, {"_in": [v...]}).
type Query struct {
	Filter map[string]any
	Fields []string
	Limit  int // 0 = default, negative = unlimited
}

// Item is a single record. Dotted field selections come back as nested maps.
type Item = map[string]any

// SchemaService manages the live schema of the platform database.
type SchemaService interface {
	ReadCollections(ctx context.Context) ([]Collection, error)
	CreateCollection(ctx context.Context, col Collection) error
	ReadFields(ctx context.Context, collection string) ([]Field, error)
	CreateField(ctx context.Context, collection string, field Field) error
	ReadRelations(ctx context.Context) ([]Relation, error)
	CreateRelation(ctx context.Context, rel Relation) error
}

// ItemService provides item CRUD for one collection. A nested map value on a
// many-to-one field passed to CreateOne performs a nested create of the
// related item, mirroring the host platform behavior.
type ItemService interface {
	Query(ctx context.Context, q Query) ([]Item, error)
	CreateOne(ctx context.Context, data Item) (string, error)
	ReadOne(ctx context.Context, id string, fields []string) (Item, error)
	UpdateOne(ctx context.Context, id string, patch Item) error
	CreateMany(ctx context.Context, rows []Item) error
}

// Store combines schema management with per-collection item access.
type Store interface {
	SchemaService
	// Items returns the item service for a collection. The handle resolves
	// relation paths against the snapshot current at the time of the call.
	Items(collection string) ItemService
	// Refresh reloads the relation snapshot used for nested-path resolution.
	// Call it after reconciliation mutates the schema.
	Refresh(ctx context.Context) error
	Close() error
}
