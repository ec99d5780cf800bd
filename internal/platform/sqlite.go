package platform

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// development and the test harness; semantics match PostgresStore.
type SQLiteStore struct {
	db   *sql.DB
	snap *snapshot
}

const sqliteSystemTables = `
CREATE TABLE IF NOT EXISTS directus_collections (
	collection TEXT PRIMARY KEY,
	icon       TEXT,
	note       TEXT,
	"group"    TEXT,
	sort       INTEGER NOT NULL DEFAULT 0,
	folder     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS directus_fields (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	field      TEXT NOT NULL,
	type       TEXT NOT NULL,
	meta       TEXT,
	schema     TEXT,
	UNIQUE (collection, field)
);

CREATE TABLE IF NOT EXISTS directus_relations (
	id              TEXT PRIMARY KEY,
	many_collection TEXT NOT NULL,
	many_field      TEXT NOT NULL,
	one_collection  TEXT NOT NULL,
	meta            TEXT,
	UNIQUE (many_collection, many_field)
);
`

// NewSQLite opens a SQLite database at the given DSN, configures WAL mode,
// ensures the system tables exist and loads the relation snapshot.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSystemTables); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: create system tables")
	}

	s := &SQLiteStore{db: db, snap: newSnapshot()}
	if err := s.Refresh(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Refresh reloads the relation and field-type snapshot from system tables.
func (s *SQLiteStore) Refresh(ctx context.Context) error {
	snap := newSnapshot()

	rows, err := s.db.QueryContext(ctx, `SELECT collection, field, type, schema FROM directus_fields`)
	if err != nil {
		return eris.Wrap(err, "sqlite: read field snapshot")
	}
	defer rows.Close()
	for rows.Next() {
		var collection, field, fieldType string
		var schemaRaw sql.NullString
		if err := rows.Scan(&collection, &field, &fieldType, &schemaRaw); err != nil {
			return eris.Wrap(err, "sqlite: scan field snapshot")
		}
		snap.addField(collection, field, fieldType, isPrimarySchema([]byte(schemaRaw.String)))
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: field snapshot rows")
	}

	relRows, err := s.db.QueryContext(ctx, `SELECT many_collection, many_field, one_collection FROM directus_relations`)
	if err != nil {
		return eris.Wrap(err, "sqlite: read relation snapshot")
	}
	defer relRows.Close()
	for relRows.Next() {
		var many, field, one string
		if err := relRows.Scan(&many, &field, &one); err != nil {
			return eris.Wrap(err, "sqlite: scan relation snapshot")
		}
		snap.addRelation(many, field, one)
	}
	if err := relRows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: relation snapshot rows")
	}

	s.snap = snap
	return nil
}

// ReadCollections lists all collections and folders.
func (s *SQLiteStore) ReadCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, icon, note, "group", sort, folder FROM directus_collections ORDER BY sort, collection`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read collections")
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		var icon, note, group sql.NullString
		if err := rows.Scan(&c.Collection, &icon, &note, &group, &c.Meta.Sort, &c.Folder); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan collection")
		}
		c.Meta.Icon = icon.String
		c.Meta.Note = note.String
		c.Meta.Group = group.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCollection creates the metadata row and, for non-folders, the
// physical table with all declared fields in one operation.
func (s *SQLiteStore) CreateCollection(ctx context.Context, col Collection) error {
	if !col.Folder {
		ddl, err := createTableSQL(dialectSQLite, col)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return eris.Wrapf(err, "sqlite: create table %s", col.Collection)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO directus_collections (collection, icon, note, "group", sort, folder) VALUES (?, ?, ?, ?, ?, ?)`,
		col.Collection, nilIfEmpty(col.Meta.Icon), nilIfEmpty(col.Meta.Note), nilIfEmpty(col.Meta.Group), col.Meta.Sort, col.Folder,
	); err != nil {
		return eris.Wrapf(err, "sqlite: register collection %s", col.Collection)
	}

	for _, f := range col.Fields {
		if err := s.registerField(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadFields lists the declared fields of one collection.
func (s *SQLiteStore) ReadFields(ctx context.Context, collection string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, field, type, meta, schema FROM directus_fields WHERE collection = ? ORDER BY field`, collection)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read fields of %s", collection)
	}
	defer rows.Close()

	var out []Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CreateField adds a column to an existing collection table and registers it.
// SQLite has no ADD COLUMN IF NOT EXISTS, so a duplicate column error from a
// concurrent create is tolerated.
func (s *SQLiteStore) CreateField(ctx context.Context, collection string, field Field) error {
	field.Collection = collection
	if field.Schema != nil {
		ddl := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`,
			collection, field.Field, dialectSQLite.columnType(field.Type))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return eris.Wrapf(err, "sqlite: add column %s.%s", collection, field.Field)
			}
		}
	}
	return s.registerField(ctx, field)
}

func (s *SQLiteStore) registerField(ctx context.Context, f Field) error {
	metaRaw, _ := json.Marshal(f.Meta)
	var schemaRaw any
	if f.Schema != nil {
		raw, err := json.Marshal(f.Schema)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal field schema")
		}
		schemaRaw = string(raw)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO directus_fields (id, collection, field, type, meta, schema) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), f.Collection, f.Field, f.Type, string(metaRaw), schemaRaw,
	); err != nil {
		return eris.Wrapf(err, "sqlite: register field %s.%s", f.Collection, f.Field)
	}
	s.snap.addField(f.Collection, f.Field, f.Type, f.Schema != nil && f.Schema.IsPrimaryKey)
	return nil
}

// ReadRelations lists all many-to-one relations.
func (s *SQLiteStore) ReadRelations(ctx context.Context) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT many_collection, many_field, one_collection, meta FROM directus_relations ORDER BY many_collection, many_field`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read relations")
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		var metaRaw sql.NullString
		if err := rows.Scan(&r.Collection, &r.Field, &r.RelatedCollection, &metaRaw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan relation")
		}
		if metaRaw.Valid && metaRaw.String != "" {
			_ = json.Unmarshal([]byte(metaRaw.String), &r.Meta)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRelation registers a many-to-one relation.
func (s *SQLiteStore) CreateRelation(ctx context.Context, rel Relation) error {
	metaRaw, _ := json.Marshal(rel.Meta)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO directus_relations (id, many_collection, many_field, one_collection, meta) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), rel.Collection, rel.Field, rel.RelatedCollection, string(metaRaw),
	); err != nil {
		return eris.Wrapf(err, "sqlite: register relation %s.%s", rel.Collection, rel.Field)
	}
	s.snap.addRelation(rel.Collection, rel.Field, rel.RelatedCollection)
	return nil
}

// Items returns the item service handle for one collection.
func (s *SQLiteStore) Items(collection string) ItemService {
	return &sqliteItems{store: s, collection: collection}
}

type sqliteItems struct {
	store      *SQLiteStore
	collection string
}

func (it *sqliteItems) Query(ctx context.Context, q Query) ([]Item, error) {
	plan, err := buildSelect(it.store.snap, dialectSQLite, it.collection, q.Fields, q.Filter, q.Limit)
	if err != nil {
		return nil, err
	}
	rows, err := it.store.db.QueryContext(ctx, plan.sql, plan.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", it.collection)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		values := make([]any, len(plan.cols))
		dests := make([]any, len(plan.cols))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", it.collection)
		}
		for i := range values {
			values[i] = decodeValue(plan.leafTypes[i], values[i])
		}
		out = append(out, nest(plan.cols, values))
	}
	return out, rows.Err()
}

func (it *sqliteItems) ReadOne(ctx context.Context, id string, fields []string) (Item, error) {
	pk := it.store.snap.pk(it.collection)
	items, err := it.Query(ctx, Query{
		Filter: map[string]any{pk: id},
		Fields: fields,
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "%s %s", it.collection, id)
	}
	return items[0], nil
}

func (it *sqliteItems) CreateOne(ctx context.Context, data Item) (string, error) {
	return it.store.createOne(ctx, it.collection, data)
}

func (it *sqliteItems) CreateMany(ctx context.Context, rows []Item) error {
	for _, row := range rows {
		if _, err := it.store.createOne(ctx, it.collection, row); err != nil {
			return err
		}
	}
	return nil
}

func (it *sqliteItems) UpdateOne(ctx context.Context, id string, patch Item) error {
	keys := sortedKeys(patch)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		v, err := it.store.resolveValue(ctx, it.collection, k, patch[k])
		if err != nil {
			return err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(`%q = ?`, k))
	}
	args = append(args, id)
	sqlText := fmt.Sprintf(`UPDATE %q SET %s WHERE %q = ?`,
		it.collection, strings.Join(sets, ", "), it.store.snap.pk(it.collection))

	res, err := it.store.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", it.collection, id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", it.collection, id)
	}
	return nil
}

func (s *SQLiteStore) createOne(ctx context.Context, collection string, data Item) (string, error) {
	pk := s.snap.pk(collection)
	id, _ := data[pk].(string)
	if id == "" {
		id = uuid.NewString()
	}

	keys := sortedKeys(data)
	cols := []string{pk}
	args := []any{id}
	for _, k := range keys {
		if k == pk {
			continue
		}
		v, err := s.resolveValue(ctx, collection, k, data[k])
		if err != nil {
			return "", err
		}
		cols = append(cols, k)
		args = append(args, v)
	}

	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
		holders[i] = "?"
	}
	sqlText := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		collection, strings.Join(quoted, ", "), strings.Join(holders, ", "))
	if _, err := s.db.ExecContext(ctx, sqlText, args...); err != nil {
		return "", eris.Wrapf(err, "sqlite: insert into %s", collection)
	}
	return id, nil
}

func (s *SQLiteStore) resolveValue(ctx context.Context, collection, field string, v any) (any, error) {
	if nested, ok := v.(map[string]any); ok {
		if related, isRel := s.snap.relatedCollection(collection, field); isRel {
			return s.createOne(ctx, related, nested)
		}
	}
	return encodeValue(s.snap.fieldType(collection, field), v)
}
