package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by the store, satisfied by
// pgxmock.PgxPoolIface in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store against a Directus-compatible Postgres
// database: schema metadata lives in the directus_* system tables and each
// collection owns a physical table.
type PostgresStore struct {
	pool Pool
	snap *snapshot
}

const postgresSystemTables = `
CREATE TABLE IF NOT EXISTS directus_collections (
	collection TEXT PRIMARY KEY,
	icon       TEXT,
	note       TEXT,
	"group"    TEXT,
	sort       INTEGER NOT NULL DEFAULT 0,
	folder     BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS directus_fields (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	field      TEXT NOT NULL,
	type       TEXT NOT NULL,
	meta       JSONB,
	schema     JSONB,
	UNIQUE (collection, field)
);

CREATE TABLE IF NOT EXISTS directus_relations (
	id              TEXT PRIMARY KEY,
	many_collection TEXT NOT NULL,
	many_field      TEXT NOT NULL,
	one_collection  TEXT NOT NULL,
	meta            JSONB,
	UNIQUE (many_collection, many_field)
);
`

// NewPostgres creates a PostgresStore with a connection pool, ensures the
// system tables exist and loads the relation snapshot.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := &PostgresStore{pool: pool, snap: newSnapshot()}
	if _, err := s.pool.Exec(ctx, postgresSystemTables); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: create system tables")
	}
	if err := s.Refresh(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresFromPool wraps an existing pool without running migrations.
// Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, snap: newSnapshot()}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Refresh reloads the relation and field-type snapshot from system tables.
func (s *PostgresStore) Refresh(ctx context.Context) error {
	snap := newSnapshot()

	rows, err := s.pool.Query(ctx, `SELECT collection, field, type, schema FROM directus_fields`)
	if err != nil {
		return eris.Wrap(err, "postgres: read field snapshot")
	}
	defer rows.Close()
	for rows.Next() {
		var collection, field, fieldType string
		var schemaRaw []byte
		if err := rows.Scan(&collection, &field, &fieldType, &schemaRaw); err != nil {
			return eris.Wrap(err, "postgres: scan field snapshot")
		}
		snap.addField(collection, field, fieldType, isPrimarySchema(schemaRaw))
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: field snapshot rows")
	}

	relRows, err := s.pool.Query(ctx, `SELECT many_collection, many_field, one_collection FROM directus_relations`)
	if err != nil {
		return eris.Wrap(err, "postgres: read relation snapshot")
	}
	defer relRows.Close()
	for relRows.Next() {
		var many, field, one string
		if err := relRows.Scan(&many, &field, &one); err != nil {
			return eris.Wrap(err, "postgres: scan relation snapshot")
		}
		snap.addRelation(many, field, one)
	}
	if err := relRows.Err(); err != nil {
		return eris.Wrap(err, "postgres: relation snapshot rows")
	}

	s.snap = snap
	return nil
}

func isPrimarySchema(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	var fs FieldSchema
	if err := json.Unmarshal(raw, &fs); err != nil {
		return false
	}
	return fs.IsPrimaryKey
}

// ReadCollections lists all collections and folders.
func (s *PostgresStore) ReadCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT collection, icon, note, "group", sort, folder FROM directus_collections ORDER BY sort, collection`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read collections")
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		var icon, note, group *string
		if err := rows.Scan(&c.Collection, &icon, &note, &group, &c.Meta.Sort, &c.Folder); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collection")
		}
		c.Meta.Icon = deref(icon)
		c.Meta.Note = deref(note)
		c.Meta.Group = deref(group)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCollection creates the metadata row and, for non-folders, the
// physical table with all declared fields in one operation.
func (s *PostgresStore) CreateCollection(ctx context.Context, col Collection) error {
	if !col.Folder {
		ddl, err := createTableSQL(dialectPostgres, col)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return eris.Wrapf(err, "postgres: create table %s", col.Collection)
		}
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO directus_collections (collection, icon, note, "group", sort, folder) VALUES ($1, $2, $3, $4, $5, $6)`,
		col.Collection, nilIfEmpty(col.Meta.Icon), nilIfEmpty(col.Meta.Note), nilIfEmpty(col.Meta.Group), col.Meta.Sort, col.Folder,
	); err != nil {
		return eris.Wrapf(err, "postgres: register collection %s", col.Collection)
	}

	for _, f := range col.Fields {
		if err := s.registerField(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadFields lists the declared fields of one collection.
func (s *PostgresStore) ReadFields(ctx context.Context, collection string) ([]Field, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT collection, field, type, meta, schema FROM directus_fields WHERE collection = $1 ORDER BY field`, collection)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: read fields of %s", collection)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanField(row rowScanner) (Field, error) {
	var f Field
	var metaRaw, schemaRaw []byte
	if err := row.Scan(&f.Collection, &f.Field, &f.Type, &metaRaw, &schemaRaw); err != nil {
		return Field{}, eris.Wrap(err, "postgres: scan field")
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &f.Meta)
	}
	if len(schemaRaw) > 0 {
		var fs FieldSchema
		if err := json.Unmarshal(schemaRaw, &fs); err == nil {
			f.Schema = &fs
		}
	}
	return f, nil
}

// CreateField adds a column to an existing collection table and registers it.
func (s *PostgresStore) CreateField(ctx context.Context, collection string, field Field) error {
	field.Collection = collection
	if field.Schema != nil {
		ddl := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN IF NOT EXISTS %q %s`,
			collection, field.Field, dialectPostgres.columnType(field.Type))
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return eris.Wrapf(err, "postgres: add column %s.%s", collection, field.Field)
		}
	}
	return s.registerField(ctx, field)
}

func (s *PostgresStore) registerField(ctx context.Context, f Field) error {
	metaRaw, _ := json.Marshal(f.Meta)
	var schemaRaw any
	if f.Schema != nil {
		raw, err := json.Marshal(f.Schema)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal field schema")
		}
		schemaRaw = string(raw)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO directus_fields (id, collection, field, type, meta, schema) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), f.Collection, f.Field, f.Type, string(metaRaw), schemaRaw,
	); err != nil {
		return eris.Wrapf(err, "postgres: register field %s.%s", f.Collection, f.Field)
	}
	s.snap.addField(f.Collection, f.Field, f.Type, f.Schema != nil && f.Schema.IsPrimaryKey)
	return nil
}

// ReadRelations lists all many-to-one relations.
func (s *PostgresStore) ReadRelations(ctx context.Context) ([]Relation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT many_collection, many_field, one_collection, meta FROM directus_relations ORDER BY many_collection, many_field`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read relations")
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		var metaRaw []byte
		if err := rows.Scan(&r.Collection, &r.Field, &r.RelatedCollection, &metaRaw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan relation")
		}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &r.Meta)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRelation registers a many-to-one relation.
func (s *PostgresStore) CreateRelation(ctx context.Context, rel Relation) error {
	metaRaw, _ := json.Marshal(rel.Meta)
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO directus_relations (id, many_collection, many_field, one_collection, meta) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), rel.Collection, rel.Field, rel.RelatedCollection, string(metaRaw),
	); err != nil {
		return eris.Wrapf(err, "postgres: register relation %s.%s", rel.Collection, rel.Field)
	}
	s.snap.addRelation(rel.Collection, rel.Field, rel.RelatedCollection)
	return nil
}

// Items returns the item service handle for one collection.
func (s *PostgresStore) Items(collection string) ItemService {
	return &pgItems{store: s, collection: collection}
}

type pgItems struct {
	store      *PostgresStore
	collection string
}

func (it *pgItems) Query(ctx context.Context, q Query) ([]Item, error) {
	plan, err := buildSelect(it.store.snap, dialectPostgres, it.collection, q.Fields, q.Filter, q.Limit)
	if err != nil {
		return nil, err
	}
	rows, err := it.store.pool.Query(ctx, plan.sql, plan.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", it.collection)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", it.collection)
		}
		for i := range values {
			values[i] = decodeValue(plan.leafTypes[i], values[i])
		}
		out = append(out, nest(plan.cols, values))
	}
	return out, rows.Err()
}

func (it *pgItems) ReadOne(ctx context.Context, id string, fields []string) (Item, error) {
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

func (it *pgItems) CreateOne(ctx context.Context, data Item) (string, error) {
	return it.store.createOne(ctx, it.collection, data)
}

func (it *pgItems) CreateMany(ctx context.Context, rows []Item) error {
	for _, row := range rows {
		if _, err := it.store.createOne(ctx, it.collection, row); err != nil {
			return err
		}
	}
	return nil
}

func (it *pgItems) UpdateOne(ctx context.Context, id string, patch Item) error {
	snap := it.store.snap
	keys := sortedKeys(patch)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		v, err := it.store.resolveValue(ctx, it.collection, k, patch[k])
		if err != nil {
			return err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(`%q = %s`, k, dialectPostgres.placeholder(len(args))))
	}
	args = append(args, id)
	sql := fmt.Sprintf(`UPDATE %q SET %s WHERE %q = %s`,
		it.collection, strings.Join(sets, ", "), snap.pk(it.collection), dialectPostgres.placeholder(len(args)))

	tag, err := it.store.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %s", it.collection, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", it.collection, id)
	}
	return nil
}

// createOne inserts one row, performing nested creates for map values on
// many-to-one fields, and returns the new primary key.
func (s *PostgresStore) createOne(ctx context.Context, collection string, data Item) (string, error) {
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
		holders[i] = dialectPostgres.placeholder(i + 1)
	}
	sql := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		collection, strings.Join(quoted, ", "), strings.Join(holders, ", "))
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return "", eris.Wrapf(err, "postgres: insert into %s", collection)
	}
	return id, nil
}

// resolveValue encodes a value for binding; a nested map on a many-to-one
// field creates the related item first and binds its id.
func (s *PostgresStore) resolveValue(ctx context.Context, collection, field string, v any) (any, error) {
	if nested, ok := v.(map[string]any); ok {
		if related, isRel := s.snap.relatedCollection(collection, field); isRel {
			return s.createOne(ctx, related, nested)
		}
	}
	return encodeValue(s.snap.fieldType(collection, field), v)
}

// createTableSQL builds the CREATE TABLE statement for a collection and its
// declared fields; alias fields contribute no column.
func createTableSQL(d dialect, col Collection) (string, error) {
	var cols []string
	for _, f := range col.Fields {
		if f.Schema == nil {
			continue
		}
		def := fmt.Sprintf("%q %s", f.Field, d.columnType(f.Type))
		if f.Schema.IsPrimaryKey {
			def += " PRIMARY KEY"
		} else if !f.Schema.IsNullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	if len(cols) == 0 {
		return "", eris.Errorf("platform: collection %s declares no storable fields", col.Collection)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", col.Collection, strings.Join(cols, ", ")), nil
}

func sortedKeys(m Item) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
