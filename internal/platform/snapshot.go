package platform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// dialect selects placeholder style and column types for the two backends.
type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

func (d dialect) placeholder(n int) string {
	if d == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// columnType maps a platform field type to a column type for the dialect.
func (d dialect) columnType(fieldType string) string {
	pg := d == dialectPostgres
	switch fieldType {
	case "integer", "bigInteger":
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case "float", "decimal":
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case "boolean":
		if pg {
			return "BOOLEAN"
		}
		return "INTEGER"
	case "json", "geometry.Point":
		if pg {
			return "JSONB"
		}
		return "TEXT"
	case "timestamp", "dateTime":
		if pg {
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	default:
		// uuid, string, text, hash and anything unrecognized.
		return "TEXT"
	}
}

// jsonColumn reports whether values of this field type are stored serialized.
func jsonColumn(fieldType string) bool {
	return fieldType == "json" || fieldType == "geometry.Point"
}

// snapshot caches the relation graph and field types of the live schema so
// item queries can resolve dotted paths into joins without re-reading the
// system tables on every call.
type snapshot struct {
	// relations indexes many-to-one edges: collection -> field -> related collection.
	relations map[string]map[string]string
	// fieldTypes indexes column types: collection -> field -> platform type.
	fieldTypes map[string]map[string]string
	// primaryKey per collection; defaults to "id".
	primaryKey map[string]string
}

func newSnapshot() *snapshot {
	return &snapshot{
		relations:  map[string]map[string]string{},
		fieldTypes: map[string]map[string]string{},
		primaryKey: map[string]string{},
	}
}

func (s *snapshot) addRelation(collection, field, related string) {
	if s.relations[collection] == nil {
		s.relations[collection] = map[string]string{}
	}
	s.relations[collection][field] = related
}

func (s *snapshot) addField(collection, field, fieldType string, primary bool) {
	if s.fieldTypes[collection] == nil {
		s.fieldTypes[collection] = map[string]string{}
	}
	s.fieldTypes[collection][field] = fieldType
	if primary {
		s.primaryKey[collection] = field
	}
}

func (s *snapshot) relatedCollection(collection, field string) (string, bool) {
	related, ok := s.relations[collection][field]
	return related, ok
}

func (s *snapshot) pk(collection string) string {
	if pk, ok := s.primaryKey[collection]; ok {
		return pk
	}
	return "id"
}

func (s *snapshot) fieldType(collection, field string) string {
	return s.fieldTypes[collection][field]
}

// selectPlan is a compiled item query: SQL, bound args, and the dotted
// output path for every selected column, in order.
type selectPlan struct {
	sql  string
	args []any
	cols []string
	// leafTypes holds the platform type of each output column for decoding.
	leafTypes []string
}

// joinState tracks table aliases assigned to relation path prefixes.
type joinState struct {
	snap    *snapshot
	root    string
	aliases map[string]string // path prefix -> alias
	joins   []string
	n       int
}

func newJoinState(snap *snapshot, root string) *joinState {
	return &joinState{snap: snap, root: root, aliases: map[string]string{"": "t0"}}
}

// resolve walks a dotted path, emitting LEFT JOINs for every relation hop,
// and returns the alias plus column name of the leaf, with the collection
// the leaf lives in.
func (j *joinState) resolve(path string) (alias, column, collection string, err error) {
	parts := strings.Split(path, ".")
	collection = j.root
	prefix := ""
	alias = "t0"
	for i, part := range parts {
		if i == len(parts)-1 {
			return alias, part, collection, nil
		}
		related, ok := j.snap.relatedCollection(collection, part)
		if !ok {
			return "", "", "", eris.Errorf("platform: %s.%s is not a relation", collection, part)
		}
		next := prefix + part
		nextAlias, seen := j.aliases[next]
		if !seen {
			j.n++
			nextAlias = fmt.Sprintf("t%d", j.n)
			j.aliases[next] = nextAlias
			j.joins = append(j.joins, fmt.Sprintf(
				`LEFT JOIN %q %s ON %s.%q = %s.%q`,
				related, nextAlias, alias, part, nextAlias, j.snap.pk(related)))
		}
		alias = nextAlias
		prefix = next + "."
		collection = related
	}
	return alias, parts[len(parts)-1], collection, nil
}

// buildSelect compiles a Query into SQL for one collection.
func buildSelect(snap *snapshot, d dialect, collection string, fields []string, filter map[string]any, limit int) (*selectPlan, error) {
	if len(fields) == 0 {
		fields = []string{snap.pk(collection)}
	}

	js := newJoinState(snap, collection)
	plan := &selectPlan{}

	selects := make([]string, 0, len(fields))
	for _, f := range fields {
		alias, column, leafCol, err := js.resolve(f)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf(`%s.%q AS %q`, alias, column, f))
		plan.cols = append(plan.cols, f)
		plan.leafTypes = append(plan.leafTypes, snap.fieldType(leafCol, column))
	}

	// Deterministic filter ordering keeps generated SQL stable for tests.
	filterKeys := make([]string, 0, len(filter))
	for k := range filter {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)

	var wheres []string
	for _, key := range filterKeys {
		alias, column, _, err := js.resolve(key)
		if err != nil {
			return nil, err
		}
		op, operand := "_eq", filter[key]
		if m, ok := operand.(map[string]any); ok {
			for o, v := range m {
				op, operand = o, v
			}
		}
		switch op {
		case "_eq":
			plan.args = append(plan.args, operand)
			wheres = append(wheres, fmt.Sprintf(`%s.%q = %s`, alias, column, d.placeholder(len(plan.args))))
		case "_neq":
			plan.args = append(plan.args, operand)
			wheres = append(wheres, fmt.Sprintf(`%s.%q <> %s`, alias, column, d.placeholder(len(plan.args))))
		case "_in":
			values, ok := toAnySlice(operand)
			if !ok || len(values) == 0 {
				return nil, eris.Errorf("platform: _in filter on %s needs a non-empty list", key)
			}
			holders := make([]string, len(values))
			for i, v := range values {
				plan.args = append(plan.args, v)
				holders[i] = d.placeholder(len(plan.args))
			}
			wheres = append(wheres, fmt.Sprintf(`%s.%q IN (%s)`, alias, column, strings.Join(holders, ", ")))
		default:
			return nil, eris.Errorf("platform: unsupported filter operator %q", op)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM %q t0`, strings.Join(selects, ", "), collection)
	for _, join := range js.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	if len(wheres) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(wheres, " AND "))
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	plan.sql = b.String()
	return plan, nil
}

func toAnySlice(v any) ([]any, bool) {
	switch vv := v.(type) {
	case []any:
		return vv, true
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// nest folds flat dotted-path columns into nested item maps:
// {"cidade.estado.sigla": "SP"} -> {"cidade": {"estado": {"sigla": "SP"}}}.
func nest(cols []string, values []any) Item {
	item := Item{}
	for i, col := range cols {
		parts := strings.Split(col, ".")
		m := item
		for _, part := range parts[:len(parts)-1] {
			sub, ok := m[part].(Item)
			if !ok {
				sub = Item{}
				m[part] = sub
			}
			m = sub
		}
		m[parts[len(parts)-1]] = values[i]
	}
	return item
}

// decodeValue normalizes a scanned column value: serialized JSON columns are
// unmarshalled, []byte becomes string for text columns.
func decodeValue(fieldType string, v any) any {
	if v == nil {
		return nil
	}
	if jsonColumn(fieldType) {
		var raw []byte
		switch vv := v.(type) {
		case []byte:
			raw = vv
		case string:
			raw = []byte(vv)
		default:
			return v
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return v
		}
		return out
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// encodeValue prepares a value for binding: maps and slices destined for
// serialized columns are marshalled to JSON.
func encodeValue(fieldType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if jsonColumn(fieldType) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrap(err, "platform: encode json value")
		}
		return string(raw), nil
	}
	switch v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrap(err, "platform: encode value")
		}
		return string(raw), nil
	}
	return v, nil
}
