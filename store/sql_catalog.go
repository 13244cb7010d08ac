package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/sicko7947/etlkit"
)

// MetaData caches reflected table metadata of one engine
type MetaData struct {
	engine *Engine
	schema string
	tables map[string]*etlkit.TableMeta
}

// NewMetaData creates an empty catalog cache. schema is the default schema
// used when a lookup does not name one.
func NewMetaData(engine *Engine, schema string) *MetaData {
	return &MetaData{
		engine: engine,
		schema: schema,
		tables: make(map[string]*etlkit.TableMeta),
	}
}

// Reflect drops the cache and reloads every table of the default schema, or
// only the named tables
func (m *MetaData) Reflect(ctx context.Context, only ...string) error {
	names, err := m.listTables(ctx, m.schema)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		names = lo.Filter(names, func(n tableName, _ int) bool {
			return lo.Contains(only, n.name)
		})
	}

	tables := make(map[string]*etlkit.TableMeta, len(names))
	for _, n := range names {
		meta, err := m.reflectColumns(ctx, m.schema, n)
		if err != nil {
			return err
		}
		tables[cacheKey(m.schema, n.name)] = meta
	}
	m.tables = tables
	return nil
}

// Tables returns a copy of the cached tables sorted by name
func (m *MetaData) Tables() []etlkit.TableMeta {
	out := make([]etlkit.TableMeta, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, copyMeta(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullName() < out[j].FullName()
	})
	return out
}

// Table returns the cached metadata of a table
func (m *MetaData) Table(schema, name string) (*etlkit.TableMeta, bool) {
	if schema == "" {
		schema = m.schema
	}
	t, ok := m.tables[cacheKey(schema, name)]
	if !ok {
		return nil, false
	}
	cp := copyMeta(t)
	return &cp, true
}

// Load returns the metadata of a table, reflecting it when it is not cached.
// It returns nil when the table does not exist.
func (m *MetaData) Load(ctx context.Context, schema, name string) (*etlkit.TableMeta, error) {
	if schema == "" {
		schema = m.schema
	}
	if t, ok := m.Table(schema, name); ok {
		return t, nil
	}

	names, err := m.listTables(ctx, schema)
	if err != nil {
		return nil, err
	}
	n, ok := lo.Find(names, func(n tableName) bool { return n.name == name })
	if !ok {
		return nil, nil
	}
	meta, err := m.reflectColumns(ctx, schema, n)
	if err != nil {
		return nil, err
	}
	m.tables[cacheKey(schema, name)] = meta

	cp := copyMeta(meta)
	return &cp, nil
}

// Invalidate drops a table from the cache
func (m *MetaData) Invalidate(schema, name string) {
	if schema == "" {
		schema = m.schema
	}
	delete(m.tables, cacheKey(schema, name))
}

type tableName struct {
	name string
	kind string
}

func (m *MetaData) listTables(ctx context.Context, schema string) ([]tableName, error) {
	d := m.engine.dialect

	var q sq.SelectBuilder
	if d == DialectPostgres {
		if schema == "" {
			schema = "public"
		}
		q = d.Builder().
			Select("table_name", "table_type").
			From("information_schema.tables").
			Where(sq.Eq{"table_schema": schema}).
			OrderBy("table_name")
	} else {
		master := "sqlite_master"
		if schema != "" {
			master = d.Quote(schema) + ".sqlite_master"
		}
		q = d.Builder().
			Select("name", "type").
			From(master).
			Where(sq.Eq{"type": []string{"table", "view"}}).
			Where(sq.NotLike{"name": "sqlite_%"}).
			OrderBy("name")
	}

	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, etlkit.NewError(etlkit.ErrCodeConfig, "failed to build catalog query").Wrap(err)
	}
	rows, err := m.engine.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []tableName
	for rows.Next() {
		var n tableName
		if err := rows.Scan(&n.name, &n.kind); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		n.kind = normalizeKind(n.kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (m *MetaData) reflectColumns(ctx context.Context, schema string, n tableName) (*etlkit.TableMeta, error) {
	d := m.engine.dialect
	meta := &etlkit.TableMeta{Schema: schema, Name: n.name, Kind: n.kind}

	var (
		rows *sql.Rows
		err  error
	)
	if d == DialectPostgres {
		if schema == "" {
			schema = "public"
		}
		stmt, args, buildErr := d.Builder().
			Select("column_name", "data_type", "is_nullable").
			From("information_schema.columns").
			Where(sq.Eq{"table_schema": schema, "table_name": n.name}).
			OrderBy("ordinal_position").
			ToSql()
		if buildErr != nil {
			return nil, etlkit.NewError(etlkit.ErrCodeConfig, "failed to build catalog query").Wrap(buildErr)
		}
		rows, err = m.engine.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to reflect table %s: %w", n.name, err)
		}
		defer rows.Close()

		for rows.Next() {
			var name, typ, nullable string
			if err := rows.Scan(&name, &typ, &nullable); err != nil {
				return nil, fmt.Errorf("failed to scan column of %s: %w", n.name, err)
			}
			meta.Columns = append(meta.Columns, etlkit.ColumnMeta{
				Name:     name,
				Type:     strings.ToUpper(typ),
				Nullable: nullable == "YES",
			})
		}
		return meta, rows.Err()
	}

	pragma := "PRAGMA table_info(" + d.Quote(n.name) + ")"
	if schema != "" {
		pragma = "PRAGMA " + d.Quote(schema) + ".table_info(" + d.Quote(n.name) + ")"
	}
	rows, err = m.engine.db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect table %s: %w", n.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", n.name, err)
		}
		meta.Columns = append(meta.Columns, etlkit.ColumnMeta{
			Name:     name,
			Type:     strings.ToUpper(typ),
			Nullable: notnull == 0,
		})
	}
	return meta, rows.Err()
}

func normalizeKind(kind string) string {
	switch strings.ToUpper(kind) {
	case "VIEW":
		return "view"
	default:
		return "table"
	}
}

func cacheKey(schema, name string) string {
	return schema + "." + name
}

func copyMeta(t *etlkit.TableMeta) etlkit.TableMeta {
	cp := *t
	cp.Columns = append([]etlkit.ColumnMeta(nil), t.Columns...)
	return cp
}
