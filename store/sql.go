package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

// SQLStore reads and writes relational tables through an Engine
type SQLStore struct {
	base
	engine     *Engine
	ownsEngine bool
	schema     string
	table      string
	meta       *MetaData
	chunkSize  int
}

// NewSQLStore creates a SQL store. Exactly one of cfg.URL and cfg.Conn must
// be set; Conn holds a *Engine, or a *sql.DB together with the dialect
// option. Target and staging stores need cfg.Table.
func NewSQLStore(name string, stype etlkit.StoreType, cfg etlkit.StoreConfig, logger zerolog.Logger) (*SQLStore, error) {
	b, err := newBase(KindSQL, name, stype, logger)
	if err != nil {
		return nil, err
	}
	if (cfg.URL == "") == (cfg.Conn == nil) {
		return nil, b.errorf(etlkit.ErrCodeConfig, "exactly one of url and conn is required")
	}
	if stype.RequiresTable() && cfg.Table == "" {
		return nil, b.errorf(etlkit.ErrCodeConfig, "%s stores need a table", stype)
	}

	s := &SQLStore{
		base:      b,
		schema:    cfg.Schema,
		table:     cfg.Table,
		chunkSize: cfg.OptInt("chunk_size", etlkit.DefaultChunkSize),
	}

	switch conn := cfg.Conn.(type) {
	case nil:
		engine, err := OpenEngine(cfg.URL, cfg)
		if err != nil {
			return nil, withStore(err, name)
		}
		s.engine, s.ownsEngine = engine, true
	case *Engine:
		s.engine = conn
	case *sql.DB:
		s.engine = NewEngine(conn, Dialect(cfg.OptString("dialect", string(DialectPostgres))))
	default:
		return nil, b.errorf(etlkit.ErrCodeConfig, "conn of type %T is not an engine", cfg.Conn)
	}

	s.meta = NewMetaData(s.engine, s.schema)
	return s, nil
}

// Engine returns the store engine
func (s *SQLStore) Engine() *Engine {
	return s.engine
}

// MetaData returns the store's catalog cache
func (s *SQLStore) MetaData() *MetaData {
	return s.meta
}

// TableName returns the bound table, empty for sources without one
func (s *SQLStore) TableName() string {
	return s.table
}

func (s *SQLStore) qualified() string {
	return s.engine.dialect.Qualify(s.schema, s.table)
}

// Extract runs req.Query, or selects the bound table when the query is empty
func (s *SQLStore) Extract(ctx context.Context, req etlkit.ExtractRequest) (*table.Table, error) {
	if err := s.checkExtract(); err != nil {
		return nil, err
	}

	stmt, args := req.Query, req.Args
	switch {
	case stmt == "" && s.table == "":
		return nil, s.errorf(etlkit.ErrCodeConfig, "no query given and no table bound")
	case stmt == "":
		q := s.engine.dialect.Builder().Select("*").From(s.qualified())
		if req.Limit > 0 {
			q = q.Limit(uint64(req.Limit))
		}
		var err error
		if stmt, args, err = q.ToSql(); err != nil {
			return nil, s.errorf(etlkit.ErrCodeConfig, "failed to build select").Wrap(err)
		}
	case req.Limit > 0:
		stmt = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", strings.TrimRight(stmt, "; \n\t"), req.Limit)
	}

	etlkit.LogSQLExecuted(s.logger, s.name, stmt, len(args))
	rows, err := s.engine.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("store %s: query failed: %w", s.name, err)
	}
	defer rows.Close()

	data, err := readRows(rows)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", s.name, err)
	}
	if err := parseDates(data, req.ParseDates); err != nil {
		return nil, withStore(err, s.name)
	}

	s.data = data
	return data, nil
}

// Load writes data into the bound table, creating it when missing
func (s *SQLStore) Load(ctx context.Context, data *table.Table, opts etlkit.LoadOptions) (int, error) {
	if err := s.checkLoad(data); err != nil {
		return 0, err
	}
	if data.Empty() {
		return 0, s.errorf(etlkit.ErrCodeEmptyData, "cannot load an empty table")
	}
	if s.table == "" {
		return 0, s.errorf(etlkit.ErrCodeStypeViolation, "no table bound")
	}

	ifExists, err := etlkit.ParseIfExists(string(opts.IfExists))
	if err != nil {
		return 0, err
	}
	if opts.Overwrite && opts.IfExists == "" {
		ifExists = etlkit.IfExistsReplace
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = s.chunkSize
	}

	existing, err := s.meta.Load(ctx, s.schema, s.table)
	if err != nil {
		return 0, err
	}
	if existing != nil && ifExists == etlkit.IfExistsFail {
		return 0, s.errorf(etlkit.ErrCodeConflict, "table %s already exists", s.table)
	}
	if existing != nil && ifExists == etlkit.IfExistsAppend {
		for _, col := range data.Columns() {
			if _, ok := existing.Column(col); !ok {
				return 0, s.errorf(etlkit.ErrCodeNotFound, "column %q not found in table %s", col, s.table)
			}
		}
	}

	tx, err := s.engine.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store %s: failed to begin transaction: %w", s.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if existing != nil && ifExists == etlkit.IfExistsReplace {
		if err := s.exec(ctx, tx, "DROP TABLE "+s.qualified()); err != nil {
			return 0, err
		}
	}
	if existing == nil || ifExists == etlkit.IfExistsReplace {
		if err := s.exec(ctx, tx, s.createStatement(data)); err != nil {
			return 0, err
		}
	}

	cols := lo.Map(data.Columns(), func(c string, _ int) string {
		return s.engine.dialect.Quote(c)
	})
	for start := 0; start < data.NumRows(); start += chunk {
		end := min(start+chunk, data.NumRows())
		q := s.engine.dialect.Builder().Insert(s.qualified()).Columns(cols...)
		for i := start; i < end; i++ {
			q = q.Values(data.Row(i)...)
		}
		stmt, args, err := q.ToSql()
		if err != nil {
			return 0, s.errorf(etlkit.ErrCodeConfig, "failed to build insert").Wrap(err)
		}
		if err := s.exec(ctx, tx, stmt, args...); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store %s: failed to commit: %w", s.name, err)
	}
	s.meta.Invalidate(s.schema, s.table)
	s.data = data
	return data.NumRows(), nil
}

func (s *SQLStore) createStatement(data *table.Table) string {
	defs := make([]string, 0, data.NumCols())
	for i := 0; i < data.NumCols(); i++ {
		col := data.ColumnAt(i)
		defs = append(defs, s.engine.dialect.Quote(col.Name)+" "+s.engine.dialect.ColumnType(col.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", s.qualified(), strings.Join(defs, ", "))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) exec(ctx context.Context, db execer, stmt string, args ...any) error {
	etlkit.LogSQLExecuted(s.logger, s.name, stmt, len(args))
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("store %s: statement failed: %w", s.name, err)
	}
	return nil
}

func (s *SQLStore) execCount(ctx context.Context, q sq.Sqlizer) (int64, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return 0, s.errorf(etlkit.ErrCodeConfig, "failed to build statement").Wrap(err)
	}
	etlkit.LogSQLExecuted(s.logger, s.name, stmt, len(args))
	res, err := s.engine.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("store %s: statement failed: %w", s.name, err)
	}
	return res.RowsAffected()
}

// boundTable returns the reflected bound table and checks that columns exist in it
func (s *SQLStore) boundTable(ctx context.Context, columns ...string) (*etlkit.TableMeta, error) {
	if s.table == "" {
		return nil, s.errorf(etlkit.ErrCodeStypeViolation, "no table bound")
	}
	meta, err := s.meta.Load(ctx, s.schema, s.table)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "table %s not found", s.table)
	}
	for _, col := range columns {
		if _, ok := meta.Column(col); !ok {
			return nil, s.errorf(etlkit.ErrCodeNotFound, "column %q not found in table %s", col, s.table)
		}
	}
	return meta, nil
}

// Clean deletes the rows of the bound table matching conditions combined
// with op. No conditions deletes every row.
func (s *SQLStore) Clean(ctx context.Context, conditions []etlkit.Condition, op etlkit.BinaryOp) (int64, error) {
	columns := lo.Map(conditions, func(c etlkit.Condition, _ int) string { return c.Column })
	if _, err := s.boundTable(ctx, columns...); err != nil {
		return 0, err
	}

	preds := make([]sq.Sqlizer, 0, len(conditions))
	for _, c := range conditions {
		p, err := s.predicate(c)
		if err != nil {
			return 0, err
		}
		preds = append(preds, p)
	}

	q := s.engine.dialect.Builder().Delete(s.qualified())
	if len(preds) > 0 {
		if op == etlkit.BinaryOr {
			q = q.Where(sq.Or(preds))
		} else {
			q = q.Where(sq.And(preds))
		}
	}
	return s.execCount(ctx, q)
}

func (s *SQLStore) predicate(c etlkit.Condition) (sq.Sqlizer, error) {
	if err := c.Validate(); err != nil {
		return nil, withStore(err, s.name)
	}
	col := s.engine.dialect.Quote(c.Column)
	v := toDBValue(c.Value)

	switch c.Op {
	case etlkit.OpEQ, etlkit.OpIn, etlkit.OpIs:
		return sq.Eq{col: v}, nil
	case etlkit.OpNE, etlkit.OpNotIn, etlkit.OpIsNot:
		return sq.NotEq{col: v}, nil
	case etlkit.OpLT:
		return sq.Lt{col: v}, nil
	case etlkit.OpLE:
		return sq.LtOrEq{col: v}, nil
	case etlkit.OpGT:
		return sq.Gt{col: v}, nil
	case etlkit.OpGE:
		return sq.GtOrEq{col: v}, nil
	case etlkit.OpLike:
		return sq.Like{col: v}, nil
	case etlkit.OpNotLike:
		return sq.NotLike{col: v}, nil
	case etlkit.OpILike:
		if s.engine.dialect == DialectPostgres {
			return sq.ILike{col: v}, nil
		}
		return sq.Like{col: v}, nil
	}
	return nil, s.errorf(etlkit.ErrCodeNotSupported, "operator %q cannot be resolved", c.Op)
}

// Update sets values on the rows of the bound table whose where columns
// equal the given values. Several where columns are combined with AND.
func (s *SQLStore) Update(ctx context.Context, values, where map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, s.errorf(etlkit.ErrCodeConfig, "update needs at least one value")
	}
	if len(where) == 0 {
		return 0, s.errorf(etlkit.ErrCodeNotSupported, "update without a where clause")
	}
	columns := append(lo.Keys(values), lo.Keys(where)...)
	if _, err := s.boundTable(ctx, columns...); err != nil {
		return 0, err
	}

	set := make(map[string]any, len(values))
	for k, v := range values {
		set[s.engine.dialect.Quote(k)] = toDBValue(v)
	}
	eq := sq.Eq{}
	for k, v := range where {
		eq[s.engine.dialect.Quote(k)] = toDBValue(v)
	}

	q := s.engine.dialect.Builder().Update(s.qualified()).SetMap(set).Where(eq)
	return s.execCount(ctx, q)
}

// Transform applies fn to the store
func (s *SQLStore) Transform(ctx context.Context, fn etlkit.StoreFunc) (any, error) {
	return fn(ctx, s)
}

// Tables reflects the catalog again and returns every table, or only the
// named ones
func (s *SQLStore) Tables(ctx context.Context, only ...string) ([]etlkit.TableMeta, error) {
	if err := s.meta.Reflect(ctx, only...); err != nil {
		return nil, err
	}
	return s.meta.Tables(), nil
}

// GetTable returns a table's metadata from the cache, reflecting it when
// autoload is set and it is not cached yet
func (s *SQLStore) GetTable(ctx context.Context, name, schema string, autoload bool) (*etlkit.TableMeta, error) {
	if t, ok := s.meta.Table(schema, name); ok {
		return t, nil
	}
	if !autoload {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "table %s not in catalog", name)
	}
	t, err := s.meta.Load(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "table %s not found", name)
	}
	return t, nil
}

// Close closes the engine when the store opened it
func (s *SQLStore) Close() error {
	if !s.ownsEngine {
		return nil
	}
	return s.engine.Close()
}

// readRows materializes a result set. Declared column types take precedence
// over the types of the scanned values.
func readRows(rows *sql.Rows) (*table.Table, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	values := make([][]any, len(colTypes))
	dest := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, ct := range colTypes {
			values[i] = append(values[i], fromDBValue(dest[i], ct.DatabaseTypeName()))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	cols := make([]*table.Column, len(colTypes))
	for i, ct := range colTypes {
		if values[i] == nil {
			values[i] = []any{}
		}
		cols[i] = table.NewColumn(ct.Name(), values[i])
		if dt := columnTypeOf(ct.DatabaseTypeName()); dt != nil {
			if typed, err := table.NewTypedColumn(ct.Name(), dt, values[i]); err == nil {
				cols[i] = typed
			}
		}
	}
	t, err := table.New(cols...)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func columnTypeOf(dbType string) arrow.DataType {
	switch strings.ToUpper(dbType) {
	case "INTEGER", "INT", "INT2", "INT4", "INT8", "BIGINT", "SMALLINT", "SERIAL", "BIGSERIAL":
		return table.Int64
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return table.Float64
	case "BOOLEAN", "BOOL":
		return table.Bool
	case "TEXT", "VARCHAR", "CHAR", "BPCHAR", "NAME", "UUID", "CHARACTER VARYING":
		return table.String
	case "BLOB", "BYTEA":
		return table.Binary
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "DATE":
		return table.Timestamp
	}
	return nil
}

func fromDBValue(v any, dbType string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		if t := columnTypeOf(dbType); t != nil && arrow.TypeEqual(t, table.Binary) {
			return append([]byte(nil), x...)
		}
		return string(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

func toDBValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}
