package store

import (
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/apache/arrow-go/v18/arrow"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

// Connection pool defaults
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

// Dialect identifies the SQL flavour spoken by an engine
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Builder returns a squirrel statement builder using the dialect's placeholders
func (d Dialect) Builder() sq.StatementBuilderType {
	if d == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// Quote quotes an identifier
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Qualify quotes and joins a schema and table name
func (d Dialect) Qualify(schema, name string) string {
	if schema == "" {
		return d.Quote(name)
	}
	return d.Quote(schema) + "." + d.Quote(name)
}

// ColumnType returns the column definition type for a table column type
func (d Dialect) ColumnType(dt arrow.DataType) string {
	switch {
	case arrow.TypeEqual(dt, table.Int64):
		if d == DialectPostgres {
			return "BIGINT"
		}
		return "INTEGER"
	case arrow.TypeEqual(dt, table.Float64):
		if d == DialectPostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case arrow.TypeEqual(dt, table.Bool):
		return "BOOLEAN"
	case arrow.TypeEqual(dt, table.Binary):
		if d == DialectPostgres {
			return "BYTEA"
		}
		return "BLOB"
	case arrow.TypeEqual(dt, table.Timestamp):
		if d == DialectPostgres {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Engine is a database handle paired with its dialect
type Engine struct {
	db      *sql.DB
	dialect Dialect
}

// NewEngine wraps an already opened database
func NewEngine(db *sql.DB, dialect Dialect) *Engine {
	return &Engine{db: db, dialect: dialect}
}

// OpenEngine opens a database from a connection URL.
//
// postgres:// and postgresql:// URLs use the pgx driver unless the driver
// option is "postgres", which selects lib/pq. sqlite://<path>, file: DSNs
// and :memory: use the pure Go sqlite driver pinned to a single connection.
func OpenEngine(url string, cfg etlkit.StoreConfig) (*Engine, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = cfg.OptString("driver", "")
	}

	var (
		dialect Dialect
		dsn     string
	)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		dialect, dsn = DialectPostgres, url
		switch driver {
		case "", "pgx":
			driver = "pgx"
		case "postgres", "pq":
			driver = "postgres"
		default:
			return nil, etlkit.Errorf(etlkit.ErrCodeConfig, "driver %q cannot serve postgres urls", driver)
		}
	case strings.HasPrefix(url, "sqlite://"):
		dialect, dsn, driver = DialectSQLite, strings.TrimPrefix(url, "sqlite://"), "sqlite"
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		dialect, dsn, driver = DialectSQLite, url, "sqlite"
	default:
		return nil, etlkit.Errorf(etlkit.ErrCodeConfig, "unsupported connection url %q", redact(url))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, etlkit.NewError(etlkit.ErrCodeConfig, "failed to open database").Wrap(err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.OptInt("max_open_conns", DefaultMaxOpenConns))
		db.SetMaxIdleConns(cfg.OptInt("max_idle_conns", DefaultMaxIdleConns))
		db.SetConnMaxLifetime(cfg.OptDuration("conn_max_lifetime", DefaultConnMaxLifetime))
	}

	return NewEngine(db, dialect), nil
}

// DB returns the database handle
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Dialect returns the engine dialect
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// Close closes the database handle
func (e *Engine) Close() error {
	return e.db.Close()
}

// redact hides the password of a connection url
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	creds := url[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return url[:scheme+3] + creds[:colon] + ":***" + url[at:]
	}
	return url
}
