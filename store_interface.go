package etlkit

import (
	"context"

	"github.com/sicko7947/etlkit/table"
)

// Store defines the extract/load contract every store kind implements
type Store interface {
	Name() string
	Type() StoreType
	Kind() string

	// Data returns the last extracted or loaded table, nil before either
	Data() *table.Table

	// Extract reads from the backing store into memory and caches the result
	Extract(ctx context.Context, req ExtractRequest) (*table.Table, error)

	// Load writes data into the backing store and returns the rows written
	Load(ctx context.Context, data *table.Table, opts LoadOptions) (int, error)

	// Close releases connections and handles the store opened
	Close() error
}

// Cleaner deletes rows matching a set of conditions
type Cleaner interface {
	Clean(ctx context.Context, conditions []Condition, op BinaryOp) (int64, error)
}

// Updater sets column values on rows matching an equality filter
type Updater interface {
	Update(ctx context.Context, values, where map[string]any) (int64, error)
}

// Transformer applies caller logic to the store itself
type Transformer interface {
	Transform(ctx context.Context, fn StoreFunc) (any, error)
}

// Cataloger reflects the tables held by a store
type Cataloger interface {
	Tables(ctx context.Context, only ...string) ([]TableMeta, error)
	GetTable(ctx context.Context, name, schema string, autoload bool) (*TableMeta, error)
}

// StoreFunc is caller logic run against a single store
type StoreFunc func(ctx context.Context, s Store) (any, error)

// PipelineFunc is caller logic run against the whole pipeline
type PipelineFunc func(ctx context.Context, p *Pipeline) error

// TableMeta describes a reflected table
type TableMeta struct {
	Schema  string       `json:"schema,omitempty"`
	Name    string       `json:"name"`
	Kind    string       `json:"kind"`
	Columns []ColumnMeta `json:"columns"`
}

// ColumnMeta describes a reflected column
type ColumnMeta struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Column returns the named column metadata
func (t *TableMeta) Column(name string) (ColumnMeta, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// FullName returns schema.name, or name when no schema is set
func (t *TableMeta) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
