// Package store provides the store kinds a pipeline can register.
// The Store contract is defined in the parent etlkit package
// (../store_interface.go) to avoid import cycles between the two packages.
//
// This package contains concrete implementations:
//   - SQLStore: relational databases through database/sql (postgres, sqlite)
//   - HDFStore: a single keyed table persisted as a Parquet file
//   - MemoryStore: a table held in process memory
//   - DynamoDBStore: a table persisted in an AWS DynamoDB single-table layout
package store

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

// Store kinds
const (
	KindSQL      = "sql"
	KindHDF      = "hdf"
	KindMemory   = "memory"
	KindDynamoDB = "dynamodb"
)

// Kinds returns the registration table of every store kind in this package
func Kinds() map[string]etlkit.StoreFactory {
	return map[string]etlkit.StoreFactory{
		KindSQL:      factory(NewSQLStore),
		KindHDF:      factory(NewHDFStore),
		KindMemory:   factory(NewMemoryStore),
		KindDynamoDB: factory(NewDynamoDBStore),
	}
}

func factory[S etlkit.Store](fn func(string, etlkit.StoreType, etlkit.StoreConfig, zerolog.Logger) (S, error)) etlkit.StoreFactory {
	return func(name string, stype etlkit.StoreType, cfg etlkit.StoreConfig, logger zerolog.Logger) (etlkit.Store, error) {
		s, err := fn(name, stype, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// base holds the state shared by every store kind
type base struct {
	name   string
	stype  etlkit.StoreType
	kind   string
	logger zerolog.Logger
	data   *table.Table
}

func newBase(kind, name string, stype etlkit.StoreType, logger zerolog.Logger) (base, error) {
	if name == "" {
		return base{}, etlkit.NewError(etlkit.ErrCodeConfig, "store name is empty")
	}
	if !stype.Valid() {
		return base{}, etlkit.Errorf(etlkit.ErrCodeConfig, "store type %q needs to be one of %v", stype, etlkit.StoreTypes).WithStore(name)
	}
	return base{name: name, stype: stype, kind: kind, logger: logger}, nil
}

// Name returns the store name
func (b *base) Name() string {
	return b.name
}

// Type returns the store type
func (b *base) Type() etlkit.StoreType {
	return b.stype
}

// Kind returns the store kind
func (b *base) Kind() string {
	return b.kind
}

// Data returns the last extracted or loaded table
func (b *base) Data() *table.Table {
	return b.data
}

func (b *base) checkExtract() error {
	if !b.stype.CanExtract() {
		return b.errorf(etlkit.ErrCodeStypeViolation, "cannot extract from a %s store", b.stype)
	}
	return nil
}

func (b *base) checkLoad(data *table.Table) error {
	if !b.stype.CanLoad() {
		return b.errorf(etlkit.ErrCodeStypeViolation, "cannot load into a %s store", b.stype)
	}
	if data == nil {
		return b.errorf(etlkit.ErrCodeEmptyData, "no data to load")
	}
	return nil
}

func (b *base) errorf(code, format string, args ...any) *etlkit.Error {
	return etlkit.Errorf(code, format, args...).WithStore(b.name)
}

func overwrite(opts etlkit.LoadOptions) bool {
	return opts.Overwrite || opts.IfExists == etlkit.IfExistsReplace
}

func parseDates(t *table.Table, columns []string) error {
	for _, col := range columns {
		if _, ok := t.Column(col); !ok {
			return etlkit.Errorf(etlkit.ErrCodeNotFound, "column %q not found", col)
		}
		if err := t.ToDatetime(col); err != nil {
			return etlkit.Errorf(etlkit.ErrCodeConfig, "failed to convert column %q to datetime", col).Wrap(err)
		}
	}
	return nil
}

// withStore attaches the store name to an *etlkit.Error that has none
func withStore(err error, name string) error {
	var e *etlkit.Error
	if errors.As(err, &e) && e.Store == "" {
		e.Store = name
	}
	return err
}
