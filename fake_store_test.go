package etlkit

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit/table"
)

// fakeStore is an in-memory store used by the root package tests
type fakeStore struct {
	name   string
	stype  StoreType
	data   *table.Table
	closed int
	err    error
}

func (f *fakeStore) Name() string { return f.name }
func (f *fakeStore) Type() StoreType { return f.stype }
func (f *fakeStore) Kind() string { return "fake" }
func (f *fakeStore) Data() *table.Table { return f.data }
func (f *fakeStore) Close() error { f.closed++; return f.err }

func (f *fakeStore) Extract(ctx context.Context, req ExtractRequest) (*table.Table, error) {
	if !f.stype.CanExtract() {
		return nil, NewStoreError(ErrCodeStypeViolation, f.name, "cannot extract from a target")
	}
	if f.data == nil {
		return nil, NewStoreError(ErrCodeNotFound, f.name, "nothing stored")
	}
	return f.data, nil
}

func (f *fakeStore) Load(ctx context.Context, data *table.Table, opts LoadOptions) (int, error) {
	if !f.stype.CanLoad() {
		return 0, NewStoreError(ErrCodeStypeViolation, f.name, "cannot load into a source")
	}
	f.data = data.Clone()
	return data.NumRows(), nil
}

// cleanableStore adds Clean and Transform to fakeStore
type cleanableStore struct {
	fakeStore
	lastConditions []Condition
	lastOp         BinaryOp
}

func (c *cleanableStore) Clean(ctx context.Context, conditions []Condition, op BinaryOp) (int64, error) {
	c.lastConditions = conditions
	c.lastOp = op
	return 2, nil
}

func (c *cleanableStore) Transform(ctx context.Context, fn StoreFunc) (any, error) {
	return fn(ctx, c)
}

func fakeFactory(name string, stype StoreType, cfg StoreConfig, logger zerolog.Logger) (Store, error) {
	if cfg.OptBool("fail", false) {
		return nil, NewStoreError(ErrCodeConfig, name, "factory failure")
	}
	if cfg.OptBool("cleanable", false) {
		return &cleanableStore{fakeStore: fakeStore{name: name, stype: stype}}, nil
	}
	return &fakeStore{name: name, stype: stype}, nil
}

func newTestPipeline() *Pipeline {
	return New(
		WithLogger(zerolog.New(io.Discard)),
		WithKind("fake", fakeFactory),
	)
}

func mustTable(columns []string, rows [][]any) *table.Table {
	t, err := table.FromRows(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}
