package etlkit

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit/table"
)

// Pipeline owns a registry of stores and the current in-memory table.
// A Pipeline is confined to one goroutine.
type Pipeline struct {
	id        string
	datastore *DataStore
	data      *table.Table
	kinds     map[string]StoreFactory
	logger    zerolog.Logger
}

// New creates a pipeline with no store kinds registered. Pass the kinds of
// the store package, etlkit.New(etlkit.WithKinds(store.Kinds())), or build
// through builder.NewPipeline, which registers them by default. Without
// kinds AddSource fails with a ConfigError.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		id:        uuid.NewString(),
		datastore: NewDataStore(),
		kinds:     make(map[string]StoreFactory),
		logger:    DefaultLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}
	p.logger = PipelineLogger(p.logger, p.id)

	return p
}

// ID returns the pipeline ID
func (p *Pipeline) ID() string {
	return p.id
}

// Logger returns the pipeline logger
func (p *Pipeline) Logger() zerolog.Logger {
	return p.logger
}

// DataStore returns the store registry
func (p *Pipeline) DataStore() *DataStore {
	return p.datastore
}

// Kinds returns the registered store kinds in sorted order
func (p *Pipeline) Kinds() []string {
	return slices.Sorted(maps.Keys(p.kinds))
}

// Data returns the current table, nil until a saving extract or concat
func (p *Pipeline) Data() *table.Table {
	return p.data
}

// SetData replaces the current table
func (p *Pipeline) SetData(data *table.Table) {
	p.data = data
}

// Store returns the named store
func (p *Pipeline) Store(name string) (Store, error) {
	return p.datastore.Get(name)
}

// AddSource constructs a store of the given kind and registers it under name
func (p *Pipeline) AddSource(kind, name string, stype StoreType, cfg StoreConfig) (Store, error) {
	factory, ok := p.kinds[strings.ToLower(kind)]
	if !ok {
		return nil, NewStoreError(ErrCodeConfig, name, "unknown store kind "+kind)
	}
	if !stype.Valid() {
		return nil, Errorf(ErrCodeConfig, "store type %q needs to be one of %v", stype, StoreTypes).WithStore(name)
	}
	if p.datastore.Exists(name) {
		return nil, NewStoreError(ErrCodeDuplicateName, name, "store already registered")
	}

	store, err := factory(name, stype, cfg, StoreLogger(p.logger, name, kind))
	if err != nil {
		return nil, err
	}
	if err := p.datastore.Add(name, store); err != nil {
		_ = store.Close()
		return nil, err
	}

	LogStoreAdded(p.logger, name, kind, stype)
	return store, nil
}

// Configure registers every source declared in cfg. Either all sources are
// added or none are.
func (p *Pipeline) Configure(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
		p.logger = p.logger.Level(lvl)
	}

	added := make([]string, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		stype, err := ParseStoreType(src.Type)
		if err == nil {
			_, err = p.AddSource(src.Kind, src.Name, stype, src.StoreConfig)
		}
		if err != nil {
			for _, name := range added {
				_ = p.DelSource(name)
			}
			return err
		}
		added = append(added, src.Name)
	}
	return nil
}

// DelSource removes the named store and releases its resources
func (p *Pipeline) DelSource(name string) error {
	store, err := p.datastore.Delete(name)
	if err != nil {
		return err
	}
	LogStoreRemoved(p.logger, name)

	err = store.Close()
	LogStoreClosed(p.logger, name, err)
	return err
}

// Close releases every registered store and empties the registry
func (p *Pipeline) Close() error {
	var errs []error
	for _, name := range p.datastore.Names() {
		if err := p.DelSource(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Extract reads from the named store. When save is set the result becomes
// the current table.
func (p *Pipeline) Extract(ctx context.Context, name string, req ExtractRequest, save bool) (*table.Table, error) {
	store, err := p.datastore.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := store.Extract(ctx, req)
	if err != nil {
		LogOperationFailed(p.logger, "extract", name, err)
		return nil, err
	}
	rows, cols := data.Shape()
	LogExtractCompleted(p.logger, name, rows, cols, time.Since(start))

	if save {
		p.data = data
	}
	return data, nil
}

// Load writes the current table into the named store
func (p *Pipeline) Load(ctx context.Context, name string, opts LoadOptions) (int, error) {
	store, err := p.datastore.Get(name)
	if err != nil {
		return 0, err
	}
	if p.data == nil {
		return 0, NewStoreError(ErrCodeEmptyData, name, "no data loaded")
	}

	start := time.Now()
	n, err := store.Load(ctx, p.data, opts)
	if err != nil {
		LogOperationFailed(p.logger, "load", name, err)
		return n, err
	}
	LogLoadCompleted(p.logger, name, n, time.Since(start))
	return n, nil
}

// Clean deletes rows of the named store matching conditions
func (p *Pipeline) Clean(ctx context.Context, name string, conditions []Condition, op BinaryOp) (int64, error) {
	store, err := p.datastore.Get(name)
	if err != nil {
		return 0, err
	}
	cleaner, ok := store.(Cleaner)
	if !ok {
		return 0, NewStoreError(ErrCodeNotSupported, name, store.Kind()+" stores do not support clean")
	}

	n, err := cleaner.Clean(ctx, conditions, op)
	if err != nil {
		LogOperationFailed(p.logger, "clean", name, err)
		return 0, err
	}
	LogCleanCompleted(p.logger, name, n)
	return n, nil
}

// Update sets values on rows of the named store matching where
func (p *Pipeline) Update(ctx context.Context, name string, values, where map[string]any) (int64, error) {
	store, err := p.datastore.Get(name)
	if err != nil {
		return 0, err
	}
	updater, ok := store.(Updater)
	if !ok {
		return 0, NewStoreError(ErrCodeNotSupported, name, store.Kind()+" stores do not support update")
	}

	n, err := updater.Update(ctx, values, where)
	if err != nil {
		LogOperationFailed(p.logger, "update", name, err)
		return 0, err
	}
	LogUpdateCompleted(p.logger, name, n)
	return n, nil
}

// Transform applies fn to the pipeline
func (p *Pipeline) Transform(ctx context.Context, fn PipelineFunc) error {
	if fn == nil {
		return NewError(ErrCodeConfig, "transform function is nil")
	}
	if err := fn(ctx, p); err != nil {
		LogOperationFailed(p.logger, "transform", "", err)
		return err
	}
	LogTransformCompleted(p.logger, "")
	return nil
}

// TransformStore applies fn to the named store
func (p *Pipeline) TransformStore(ctx context.Context, name string, fn StoreFunc) (any, error) {
	if fn == nil {
		return nil, NewStoreError(ErrCodeConfig, name, "transform function is nil")
	}
	store, err := p.datastore.Get(name)
	if err != nil {
		return nil, err
	}
	transformer, ok := store.(Transformer)
	if !ok {
		return nil, NewStoreError(ErrCodeNotSupported, name, store.Kind()+" stores do not support transform")
	}

	out, err := transformer.Transform(ctx, fn)
	if err != nil {
		LogOperationFailed(p.logger, "transform", name, err)
		return nil, err
	}
	LogTransformCompleted(p.logger, name)
	return out, nil
}

// Tables reflects the tables of the named store
func (p *Pipeline) Tables(ctx context.Context, name string, only ...string) ([]TableMeta, error) {
	store, err := p.datastore.Get(name)
	if err != nil {
		return nil, err
	}
	catalog, ok := store.(Cataloger)
	if !ok {
		return nil, NewStoreError(ErrCodeNotSupported, name, store.Kind()+" stores do not expose a catalog")
	}
	return catalog.Tables(ctx, only...)
}

// AddColumn sets or overwrites a column of the current table
func (p *Pipeline) AddColumn(name string, values []any) error {
	if p.data == nil {
		return NewError(ErrCodeEmptyData, "no data loaded")
	}
	if err := p.data.SetColumn(name, values); err != nil {
		return NewError(ErrCodeConfig, "failed to set column "+name).Wrap(err)
	}
	return nil
}

// ToDatetime converts the named columns of the current table to timestamps.
// The current table is left unchanged when any column fails to parse.
func (p *Pipeline) ToDatetime(columns ...string) error {
	if p.data == nil {
		return NewError(ErrCodeEmptyData, "no data loaded")
	}

	out := p.data.Clone()
	for _, col := range columns {
		if _, ok := out.Column(col); !ok {
			return Errorf(ErrCodeNotFound, "column %q not found", col)
		}
		if err := out.ToDatetime(col); err != nil {
			return Errorf(ErrCodeConfig, "failed to convert column %q to datetime", col).Wrap(err)
		}
	}
	p.data = out
	return nil
}

// Concat vertically concatenates the cached tables of the named stores.
// When save is set the result becomes the current table.
func (p *Pipeline) Concat(names []string, save bool) (*table.Table, error) {
	if len(names) == 0 {
		return nil, NewError(ErrCodeConfig, "concat needs at least one store")
	}

	parts := make([]*table.Table, 0, len(names))
	for _, name := range names {
		data, err := p.datastore.GetData(name)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, NewStoreError(ErrCodeEmptyData, name, "store holds no data")
		}
		parts = append(parts, data)
	}

	out, err := table.Concat(parts...)
	if err != nil {
		return nil, NewError(ErrCodeConfig, "failed to concat tables").Wrap(err)
	}
	LogConcatCompleted(p.logger, names, out.NumRows())

	if save {
		p.data = out
	}
	return out, nil
}

// Show returns the first n rows of the current table and its full shape
func (p *Pipeline) Show(n int) (*table.Table, int, int, error) {
	if p.data == nil {
		return nil, 0, 0, NewError(ErrCodeEmptyData, "no data loaded")
	}
	rows, cols := p.data.Shape()
	return p.data.Head(n), rows, cols, nil
}
