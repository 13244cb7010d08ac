package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

// MemoryStore keeps one table in process memory (useful for staging and tests)
type MemoryStore struct {
	base
	stored *table.Table
	mu     sync.RWMutex
}

// NewMemoryStore creates an in-memory store. cfg.Conn may hold a
// *table.Table used as the initial content.
func NewMemoryStore(name string, stype etlkit.StoreType, cfg etlkit.StoreConfig, logger zerolog.Logger) (*MemoryStore, error) {
	b, err := newBase(KindMemory, name, stype, logger)
	if err != nil {
		return nil, err
	}

	s := &MemoryStore{base: b}
	switch seed := cfg.Conn.(type) {
	case nil:
	case *table.Table:
		s.stored = seed.Clone()
	default:
		return nil, b.errorf(etlkit.ErrCodeConfig, "conn of type %T is not a table", cfg.Conn)
	}
	return s, nil
}

// Extract returns a copy of the stored table
func (s *MemoryStore) Extract(ctx context.Context, req etlkit.ExtractRequest) (*table.Table, error) {
	if err := s.checkExtract(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stored == nil {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "nothing stored")
	}

	data := s.stored.Clone()
	if req.Limit > 0 {
		data = data.Head(req.Limit)
	}
	if err := parseDates(data, req.ParseDates); err != nil {
		return nil, withStore(err, s.name)
	}

	s.data = data
	return data, nil
}

// Load replaces the stored table. A stored table is only replaced when
// overwrite is requested; IfExists append concatenates instead.
func (s *MemoryStore) Load(ctx context.Context, data *table.Table, opts etlkit.LoadOptions) (int, error) {
	if err := s.checkLoad(data); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stored == nil || overwrite(opts):
		s.stored = data.Clone()
	case opts.IfExists == etlkit.IfExistsAppend:
		merged, err := table.Concat(s.stored, data)
		if err != nil {
			return 0, s.errorf(etlkit.ErrCodeConfig, "failed to append").Wrap(err)
		}
		s.stored = merged
	default:
		return 0, s.errorf(etlkit.ErrCodeConflict, "store already holds data")
	}

	s.data = data
	return data.NumRows(), nil
}

// Clean removes the stored rows matching conditions combined with op
func (s *MemoryStore) Clean(ctx context.Context, conditions []etlkit.Condition, op etlkit.BinaryOp) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stored == nil {
		return 0, s.errorf(etlkit.ErrCodeNotFound, "nothing stored")
	}
	for _, c := range conditions {
		if _, ok := s.stored.Column(c.Column); !ok {
			return 0, s.errorf(etlkit.ErrCodeNotFound, "column %q not found", c.Column)
		}
	}

	kept, err := s.stored.Filter(func(row map[string]any) (bool, error) {
		matched, err := etlkit.MatchAll(row, conditions, op)
		return !matched, err
	})
	if err != nil {
		return 0, withStore(err, s.name)
	}

	deleted := int64(s.stored.NumRows() - kept.NumRows())
	s.stored = kept
	return deleted, nil
}

// Update sets values on the stored rows whose where columns equal the
// given values
func (s *MemoryStore) Update(ctx context.Context, values, where map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, s.errorf(etlkit.ErrCodeConfig, "update needs at least one value")
	}
	if len(where) == 0 {
		return 0, s.errorf(etlkit.ErrCodeNotSupported, "update without a where clause")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stored == nil {
		return 0, s.errorf(etlkit.ErrCodeNotFound, "nothing stored")
	}

	conditions := make([]etlkit.Condition, 0, len(where))
	for col, v := range where {
		conditions = append(conditions, etlkit.Condition{Column: col, Op: etlkit.OpEQ, Value: v})
	}

	matched := make([]int, 0)
	for i := 0; i < s.stored.NumRows(); i++ {
		ok, err := etlkit.MatchAll(s.stored.RowMap(i), conditions, etlkit.BinaryAnd)
		if err != nil {
			return 0, withStore(err, s.name)
		}
		if ok {
			matched = append(matched, i)
		}
	}

	out := s.stored.Clone()
	for col, v := range values {
		existing, ok := out.Column(col)
		if !ok {
			return 0, s.errorf(etlkit.ErrCodeNotFound, "column %q not found", col)
		}
		next := make([]any, existing.Len())
		copy(next, existing.Values)
		for _, i := range matched {
			next[i] = v
		}
		typed, err := table.NewTypedColumn(col, existing.Type, next)
		if err != nil {
			return 0, s.errorf(etlkit.ErrCodeConfig, "value for %q does not fit the column", col).Wrap(err)
		}
		if err := out.PutColumn(typed); err != nil {
			return 0, s.errorf(etlkit.ErrCodeConfig, "failed to set column %q", col).Wrap(err)
		}
	}

	s.stored = out
	return int64(len(matched)), nil
}

// Transform applies fn to the store
func (s *MemoryStore) Transform(ctx context.Context, fn etlkit.StoreFunc) (any, error) {
	return fn(ctx, s)
}

// Snapshot returns a copy of the stored table, nil when nothing is stored
func (s *MemoryStore) Snapshot() *table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stored == nil {
		return nil
	}
	return s.stored.Clone()
}

// Close drops the stored table
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stored = nil
	s.data = nil
	return nil
}
