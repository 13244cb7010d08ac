package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rs/zerolog"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

// MetadataKey is the file metadata entry holding the key of the stored table
const MetadataKey = "etlkit.key"

const defaultRowGroupSize = 64 * 1024

// HDFStore keeps exactly one keyed table in a Parquet file at path/filename
type HDFStore struct {
	base
	path     string
	filename string
	key      string
	codec    compress.Compression
	mem      memory.Allocator
}

// NewHDFStore creates a file store. cfg.Path is required, cfg.Filename
// defaults to the store name and cfg.Key to "df". The compression option
// selects snappy (default), gzip, zstd or none.
func NewHDFStore(name string, stype etlkit.StoreType, cfg etlkit.StoreConfig, logger zerolog.Logger) (*HDFStore, error) {
	b, err := newBase(KindHDF, name, stype, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, b.errorf(etlkit.ErrCodeConfig, "hdf stores need a path")
	}

	codec, err := parseCodec(cfg.OptString("compression", "snappy"))
	if err != nil {
		return nil, withStore(err, name)
	}

	s := &HDFStore{
		base:     b,
		path:     cfg.Path,
		filename: cfg.Filename,
		key:      cfg.Key,
		codec:    codec,
		mem:      memory.DefaultAllocator,
	}
	if s.filename == "" {
		s.filename = name
	}
	if s.key == "" {
		s.key = etlkit.DefaultHDFKey
	}
	if alloc, ok := cfg.Conn.(memory.Allocator); ok {
		s.mem = alloc
	}
	return s, nil
}

func parseCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	}
	return compress.Codecs.Uncompressed, etlkit.Errorf(etlkit.ErrCodeConfig, "unknown compression %q", name)
}

// FullPath returns the path of the backing file
func (s *HDFStore) FullPath() string {
	return filepath.Join(s.path, s.filename)
}

// Key returns the key the table is stored under
func (s *HDFStore) Key() string {
	return s.key
}

// Exists reports whether the backing file exists
func (s *HDFStore) Exists() bool {
	info, err := os.Stat(s.FullPath())
	return err == nil && !info.IsDir()
}

// Extract reads the keyed table from the file. Once read the table is cached
// and later calls return the cached table as long as the file exists.
func (s *HDFStore) Extract(ctx context.Context, req etlkit.ExtractRequest) (*table.Table, error) {
	if err := s.checkExtract(); err != nil {
		return nil, err
	}
	if !s.Exists() {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "file %s does not exist", s.FullPath())
	}
	if s.data != nil {
		return s.data, nil
	}

	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 {
		data = data.Head(req.Limit)
	}
	if err := parseDates(data, req.ParseDates); err != nil {
		return nil, withStore(err, s.name)
	}

	s.data = data
	return data, nil
}

func (s *HDFStore) read(ctx context.Context) (*table.Table, error) {
	f, err := os.Open(s.FullPath())
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to open file: %w", s.name, err)
	}
	defer f.Close()

	rdr, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to read parquet file: %w", s.name, err)
	}
	defer rdr.Close()

	if key := rdr.MetaData().KeyValueMetadata().FindValue(MetadataKey); key != nil && *key != s.key {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "key %q not found in %s", s.key, s.FullPath())
	}

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, s.mem)
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to open arrow reader: %w", s.name, err)
	}
	at, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to read table: %w", s.name, err)
	}
	defer at.Release()

	data, err := table.FromArrow(at)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", s.name, err)
	}
	return data, nil
}

// Load writes data to the file. An existing file is only replaced when
// overwrite is requested.
func (s *HDFStore) Load(ctx context.Context, data *table.Table, opts etlkit.LoadOptions) (int, error) {
	if err := s.checkLoad(data); err != nil {
		return 0, err
	}
	if s.Exists() && !overwrite(opts) {
		return 0, s.errorf(etlkit.ErrCodeConflict, "file %s already exists", s.FullPath())
	}

	if err := s.write(data); err != nil {
		return 0, err
	}
	etlkit.LogFileWritten(s.logger, s.name, s.FullPath(), data.NumRows())

	s.data = data
	return data.NumRows(), nil
}

func (s *HDFStore) write(data *table.Table) error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("store %s: failed to create directory: %w", s.name, err)
	}

	md := arrow.NewMetadata([]string{MetadataKey}, []string{s.key})
	at, err := data.ToArrow(s.mem, &md)
	if err != nil {
		return s.errorf(etlkit.ErrCodeConfig, "failed to convert table").Wrap(err)
	}
	defer at.Release()

	tmp, err := os.CreateTemp(s.path, "."+s.filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("store %s: failed to create temp file: %w", s.name, err)
	}
	defer os.Remove(tmp.Name())

	props := parquet.NewWriterProperties(
		parquet.WithCompression(s.codec),
		parquet.WithAllocator(s.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	if err := pqarrow.WriteTable(at, tmp, defaultRowGroupSize, props, arrowProps); err != nil {
		tmp.Close()
		return fmt.Errorf("store %s: failed to write parquet: %w", s.name, err)
	}
	if err := tmp.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("store %s: failed to close temp file: %w", s.name, err)
	}

	if err := os.Rename(tmp.Name(), s.FullPath()); err != nil {
		return fmt.Errorf("store %s: failed to move file into place: %w", s.name, err)
	}
	return nil
}

// Transform applies fn to the store
func (s *HDFStore) Transform(ctx context.Context, fn etlkit.StoreFunc) (any, error) {
	return fn(ctx, s)
}

// Close drops the cached table
func (s *HDFStore) Close() error {
	s.data = nil
	return nil
}
