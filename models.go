package etlkit

import (
	"strings"

	"github.com/samber/lo"
)

// StoreType governs which operations are legal on a store
type StoreType string

const (
	StoreTypeSource  StoreType = "source"
	StoreTypeTarget  StoreType = "target"
	StoreTypeStaging StoreType = "staging"
)

// StoreTypes lists every valid store type
var StoreTypes = []StoreType{StoreTypeSource, StoreTypeTarget, StoreTypeStaging}

// ParseStoreType validates a store type string
func ParseStoreType(s string) (StoreType, error) {
	st := StoreType(strings.ToLower(strings.TrimSpace(s)))
	if !lo.Contains(StoreTypes, st) {
		return "", Errorf(ErrCodeConfig, "store type %q needs to be one of %v", s, StoreTypes)
	}
	return st, nil
}

// Valid returns true for source, target and staging
func (s StoreType) Valid() bool {
	return lo.Contains(StoreTypes, s)
}

// CanExtract returns false for targets
func (s StoreType) CanExtract() bool {
	return s != StoreTypeTarget
}

// CanLoad returns false for sources
func (s StoreType) CanLoad() bool {
	return s != StoreTypeSource
}

// RequiresTable returns true for store types that write to a bound table
func (s StoreType) RequiresTable() bool {
	return s == StoreTypeTarget || s == StoreTypeStaging
}

// String returns the string representation
func (s StoreType) String() string {
	return string(s)
}

// IfExists controls what a load does when the destination already holds data
type IfExists string

const (
	IfExistsAppend  IfExists = "append"
	IfExistsReplace IfExists = "replace"
	IfExistsFail    IfExists = "fail"
)

// ParseIfExists validates an if_exists value; "" means append
func ParseIfExists(s string) (IfExists, error) {
	switch IfExists(strings.ToLower(s)) {
	case "", IfExistsAppend:
		return IfExistsAppend, nil
	case IfExistsReplace:
		return IfExistsReplace, nil
	case IfExistsFail:
		return IfExistsFail, nil
	}
	return "", Errorf(ErrCodeConfig, "if_exists %q needs to be one of append, replace, fail", s)
}

// ExtractRequest parameterises a read from a store
type ExtractRequest struct {
	// Query is the read statement for SQL stores. Empty selects the bound table.
	Query string
	// Args are positional parameters for Query
	Args []any
	// ParseDates lists columns coerced to timestamps after reading
	ParseDates []string
	// Limit caps the number of rows read; 0 means no limit
	Limit int
}

// LoadOptions parameterises a write into a store
type LoadOptions struct {
	// Overwrite allows file-like stores to replace existing data
	Overwrite bool
	// IfExists controls table-like stores; "" means append
	IfExists IfExists
	// ChunkSize is the number of rows written per statement
	ChunkSize int
}

// DefaultChunkSize is the number of rows inserted per statement
const DefaultChunkSize = 500
