package store

import "fmt"

// DynamoDB schema constants for the single-table dataset layout
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrEntityType = "entity_type"
	AttrData       = "data"

	// Entity types
	EntityTypeDatasetMeta = "DatasetMeta"
	EntityTypeDatasetRow  = "DatasetRow"

	// DefaultDynamoTable is the physical table used when the store config
	// does not name one
	DefaultDynamoTable = "etlkit"
)

// Key builders for single-table design

// Dataset metadata keys: PK=DATASET#{name}, SK=META
func datasetPK(name string) string {
	return fmt.Sprintf("DATASET#%s", name)
}

func datasetMetaSK() string {
	return "META"
}

// Dataset row keys: PK=DATASET#{name}, SK=ROW#{index}. The index is zero
// padded so rows sort in insertion order.
func datasetRowSK(index int) string {
	return fmt.Sprintf("ROW#%09d", index)
}

// Prefix for range queries
func rowPrefix() string {
	return "ROW#"
}
