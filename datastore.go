package etlkit

import (
	"maps"
	"slices"

	"github.com/sicko7947/etlkit/table"
)

// DataStore is a registry of uniquely named stores. Entries are only
// replaced by an explicit Delete followed by Add.
type DataStore struct {
	stores map[string]Store
}

// NewDataStore creates an empty registry
func NewDataStore() *DataStore {
	return &DataStore{stores: make(map[string]Store)}
}

// Add registers store under name
func (d *DataStore) Add(name string, store Store) error {
	if name == "" {
		return NewError(ErrCodeConfig, "store name is empty")
	}
	if store == nil {
		return NewStoreError(ErrCodeConfig, name, "store is nil")
	}
	if _, ok := d.stores[name]; ok {
		return NewStoreError(ErrCodeDuplicateName, name, "store already registered")
	}
	d.stores[name] = store
	return nil
}

// Delete removes name from the registry and returns the removed store
func (d *DataStore) Delete(name string) (Store, error) {
	store, ok := d.stores[name]
	if !ok {
		return nil, NewStoreError(ErrCodeNotFound, name, "store not registered")
	}
	delete(d.stores, name)
	return store, nil
}

// Get returns the store registered under name
func (d *DataStore) Get(name string) (Store, error) {
	store, ok := d.stores[name]
	if !ok {
		return nil, NewStoreError(ErrCodeNotFound, name, "store not registered")
	}
	return store, nil
}

// Lookup is the comma-ok form of Get
func (d *DataStore) Lookup(name string) (Store, bool) {
	store, ok := d.stores[name]
	return store, ok
}

// Exists reports whether name is registered
func (d *DataStore) Exists(name string) bool {
	_, ok := d.stores[name]
	return ok
}

// GetData returns the cached table of the named store; it is nil until the
// store has been extracted from or loaded into
func (d *DataStore) GetData(name string) (*table.Table, error) {
	store, err := d.Get(name)
	if err != nil {
		return nil, err
	}
	return store.Data(), nil
}

// All returns a copy of the registry
func (d *DataStore) All() map[string]Store {
	return maps.Clone(d.stores)
}

// Names returns the registered names in sorted order
func (d *DataStore) Names() []string {
	return slices.Sorted(maps.Keys(d.stores))
}

// Len returns the number of registered stores
func (d *DataStore) Len() int {
	return len(d.stores)
}

// Show returns the first n rows of the named store's cached table and its
// full shape
func (d *DataStore) Show(name string, n int) (*table.Table, int, int, error) {
	data, err := d.GetData(name)
	if err != nil {
		return nil, 0, 0, err
	}
	if data == nil {
		return nil, 0, 0, NewStoreError(ErrCodeEmptyData, name, "store holds no data")
	}
	rows, cols := data.Shape()
	return data.Head(n), rows, cols, nil
}
