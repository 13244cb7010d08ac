package table

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Concat stacks tables vertically. Columns are unioned by name in order of
// first appearance and missing cells are filled with nil. When the same
// column has different types across inputs, Int64 and Float64 widen to
// Float64 and any other combination falls back to String.
func Concat(tables ...*Table) (*Table, error) {
	var order []string
	types := make(map[string]arrow.DataType)
	total := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		total += t.NumRows()
		for _, c := range t.columns {
			dt, seen := types[c.Name]
			if !seen {
				order = append(order, c.Name)
				types[c.Name] = c.Type
				continue
			}
			types[c.Name] = unify(dt, c.Type)
		}
	}

	cols := make([]*Column, len(order))
	for i, name := range order {
		values := make([]any, 0, total)
		for _, t := range tables {
			if t == nil {
				continue
			}
			src, ok := t.Column(name)
			if !ok {
				for r := 0; r < t.NumRows(); r++ {
					values = append(values, nil)
				}
				continue
			}
			values = append(values, src.Values...)
		}
		col, err := NewTypedColumn(name, types[name], values)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	return New(cols...)
}
