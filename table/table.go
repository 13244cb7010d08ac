// Package table implements the in-memory tabular value passed between stores
// and pipelines: an ordered list of named, typed columns of equal length.
package table

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Column is a named, typed sequence of values. A nil value is missing.
type Column struct {
	Name   string
	Type   arrow.DataType
	Values []any
}

// NewColumn builds a column and infers its type from the values
func NewColumn(name string, values []any) *Column {
	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = normalize(v)
	}
	dt := inferType(normalized)
	for i, v := range normalized {
		c, err := coerce(v, dt)
		if err != nil {
			c = cast.ToString(v)
		}
		normalized[i] = c
	}
	return &Column{Name: name, Type: dt, Values: normalized}
}

// NewTypedColumn builds a column of the given type, converting every value
func NewTypedColumn(name string, dt arrow.DataType, values []any) (*Column, error) {
	out := make([]any, len(values))
	for i, v := range values {
		c, err := coerce(normalize(v), dt)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		out[i] = c
	}
	return &Column{Name: name, Type: dt, Values: out}, nil
}

// Len returns the number of values in the column
func (c *Column) Len() int {
	return len(c.Values)
}

func (c *Column) clone() *Column {
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	return &Column{Name: c.Name, Type: c.Type, Values: values}
}

// Table is a 2-D labeled tabular value: rows x named columns
type Table struct {
	columns []*Column
	rows    int
}

// New creates a table from columns. All columns must have the same length
// and distinct names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{}
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", c.Name, c.Len(), t.rows)
		}
		if c.Type == nil {
			c = NewColumn(c.Name, c.Values)
		}
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// FromRows builds a table from positional rows. Column types are inferred.
func FromRows(columns []string, rows [][]any) (*Table, error) {
	values := make([][]any, len(columns))
	for i := range values {
		values[i] = make([]any, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(columns))
		}
		for c, v := range row {
			values[c][r] = v
		}
	}
	cols := make([]*Column, len(columns))
	for i, name := range columns {
		cols[i] = NewColumn(name, values[i])
	}
	return New(cols...)
}

// FromMaps builds a table from records keyed by column name. Columns are the
// sorted union of every record's keys; absent keys become missing values.
func FromMaps(records []map[string]any) (*Table, error) {
	names := lo.Uniq(lo.FlatMap(records, func(r map[string]any, _ int) []string {
		return lo.Keys(r)
	}))
	sort.Strings(names)

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(names))
		for j, name := range names {
			row[j] = rec[name]
		}
		rows[i] = row
	}
	return FromRows(names, rows)
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// NumCols returns the number of columns
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// Shape returns (rows, columns)
func (t *Table) Shape() (int, int) {
	return t.NumRows(), t.NumCols()
}

// Empty reports whether the table holds no rows
func (t *Table) Empty() bool {
	return t.NumRows() == 0
}

// Columns returns the column names in order
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return lo.Map(t.columns, func(c *Column, _ int) string { return c.Name })
}

// Column returns the named column
func (t *Table) Column(name string) (*Column, bool) {
	if t == nil {
		return nil, false
	}
	return lo.Find(t.columns, func(c *Column) bool { return c.Name == name })
}

// ColumnAt returns the i-th column
func (t *Table) ColumnAt(i int) *Column {
	return t.columns[i]
}

// Row returns the values of row i in column order
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Values[i]
	}
	return row
}

// Rows returns every row in order
func (t *Table) Rows() [][]any {
	rows := make([][]any, t.NumRows())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// RowMap returns row i keyed by column name
func (t *Table) RowMap(i int) map[string]any {
	m := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		m[c.Name] = c.Values[i]
	}
	return m
}

// Head returns a copy of the first n rows
func (t *Table) Head(n int) *Table {
	if n < 0 || n > t.NumRows() {
		n = t.NumRows()
	}
	return t.slice(0, n)
}

func (t *Table) slice(from, to int) *Table {
	out := &Table{rows: to - from}
	for _, c := range t.columns {
		values := make([]any, to-from)
		copy(values, c.Values[from:to])
		out.columns = append(out.columns, &Column{Name: c.Name, Type: c.Type, Values: values})
	}
	return out
}

// Clone returns a deep copy of the column structure. Values are shared
// only where they are immutable.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{rows: t.rows}
	for _, c := range t.columns {
		out.columns = append(out.columns, c.clone())
	}
	return out
}

// SetColumn sets or overwrites a column in place. values must have one entry
// per row; a single value is broadcast to every row. On a table without
// columns the first SetColumn defines the row count.
func (t *Table) SetColumn(name string, values []any) error {
	if len(t.columns) == 0 {
		t.rows = len(values)
	}
	if len(values) == 1 && t.rows != 1 {
		values = lo.Times(t.rows, func(int) any { return values[0] })
	}
	if len(values) != t.rows {
		return fmt.Errorf("column %s has %d values, want %d", name, len(values), t.rows)
	}

	return t.PutColumn(NewColumn(name, values))
}

// PutColumn sets or overwrites a column in place, keeping its declared type
func (t *Table) PutColumn(col *Column) error {
	if len(t.columns) == 0 {
		t.rows = col.Len()
	}
	if col.Len() != t.rows {
		return fmt.Errorf("column %s has %d values, want %d", col.Name, col.Len(), t.rows)
	}
	if col.Type == nil {
		col = NewColumn(col.Name, col.Values)
	}
	for i, c := range t.columns {
		if c.Name == col.Name {
			t.columns[i] = col
			return nil
		}
	}
	t.columns = append(t.columns, col)
	return nil
}

// DropColumn removes a column; it reports whether the column existed
func (t *Table) DropColumn(name string) bool {
	for i, c := range t.columns {
		if c.Name == name {
			t.columns = append(t.columns[:i], t.columns[i+1:]...)
			return true
		}
	}
	return false
}

// ToDatetime converts a column to Timestamp in place. Every value is parsed
// before the column is replaced, so a parse failure leaves it untouched.
func (t *Table) ToDatetime(name string) error {
	col, ok := t.Column(name)
	if !ok {
		return fmt.Errorf("column %q not found", name)
	}
	converted, err := NewTypedColumn(name, Timestamp, col.Values)
	if err != nil {
		return err
	}
	col.Type = converted.Type
	col.Values = converted.Values
	return nil
}

// Filter returns a new table with the rows for which keep returns true
func (t *Table) Filter(keep func(row map[string]any) (bool, error)) (*Table, error) {
	var idx []int
	for i := 0; i < t.NumRows(); i++ {
		ok, err := keep(t.RowMap(i))
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, i)
		}
	}
	out := &Table{rows: len(idx)}
	for _, c := range t.columns {
		values := lo.Map(idx, func(i int, _ int) any { return c.Values[i] })
		out.columns = append(out.columns, &Column{Name: c.Name, Type: c.Type, Values: values})
	}
	return out, nil
}

// Equal reports whether both tables have the same columns, types and values
func (t *Table) Equal(o *Table) bool {
	if t.NumRows() != o.NumRows() || t.NumCols() != o.NumCols() {
		return false
	}
	for i, c := range t.columns {
		oc := o.columns[i]
		if c.Name != oc.Name || !arrow.TypeEqual(c.Type, oc.Type) {
			return false
		}
		for r := range c.Values {
			if !valueEqual(c.Values[r], oc.Values[r]) {
				return false
			}
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	default:
		return a == b
	}
}

// String renders the table as aligned text
func (t *Table) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns(), "\t"))
	for i := 0; i < t.NumRows(); i++ {
		cells := lo.Map(t.Row(i), func(v any, _ int) string { return formatValue(v) })
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NaN"
	case time.Time:
		return x.Format(time.RFC3339)
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return cast.ToString(x)
	}
}
