package table

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Schema returns the arrow schema of the table. Every field is nullable.
func (t *Table) Schema(md *arrow.Metadata) *arrow.Schema {
	fields := make([]arrow.Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type, Nullable: true}
	}
	return arrow.NewSchema(fields, md)
}

// ToArrow converts the table into an arrow.Table. The caller owns the result
// and must Release it.
func (t *Table) ToArrow(mem memory.Allocator, md *arrow.Metadata) (arrow.Table, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	schema := t.Schema(md)

	columns := make([]arrow.Column, len(t.columns))
	for i, c := range t.columns {
		arr, err := buildArray(mem, c)
		if err != nil {
			return nil, err
		}
		chunked := arrow.NewChunked(c.Type, []arrow.Array{arr})
		arr.Release()
		columns[i] = *arrow.NewColumn(schema.Field(i), chunked)
		chunked.Release()
	}

	tbl := array.NewTable(schema, columns, int64(t.NumRows()))
	for i := range columns {
		columns[i].Release()
	}
	return tbl, nil
}

func buildArray(mem memory.Allocator, c *Column) (arrow.Array, error) {
	builder := array.NewBuilder(mem, c.Type)
	defer builder.Release()

	for i, v := range c.Values {
		if v == nil {
			builder.AppendNull()
			continue
		}
		var ok bool
		switch b := builder.(type) {
		case *array.Int64Builder:
			var x int64
			if x, ok = v.(int64); ok {
				b.Append(x)
			}
		case *array.Float64Builder:
			var x float64
			if x, ok = v.(float64); ok {
				b.Append(x)
			}
		case *array.BooleanBuilder:
			var x bool
			if x, ok = v.(bool); ok {
				b.Append(x)
			}
		case *array.StringBuilder:
			var x string
			if x, ok = v.(string); ok {
				b.Append(x)
			}
		case *array.BinaryBuilder:
			var x []byte
			if x, ok = v.([]byte); ok {
				b.Append(x)
			}
		case *array.TimestampBuilder:
			var x time.Time
			if x, ok = v.(time.Time); ok {
				b.Append(arrow.Timestamp(x.UnixMicro()))
			}
		default:
			return nil, fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
		}
		if !ok {
			return nil, fmt.Errorf("column %s row %d: value %v (%T) does not match %s", c.Name, i, v, v, c.Type)
		}
	}
	return builder.NewArray(), nil
}

// FromArrow converts an arrow.Table into a Table. Narrow integer and float
// types are widened and date types become Timestamp.
func FromArrow(tbl arrow.Table) (*Table, error) {
	schema := tbl.Schema()
	cols := make([]*Column, 0, schema.NumFields())
	for i, field := range schema.Fields() {
		values := make([]any, 0, tbl.NumRows())
		var dt arrow.DataType
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			chunkType, err := readChunk(chunk, &values)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", field.Name, err)
			}
			dt = chunkType
		}
		if dt == nil {
			dt = arrowToColumnType(field.Type)
		}
		cols = append(cols, &Column{Name: field.Name, Type: dt, Values: values})
	}
	return New(cols...)
}

func arrowToColumnType(dt arrow.DataType) arrow.DataType {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return Int64
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return Float64
	case arrow.BOOL:
		return Bool
	case arrow.BINARY, arrow.LARGE_BINARY:
		return Binary
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return Timestamp
	default:
		return String
	}
}

func readChunk(arr arrow.Array, out *[]any) (arrow.DataType, error) {
	n := arr.Len()
	get := func(fn func(i int) any) {
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				*out = append(*out, nil)
				continue
			}
			*out = append(*out, fn(i))
		}
	}

	switch a := arr.(type) {
	case *array.Int64:
		get(func(i int) any { return a.Value(i) })
	case *array.Int32:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Int16:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Int8:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Uint64:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Uint32:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Uint16:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Uint8:
		get(func(i int) any { return int64(a.Value(i)) })
	case *array.Float64:
		get(func(i int) any { return a.Value(i) })
	case *array.Float32:
		get(func(i int) any { return float64(a.Value(i)) })
	case *array.Boolean:
		get(func(i int) any { return a.Value(i) })
	case *array.String:
		get(func(i int) any { return a.Value(i) })
	case *array.LargeString:
		get(func(i int) any { return a.Value(i) })
	case *array.Binary:
		get(func(i int) any {
			b := make([]byte, len(a.Value(i)))
			copy(b, a.Value(i))
			return b
		})
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		get(func(i int) any { return a.Value(i).ToTime(unit).UTC() })
	case *array.Date32:
		get(func(i int) any { return a.Value(i).ToTime().UTC() })
	case *array.Date64:
		get(func(i int) any { return a.Value(i).ToTime().UTC() })
	case *array.Null:
		get(func(int) any { return nil })
		return String, nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
	return arrowToColumnType(arr.DataType()), nil
}
