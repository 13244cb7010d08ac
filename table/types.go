package table

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cast"
)

// Column data types supported by Table
var (
	Int64     arrow.DataType = arrow.PrimitiveTypes.Int64
	Float64   arrow.DataType = arrow.PrimitiveTypes.Float64
	Bool      arrow.DataType = arrow.FixedWidthTypes.Boolean
	String    arrow.DataType = arrow.BinaryTypes.String
	Binary    arrow.DataType = arrow.BinaryTypes.Binary
	Timestamp arrow.DataType = arrow.FixedWidthTypes.Timestamp_us
)

// TypeName returns the short name used when a column type has to be persisted
// outside of arrow (DynamoDB metadata, SQL DDL lookups).
func TypeName(dt arrow.DataType) string {
	switch {
	case arrow.TypeEqual(dt, Int64):
		return "int64"
	case arrow.TypeEqual(dt, Float64):
		return "float64"
	case arrow.TypeEqual(dt, Bool):
		return "bool"
	case arrow.TypeEqual(dt, Binary):
		return "binary"
	case arrow.TypeEqual(dt, Timestamp):
		return "timestamp"
	default:
		return "string"
	}
}

// ParseType is the inverse of TypeName
func ParseType(name string) (arrow.DataType, error) {
	switch name {
	case "int64":
		return Int64, nil
	case "float64":
		return Float64, nil
	case "bool":
		return Bool, nil
	case "string":
		return String, nil
	case "binary":
		return Binary, nil
	case "timestamp":
		return Timestamp, nil
	}
	return nil, fmt.Errorf("unknown column type %q", name)
}

// normalize maps Go values onto the canonical representation of each
// column type: int64, float64, bool, string, []byte, time.Time or nil.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return normalize(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return strconv.FormatUint(x, 10)
		}
		return int64(x)
	case float32:
		return float64(x)
	case float64, bool, string, []byte:
		return x
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case fmt.Stringer:
		return x.String()
	default:
		return cast.ToString(x)
	}
}

func typeOf(v any) arrow.DataType {
	switch v.(type) {
	case int64:
		return Int64
	case float64:
		return Float64
	case bool:
		return Bool
	case []byte:
		return Binary
	case time.Time:
		return Timestamp
	default:
		return String
	}
}

// inferType picks the narrowest column type able to hold every non-nil value.
func inferType(values []any) arrow.DataType {
	var dt arrow.DataType
	for _, v := range values {
		if v == nil {
			continue
		}
		dt = unify(dt, typeOf(v))
	}
	if dt == nil {
		return String
	}
	return dt
}

func unify(a, b arrow.DataType) arrow.DataType {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case arrow.TypeEqual(a, b):
		return a
	case isNumeric(a) && isNumeric(b):
		return Float64
	default:
		return String
	}
}

func isNumeric(dt arrow.DataType) bool {
	return arrow.TypeEqual(dt, Int64) || arrow.TypeEqual(dt, Float64)
}

// coerce converts an already normalized value into the representation of dt.
func coerce(v any, dt arrow.DataType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case arrow.TypeEqual(dt, Int64):
		return cast.ToInt64E(v)
	case arrow.TypeEqual(dt, Float64):
		return cast.ToFloat64E(v)
	case arrow.TypeEqual(dt, Bool):
		return cast.ToBoolE(v)
	case arrow.TypeEqual(dt, Binary):
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		return []byte(cast.ToString(v)), nil
	case arrow.TypeEqual(dt, Timestamp):
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	default:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		if t, ok := v.(time.Time); ok {
			return t.Format(time.RFC3339Nano), nil
		}
		return cast.ToStringE(v)
	}
}
