package etlkit

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Operator is a comparison used in clean conditions
type Operator string

const (
	OpEQ      Operator = "EQ"
	OpNE      Operator = "NE"
	OpLT      Operator = "LT"
	OpLE      Operator = "LE"
	OpGT      Operator = "GT"
	OpGE      Operator = "GE"
	OpIn      Operator = "IN"
	OpNotIn   Operator = "NOT_IN"
	OpLike    Operator = "LIKE"
	OpNotLike Operator = "NOT_LIKE"
	OpILike   Operator = "ILIKE"
	OpIs      Operator = "IS"
	OpIsNot   Operator = "IS_NOT"
)

var operatorAliases = map[string]Operator{
	"==": OpEQ, "=": OpEQ, "eq": OpEQ,
	"!=": OpNE, "<>": OpNE, "ne": OpNE,
	"<": OpLT, "lt": OpLT,
	"<=": OpLE, "le": OpLE,
	">": OpGT, "gt": OpGT,
	">=": OpGE, "ge": OpGE,
	"in": OpIn,
	"notin": OpNotIn, "not_in": OpNotIn, "not in": OpNotIn,
	"like": OpLike,
	"notlike": OpNotLike, "not_like": OpNotLike, "not like": OpNotLike,
	"ilike": OpILike,
	"is": OpIs,
	"isnot": OpIsNot, "is_not": OpIsNot, "is not": OpIsNot,
}

// ParseOperator resolves an operator name. The literal name, the name with a
// trailing underscore ("in_") and the dunder form ("__eq__") all resolve to
// the same operator.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && len(name) > 4 {
		name = name[2 : len(name)-2]
	}
	name = strings.TrimSuffix(name, "_")

	if op, ok := operatorAliases[name]; ok {
		return op, nil
	}
	if op := Operator(strings.ToUpper(name)); op.valid() {
		return op, nil
	}
	return "", Errorf(ErrCodeNotSupported, "operator %q cannot be resolved", s)
}

func (o Operator) valid() bool {
	switch o {
	case OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE, OpIn, OpNotIn, OpLike, OpNotLike, OpILike, OpIs, OpIsNot:
		return true
	}
	return false
}

// String returns the string representation
func (o Operator) String() string {
	return string(o)
}

// Condition is a single (column, operator, value) filter
type Condition struct {
	Column string
	Op     Operator
	Value  any
}

// Cond builds a condition from an operator name. It panics when the operator
// cannot be resolved; use ParseOperator for untrusted input.
func Cond(column, op string, value any) Condition {
	o, err := ParseOperator(op)
	if err != nil {
		panic(err)
	}
	return Condition{Column: column, Op: o, Value: value}
}

// Validate checks that the operator is known and the value fits it
func (c Condition) Validate() error {
	if c.Column == "" {
		return NewError(ErrCodeConfig, "condition column is empty")
	}
	if !c.Op.valid() {
		return Errorf(ErrCodeNotSupported, "operator %q cannot be resolved", c.Op)
	}
	if c.Op == OpIn || c.Op == OpNotIn {
		if !isList(c.Value) {
			return Errorf(ErrCodeConfig, "operator %s on %s needs a list value, got %T", c.Op, c.Column, c.Value)
		}
	}
	return nil
}

// String renders the condition for logs
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value)
}

// Match evaluates the condition against a value held in memory. Nil values
// only match IS nil, IS_NOT non-nil and NE.
func (c Condition) Match(v any) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	switch c.Op {
	case OpIs:
		return (v == nil && c.Value == nil) || (v != nil && c.Value != nil && equalValues(v, c.Value)), nil
	case OpIsNot:
		m, _ := Condition{Column: c.Column, Op: OpIs, Value: c.Value}.Match(v)
		return !m, nil
	case OpIn, OpNotIn:
		found := false
		if v != nil {
			for _, item := range listValues(c.Value) {
				if equalValues(v, item) {
					found = true
					break
				}
			}
		}
		if c.Op == OpIn {
			return found, nil
		}
		return v != nil && !found, nil
	case OpLike, OpNotLike, OpILike:
		if v == nil {
			return false, nil
		}
		re, err := likePattern(cast.ToString(c.Value), c.Op == OpILike)
		if err != nil {
			return false, err
		}
		m := re.MatchString(cast.ToString(v))
		if c.Op == OpNotLike {
			return !m, nil
		}
		return m, nil
	}

	if v == nil || c.Value == nil {
		return c.Op == OpNE && (v == nil) != (c.Value == nil), nil
	}

	cmp, err := compareValues(v, c.Value)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpEQ:
		return cmp == 0, nil
	case OpNE:
		return cmp != 0, nil
	case OpLT:
		return cmp < 0, nil
	case OpLE:
		return cmp <= 0, nil
	case OpGT:
		return cmp > 0, nil
	case OpGE:
		return cmp >= 0, nil
	}
	return false, Errorf(ErrCodeNotSupported, "operator %q cannot be resolved", c.Op)
}

// MatchAll evaluates conditions against a row combined with op
func MatchAll(row map[string]any, conditions []Condition, op BinaryOp) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}
	for _, c := range conditions {
		v, ok := row[c.Column]
		if !ok {
			return false, Errorf(ErrCodeNotFound, "column %q not found", c.Column)
		}
		m, err := c.Match(v)
		if err != nil {
			return false, err
		}
		if op == BinaryOr && m {
			return true, nil
		}
		if op != BinaryOr && !m {
			return false, nil
		}
	}
	return op != BinaryOr, nil
}

// BinaryOp combines several conditions
type BinaryOp string

const (
	BinaryAnd BinaryOp = "and"
	BinaryOr  BinaryOp = "or"
)

// ParseBinaryOp validates a binary operator; "" means and
func ParseBinaryOp(s string) (BinaryOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return BinaryAnd, nil
	case "or":
		return BinaryOr, nil
	}
	return "", Errorf(ErrCodeNotSupported, "binary operator %q cannot be resolved", s)
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func listValues(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func equalValues(a, b any) bool {
	cmp, err := compareValues(a, b)
	return err == nil && cmp == 0
}

// compareValues orders two values numerically, chronologically or
// lexically, in that order of preference.
func compareValues(a, b any) (int, error) {
	if ta, ok := a.(time.Time); ok {
		tb, err := cast.ToTimeE(b)
		if err != nil {
			return 0, err
		}
		return ta.Compare(tb), nil
	}
	if isNumber(a) || isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA == nil && errB == nil {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			}
			return 0, nil
		}
	}
	if ba, ok := a.(bool); ok {
		bb, err := cast.ToBoolE(b)
		if err != nil {
			return 0, err
		}
		if ba == bb {
			return 0, nil
		}
		if !ba {
			return -1, nil
		}
		return 1, nil
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b)), nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func likePattern(pattern string, insensitive bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	if insensitive {
		sb.WriteString("(?i)")
	}
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
