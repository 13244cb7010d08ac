package etlkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		input string
		want  Operator
	}{
		{"==", OpEQ},
		{"=", OpEQ},
		{"__eq__", OpEQ},
		{"EQ", OpEQ},
		{"!=", OpNE},
		{"<>", OpNE},
		{"__ne__", OpNE},
		{"<", OpLT},
		{"__lt__", OpLT},
		{"<=", OpLE},
		{">", OpGT},
		{">=", OpGE},
		{"__ge__", OpGE},
		{"in", OpIn},
		{"in_", OpIn},
		{"not in", OpNotIn},
		{"notin_", OpNotIn},
		{"like", OpLike},
		{"notlike", OpNotLike},
		{"ilike", OpILike},
		{"is_", OpIs},
		{"isnot", OpIsNot},
		{"IS_NOT", OpIsNot},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOperator(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOperator_Unknown(t *testing.T) {
	for _, s := range []string{"", "between", "__contains__", "~"} {
		_, err := ParseOperator(s)
		assert.True(t, IsNotSupportedError(err), "operator %q", s)
	}
}

func TestCond_PanicsOnUnknownOperator(t *testing.T) {
	assert.Panics(t, func() { Cond("a", "between", 1) })
	assert.NotPanics(t, func() { Cond("a", "in_", []int{1}) })
}

func TestCondition_Validate(t *testing.T) {
	assert.NoError(t, Cond("a", "in", []string{"x"}).Validate())
	assert.True(t, IsConfigError(Cond("a", "in", "x").Validate()))
	assert.True(t, IsConfigError(Condition{Op: OpEQ}.Validate()))
	assert.True(t, IsNotSupportedError(Condition{Column: "a", Op: "XOR"}.Validate()))
}

func TestCondition_Match(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cond Condition
		v    any
		want bool
	}{
		{"eq int", Cond("a", "==", 3), int64(3), true},
		{"eq int float", Cond("a", "==", 3), 3.0, true},
		{"eq string", Cond("a", "==", "x"), "x", true},
		{"ne", Cond("a", "!=", 3), int64(4), true},
		{"ne nil", Cond("a", "!=", 3), nil, true},
		{"eq nil", Cond("a", "==", 3), nil, false},
		{"lt", Cond("a", "<", 10), int64(2), true},
		{"lt numeric not lexical", Cond("a", "<", 10), int64(9), true},
		{"le", Cond("a", "<=", 2.5), 2.5, true},
		{"gt", Cond("a", ">", 1), int64(1), false},
		{"ge", Cond("a", ">=", 1), int64(1), true},
		{"gt time", Cond("a", ">", "2024-01-01"), day, true},
		{"lt string", Cond("a", "<", "b"), "a", true},
		{"bool", Cond("a", "==", true), true, true},
		{"in", Cond("a", "in", []int{1, 2}), int64(2), true},
		{"in miss", Cond("a", "in", []string{"x"}), "y", false},
		{"not in", Cond("a", "not_in", []string{"x"}), "y", true},
		{"not in nil", Cond("a", "not_in", []string{"x"}), nil, false},
		{"like", Cond("a", "like", "ab%"), "abc", true},
		{"like underscore", Cond("a", "like", "a_c"), "abc", true},
		{"like case", Cond("a", "like", "AB%"), "abc", false},
		{"ilike", Cond("a", "ilike", "AB%"), "abc", true},
		{"like dot literal", Cond("a", "like", "a.c"), "abc", false},
		{"not like", Cond("a", "notlike", "x%"), "abc", true},
		{"is nil", Cond("a", "is", nil), nil, true},
		{"is nil non-nil", Cond("a", "is", nil), "x", false},
		{"is not nil", Cond("a", "is_not", nil), "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Match(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchAll(t *testing.T) {
	row := map[string]any{"id": int64(3), "name": "gamma"}

	ok, err := MatchAll(row, nil, BinaryAnd)
	require.NoError(t, err)
	assert.True(t, ok)

	conds := []Condition{Cond("id", ">", 5), Cond("name", "like", "g%")}

	ok, err = MatchAll(row, conds, BinaryAnd)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = MatchAll(row, conds, BinaryOr)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = MatchAll(row, []Condition{Cond("missing", "==", 1)}, BinaryAnd)
	assert.True(t, IsNotFoundError(err))
}

func TestParseBinaryOp(t *testing.T) {
	op, err := ParseBinaryOp("")
	require.NoError(t, err)
	assert.Equal(t, BinaryAnd, op)

	op, err = ParseBinaryOp("OR")
	require.NoError(t, err)
	assert.Equal(t, BinaryOr, op)

	_, err = ParseBinaryOp("xor")
	assert.True(t, IsNotSupportedError(err))
}
