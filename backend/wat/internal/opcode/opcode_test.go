package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want Op
	}{
		{"nop", Op{Code: 0x01}},
		{"local.get", Op{Code: 0x20, Imm: ImmLocal}},
		{"call", Op{Code: 0x10, Imm: ImmFunc}},
		{"i32.add", Op{Code: 0x6a}},
		{"i64.load", Op{Code: 0x29, Imm: ImmMemarg, Align: 3}},
		{"i32.store8", Op{Code: 0x3a, Imm: ImmMemarg, Align: 0}},
		{"f64.const", Op{Code: 0x44, Imm: ImmF64}},
		{"f64.reinterpret_i64", Op{Code: 0xbf}},
		{"i64.extend32_s", Op{Code: 0xc4}},
		{"i64.trunc_sat_f64_u", Op{Code: PrefixMisc, Sub: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Lookup("i32.frobnicate")
	assert.False(t, ok)
}

func TestCodesAreUnique(t *testing.T) {
	seen := make(map[[2]uint32]string)
	for name, op := range ops {
		key := [2]uint32{uint32(op.Code), op.Sub}
		if other, dup := seen[key]; dup {
			t.Errorf("%s and %s share encoding 0x%02x/%d", name, other, op.Code, op.Sub)
		}
		seen[key] = name
	}
}

func TestDeprecatedTargetsExist(t *testing.T) {
	for old, current := range renamed {
		_, ok := Lookup(current)
		assert.True(t, ok, "%s -> %s", old, current)
		_, clash := Lookup(old)
		assert.False(t, clash, old)
	}

	current, ok := Deprecated("get_local")
	require.True(t, ok)
	assert.Equal(t, "local.get", current)

	_, ok = Deprecated("local.get")
	assert.False(t, ok)
}
