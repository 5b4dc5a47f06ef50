package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValType{I32, I64}, Results: []ValType{F32}}
	assert.True(t, a.Equal(FuncType{Params: []ValType{I32, I64}, Results: []ValType{F32}}))
	assert.False(t, a.Equal(FuncType{Params: []ValType{I32}, Results: []ValType{F32}}))
	assert.False(t, a.Equal(FuncType{Params: []ValType{I32, I64}}))
	assert.True(t, FuncType{}.Equal(FuncType{Params: []ValType{}}))
}

func TestModuleIndexSpace(t *testing.T) {
	m := &Module{
		Types: []FuncType{
			{Params: []ValType{I32}},
			{Results: []ValType{I64}},
		},
		Imports: []Import{
			{Module: "env", Name: "log", Kind: KindFunc, TypeIdx: 0},
			{Module: "env", Name: "mem", Kind: KindMemory},
		},
		Funcs:   []Func{{TypeIdx: 1}},
		Exports: []Export{{Name: "run", Kind: KindFunc, Index: 1}},
	}

	assert.Equal(t, 2, m.FuncCount())
	assert.Equal(t, 1, m.ImportedFuncs())

	ft, ok := m.FuncType(0)
	assert.True(t, ok)
	assert.Equal(t, []ValType{I32}, ft.Params)

	ft, ok = m.FuncType(1)
	assert.True(t, ok)
	assert.Equal(t, []ValType{I64}, ft.Results)

	_, ok = m.FuncType(2)
	assert.False(t, ok)

	assert.True(t, m.HasExport("run", KindFunc))
	assert.False(t, m.HasExport("run", KindMemory))
}

func TestValTypeString(t *testing.T) {
	assert.Equal(t, "i32", I32.String())
	assert.Equal(t, "f64", F64.String())
	assert.Equal(t, "funcref", FuncRef.String())
}
