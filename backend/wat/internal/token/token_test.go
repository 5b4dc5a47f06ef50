package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize_Basic(t *testing.T) {
	toks, errs := Tokenize(`(module $m (func (export "add") (param $a i32)))`)
	require.Empty(t, errs)
	assert.Equal(t, []Kind{
		LParen, Keyword, ID,
		LParen, Keyword, LParen, Keyword, String, RParen,
		LParen, Keyword, ID, Keyword, RParen, RParen, RParen,
	}, kinds(toks))
	assert.Equal(t, "add", toks[7].Text)
	assert.Equal(t, "$a", toks[11].Text)
}

func TestTokenize_Positions(t *testing.T) {
	src := "(module\n  (func $f\n    i32.const 42))"
	toks, errs := Tokenize(src)
	require.Empty(t, errs)

	want := map[string]Pos{
		"module":    {1, 2},
		"func":      {2, 4},
		"$f":        {2, 9},
		"i32.const": {3, 5},
		"42":        {3, 15},
	}
	for _, tok := range toks {
		if p, ok := want[tok.Text]; ok {
			assert.Equal(t, p, tok.Pos, tok.Text)
		}
	}
}

func TestTokenize_Comments(t *testing.T) {
	src := ";; line comment\n(; block (; nested ;) still ;)\nnop ;; trailing"
	toks, errs := Tokenize(src)
	require.Empty(t, errs)
	require.Len(t, toks, 1)
	assert.Equal(t, "nop", toks[0].Text)
	assert.Equal(t, Pos{Line: 3, Col: 1}, toks[0].Pos)
}

func TestTokenize_Numbers(t *testing.T) {
	for _, src := range []string{"0", "-1", "+7", "0x1F", "1_000", "1.5e-3", "0x1p-4", "inf", "-inf", "nan", "nan:0x200000"} {
		toks, errs := Tokenize(src)
		require.Empty(t, errs, src)
		require.Len(t, toks, 1, src)
		assert.Equal(t, Number, toks[0].Kind, src)
	}
}

func TestTokenize_Keywords(t *testing.T) {
	toks, errs := Tokenize("i32.wrap/i64 offset=4 align=2 get_local")
	require.Empty(t, errs)
	require.Len(t, toks, 4)
	for _, tok := range toks {
		assert.Equal(t, Keyword, tok.Kind, tok.Text)
	}
	assert.Equal(t, "i32.wrap/i64", toks[0].Text)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		src  string
		msg  string
		line int
	}{
		{`(func "open`, "unterminated string literal", 1},
		{"nop\n(; never closed", "unterminated block comment", 2},
		{"nop\n  {", "unexpected character '{'", 2},
		{"\"a\nb\"", "newline in string literal", 1},
		{"$ nop", "empty identifier", 1},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			_, errs := Tokenize(tt.src)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.msg, errs[0].Msg)
			assert.Equal(t, tt.line, errs[0].Pos.Line)
		})
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`plain`, "plain"},
		{`a\nb\tc`, "a\nb\tc"},
		{`\"q\"`, `"q"`},
		{`\00\ff`, "\x00\xff"},
		{`\u{48}\u{e9}`, "Hé"},
		{`\\`, `\`},
	}
	for _, tt := range tests {
		got, err := Bytes(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, []byte(tt.want), got, tt.raw)
	}

	for _, bad := range []string{`\`, `\q`, `\u{zz}`, `\u41`} {
		_, err := Bytes(bad)
		assert.Error(t, err, bad)
	}
}
