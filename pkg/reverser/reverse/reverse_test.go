package reverse

import (
	"testing"
	"testing/quick"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "single character", input: "a", expected: "a"},
		{name: "two characters", input: "ab", expected: "ba"},
		{name: "word", input: "hello", expected: "olleh"},
		{name: "accented", input: "héllo", expected: "olléh"},
		{name: "cjk", input: "日本語", expected: "語本日"},
		{name: "emoji", input: "a😀b", expected: "b😀a"},
		{name: "whitespace kept", input: " a b ", expected: " b a "},
		{name: "single multibyte", input: "é", expected: "é"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := String(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.True(t, utf8.ValidString(result))
		})
	}
}

func TestStringInvalidUTF8(t *testing.T) {
	// Stray bytes are moved one at a time, never replaced.
	input := "a\xffb"
	result := String(input)
	assert.Equal(t, "b\xffa", result)
	assert.Len(t, result, len(input))
}

func TestStringIsInvolution(t *testing.T) {
	fn := func(s string) bool {
		return String(String(s)) == s
	}

	require.NoError(t, quick.Check(fn, nil))
}

func TestStringPreservesLength(t *testing.T) {
	fn := func(s string) bool {
		r := String(s)
		return len(r) == len(s) && utf8.RuneCountInString(r) == utf8.RuneCountInString(s)
	}

	require.NoError(t, quick.Check(fn, nil))
}

func TestGraphemes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "single", input: "a", expected: "a"},
		{name: "ascii", input: "hello", expected: "olleh"},
		{name: "combining mark stays attached", input: "e\u0301a", expected: "ae\u0301"},
		{name: "emoji modifier stays attached", input: "\U0001F44D\U0001F3FDx", expected: "x\U0001F44D\U0001F3FD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Graphemes(tt.input))
		})
	}

	// Code point reversal detaches the combining mark.
	assert.Equal(t, "a\u0301e", String("e\u0301a"))
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		input    string
		expected Unit
	}{
		{"", UnitCodePoint},
		{"codepoint", UnitCodePoint},
		{"code_point", UnitCodePoint},
		{"rune", UnitCodePoint},
		{"Grapheme", UnitGrapheme},
		{" graphemes ", UnitGrapheme},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			unit, err := ParseUnit(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, unit)
		})
	}

	_, err := ParseUnit("byte")
	assert.ErrorIs(t, err, ErrUnknownUnit)
	assert.Contains(t, err.Error(), "byte")
}

func TestUnitFunc(t *testing.T) {
	assert.Equal(t, "ae\u0301", UnitGrapheme.Func()("e\u0301a"))
	assert.Equal(t, "a\u0301e", UnitCodePoint.Func()("e\u0301a"))
	assert.Equal(t, "cba", Unit(42).Func()("abc"))

	assert.Equal(t, "codepoint", UnitCodePoint.String())
	assert.Equal(t, "grapheme", UnitGrapheme.String())
	assert.Equal(t, "Unit(42)", Unit(42).String())
}

func TestGraphemesKeepsEveryByte(t *testing.T) {
	assert.Equal(t, "b\xffa", Graphemes("a\xffb"))

	fn := func(b []byte) bool {
		r := Graphemes(string(b))
		return len(r) == len(b)
	}

	require.NoError(t, quick.Check(fn, nil))
}
