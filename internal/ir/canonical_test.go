package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Number(42), "42"},
		{"negative int", Number(-100), "-100"},
		{"zero", Number(0), "0"},
		{"negative zero", Number(math.Copysign(0, -1)), "0"},
		{"fraction", Number(0.1), "0.1"},
		{"large", Number(1e21), "1e+21"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"nil", nil, "null"},
		{"empty array", List{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of numbers", List{Number(1), Number(2), Number(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Number(1)}, `{"a":1}`},
		{"row", Row{"n": Number(2)}, `{"n":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNonFiniteNumbers(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		result, err := MarshalCanonical(Number(f))
		require.NoError(t, err)
		assert.Equal(t, "null", string(result))
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := Object{
		"zebra": Number(1),
		"alpha": Number(2),
		"beta":  Number(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := Object{
		"z": Object{
			"b": Number(1),
			"a": Number(2),
		},
		"a": Number(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 sorts after U+10000 in UTF-16 (surrogate 0xD800 < 0xE000)
	// but before it in UTF-8.
	obj := Object{
		"\uE000":     Number(1),
		"\U00010000": Number(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	expected := `{"` + "\U00010000" + `":2,"` + "\uE000" + `":1}`
	assert.Equal(t, expected, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<b>a & b</b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<b>a & b</b>"`, string(result))
	assert.NotContains(t, string(result), `\u003c`)
	assert.NotContains(t, string(result), `\u0026`)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// e + combining acute (NFD) must encode like the precomposed form.
	nfd := "e\u0301"
	nfc := "\u00e9"

	a, err := MarshalCanonical(String(nfd))
	require.NoError(t, err)
	b, err := MarshalCanonical(String(nfc))
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))

	keyed, err := MarshalCanonical(Object{nfd: Number(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"`+nfc+`":1}`, string(keyed))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(String(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalLineSeparatorsNotEscaped(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by "u2028" is text, not an escape.
	result, err = MarshalCanonical(String(`see \u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"see \\u2028"`, string(result))
}

func TestMarshalCanonicalWithGoTypes(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"b": []any{int64(1), "x", true, nil},
		"a": 2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2.5,"b":[1,"x",true,null]}`, string(result))

	_, err = MarshalCanonical(struct{}{})
	require.Error(t, err)
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	inputs := []string{
		`{"b":[1,2,{"y":null,"x":"s"}],"a":0.25}`,
		`[true,false,null,"\u00e9"]`,
		`-3.5`,
	}
	for _, in := range inputs {
		v, err := UnmarshalValue([]byte(in))
		require.NoError(t, err)
		first, err := MarshalCanonical(v)
		require.NoError(t, err)

		again, err := UnmarshalValue(first)
		require.NoError(t, err)
		second, err := MarshalCanonical(again)
		require.NoError(t, err)

		assert.Equal(t, string(first), string(second), "input %s", in)
	}
}

// FuzzMarshalCanonicalIdempotent checks that canonical output re-encodes to itself.
func FuzzMarshalCanonicalIdempotent(f *testing.F) {
	f.Add(`{"a":1,"b":"test"}`)
	f.Add(`[1,2.5,3]`)
	f.Add(`"hello"`)
	f.Add(`null`)

	f.Fuzz(func(t *testing.T, in string) {
		v, err := UnmarshalValue([]byte(in))
		if err != nil {
			return
		}
		first, err := MarshalCanonical(v)
		if err != nil {
			return
		}
		again, err := UnmarshalValue(first)
		if err != nil {
			t.Fatalf("canonical output is not valid JSON: %s", first)
		}
		second, err := MarshalCanonical(again)
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(second) {
			t.Fatalf("not idempotent: %s vs %s", first, second)
		}
	})
}
