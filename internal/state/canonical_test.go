package state

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysAndDropsWhitespace(t *testing.T) {
	v := MustFromGo(map[string]any{
		"b": []any{1, 2.5, "x", true, nil},
		"a": map[string]any{"z": "last", "m": "mid"},
	})

	got, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"m":"mid","z":"last"},"b":[1,2.5,"x",true,null]}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(String(`<a & b> "q" \ `))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b> \"q\" \\ "`, string(got))
}

func TestMarshalCanonical_ControlCharacters(t *testing.T) {
	got, err := MarshalCanonical(String("a\nb\tc\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\tc\u0001"`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	decomposed := "e\u0301" // e + combining acute
	got, err := MarshalCanonical(String(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_RejectsNaN(t *testing.T) {
	_, err := MarshalCanonical(NewArray(Float(math.NaN())))
	assert.ErrorContains(t, err, "array[0]")
}

func TestMarshalCanonical_PlainGoValues(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"seq": int64(1), "type": "t"})
	require.NoError(t, err)
	assert.Equal(t, `{"seq":1,"type":"t"}`, string(got))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...), U+FF61 is a single
	// unit 0xFF61. UTF-16 order puts the emoji first, UTF-8 order does not.
	o := NewObject(F("\uFF61", Int(1)), F("\U0001F600", Int(2)))

	assert.Equal(t, []string{"\U0001F600", "\uFF61"}, SortedKeys(o))
}

func TestObject_StringAndJSON(t *testing.T) {
	o := NewObject(F("b", Int(1)), F("a", String("x")))

	assert.Equal(t, `{"a":"x","b":1}`, o.String())
	data, err := o.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, o.String(), string(data))
	assert.Equal(t, `[1,"x"]`, NewArray(Int(1), String("x")).String())
}

func TestIndent(t *testing.T) {
	out, err := Indent(NewObject(F("a", Int(1))))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", out)
}
