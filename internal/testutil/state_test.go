package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treestore/internal/state"
)

func TestStateFromYAML(t *testing.T) {
	v, err := StateFromYAML(`
deep:
  nested:
    prop: A
items: [1, 2.5, true, null]
`)
	require.NoError(t, err)

	want := state.MustFromGo(map[string]any{
		"deep":  map[string]any{"nested": map[string]any{"prop": "A"}},
		"items": []any{1, 2.5, true, nil},
	})
	assert.True(t, state.Equal(want, v))
}

func TestStateFromYAML_Scalars(t *testing.T) {
	v, err := StateFromYAML("hello")
	require.NoError(t, err)
	assert.Equal(t, state.String("hello"), v)

	v, err = StateFromYAML("")
	require.NoError(t, err)
	assert.Equal(t, state.Null{}, v)
}

func TestStateFromYAML_Invalid(t *testing.T) {
	_, err := StateFromYAML("a: [")
	assert.ErrorContains(t, err, "parse yaml state")
}

func TestMustState(t *testing.T) {
	v := MustState(t, "count: 3")
	assert.Equal(t, state.Int(3), state.MustParsePath("count").Lookup(v))
}
