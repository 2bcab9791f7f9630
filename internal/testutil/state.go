package testutil

import (
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/roach88/treestore/internal/state"
)

// StateFromYAML decodes a YAML document into a state tree.
//
//	initial := testutil.MustState(t, `
//	deep:
//	  nested:
//	    prop: A
//	`)
func StateFromYAML(src string) (state.Value, error) {
	var raw any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, fmt.Errorf("parse yaml state: %w", err)
	}
	v, err := state.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("convert yaml state: %w", err)
	}
	return v, nil
}

// MustState is StateFromYAML that fails the test on error.
func MustState(t testing.TB, src string) state.Value {
	t.Helper()
	v, err := StateFromYAML(src)
	if err != nil {
		t.Fatalf("MustState: %v", err)
	}
	return v
}
