package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/treestore/internal/state"
)

// Domain prefix for content-addressed definition identity.
// Version suffix enables future algorithm migration.
const DomainStoreSpec = "treestore/store/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the content-addressed identity of a store definition.
// Two definitions hash equal when they compile to the same name, initial
// state, cases (in order) and loaders, regardless of CUE formatting.
// Returns error if a value cannot be canonically marshaled (NaN, Inf).
func SpecHash(spec *StoreSpec) (string, error) {
	cases := make([]any, len(spec.Cases))
	for i, c := range spec.Cases {
		cases[i] = map[string]any{
			"on":    c.On,
			"at":    c.At,
			"op":    string(c.Op),
			"value": operand(c.Value),
			"from":  c.From,
		}
	}
	async := make([]any, len(spec.Async))
	for i, a := range spec.Async {
		async[i] = map[string]any{
			"type":    a.Type,
			"loader":  string(a.Loader),
			"value":   operand(a.Value),
			"message": a.Message,
		}
	}

	obj := map[string]any{
		"name":       spec.Name,
		"initial":    operand(spec.Initial),
		"cases":      cases,
		"async":      async,
		"ir_version": IRVersion,
	}

	canonical, err := state.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStoreSpec, canonical), nil
}

// MustSpecHash is like SpecHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSpecHash(spec *StoreSpec) string {
	h, err := SpecHash(spec)
	if err != nil {
		panic(err)
	}
	return h
}

// operand keeps an absent value distinguishable from an explicit null.
func operand(v state.Value) any {
	if v == nil {
		return map[string]any{"absent": true}
	}
	return map[string]any{"v": v}
}
