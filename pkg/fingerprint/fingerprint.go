// Package fingerprint computes the content-addressed identity of a
// runnable tree used to detect structural drift between a suspended run
// and the runnable it is resumed with (spec §4.7).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/continuum-run/agentcore/pkg/agcerr"
)

// Node is the minimal shape fingerprint needs from a runnable: its kind,
// name, declared tool names, whether it yields, and its children in
// declared order. Every concrete runnable in package runnable implements
// this.
type Node interface {
	FingerprintKind() string
	FingerprintName() string
	FingerprintTools() []string
	FingerprintYields() bool
	FingerprintChildren() []Node
}

// record is the canonical JSON shape hashed to produce a fingerprint.
// Field order is fixed by the struct tags below and values are normalized
// (sorted tool names, recursively built children) so that two
// structurally identical trees always serialize identically.
type record struct {
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	Tools    []string  `json:"tools,omitempty"`
	Yields   bool      `json:"yields,omitempty"`
	Children []*record `json:"children,omitempty"`
}

func build(n Node) *record {
	tools := append([]string(nil), n.FingerprintTools()...)
	sort.Strings(tools)

	children := n.FingerprintChildren()
	childRecords := make([]*record, 0, len(children))
	for _, c := range children {
		childRecords = append(childRecords, build(c))
	}

	return &record{
		Kind:     n.FingerprintKind(),
		Name:     n.FingerprintName(),
		Tools:    tools,
		Yields:   n.FingerprintYields(),
		Children: childRecords,
	}
}

// Compute hashes the canonical JSON form of the runnable tree rooted at n
// down to a 16-hex-character SHA-256 prefix.
func Compute(n Node) string {
	rec := build(n)
	// canonical JSON: struct field order is fixed, maps are never used in
	// record, so encoding/json's default output is already deterministic.
	buf, err := json.Marshal(rec)
	if err != nil {
		// record contains no cyclic or unsupported types; a marshal
		// failure here would be a programming error, not a runtime one.
		panic("fingerprint: failed to marshal canonical record: " + err.Error())
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:16]
}

// Validate recomputes the fingerprint for n and compares it against the
// one recorded on the root invocation_start of a suspended run. Use this
// at resume time; a mismatch is fatal (spec §7).
func Validate(n Node, expected string) error {
	actual := Compute(n)
	if actual != expected {
		return &agcerr.PipelineStructureChangedError{Expected: expected, Actual: actual}
	}
	return nil
}
