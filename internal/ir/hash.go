package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDesign = "txsched/design/v1"
	DomainCycle  = "txsched/cycle/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DesignHash computes the content hash of a design.
// Declaration order is part of the identity: reordering transactions changes
// tie-breaks and therefore the hash.
func DesignHash(d Design) (string, error) {
	canonical, err := MarshalCanonical(designRecord(d))
	if err != nil {
		return "", fmt.Errorf("DesignHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDesign, canonical), nil
}

// MustDesignHash is like DesignHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDesignHash(d Design) string {
	h, err := DesignHash(d)
	if err != nil {
		panic(err)
	}
	return h
}

// CycleDigest hashes the arbiter-visible part of a cycle (readiness and
// firing set). Replay compares digests to detect divergence.
func CycleDigest(rec CycleRecord) string {
	canonical, err := MarshalCanonical(map[string]any{
		"cycle": rec.Cycle,
		"ready": nonNil(rec.Ready),
		"fired": nonNil(rec.Fired),
	})
	if err != nil {
		// Strings and ints only; cannot fail.
		panic(err)
	}
	return hashWithDomain(DomainCycle, canonical)
}

func designRecord(d Design) map[string]any {
	methods := make([]any, len(d.Methods))
	for i, m := range d.Methods {
		methods[i] = map[string]any{
			"name":   m.Name,
			"input":  fieldsList(m.Input),
			"output": fieldsList(m.Output),
			"calls":  nonNil(m.Calls),
		}
	}
	txs := make([]any, len(d.Transactions))
	for i, t := range d.Transactions {
		txs[i] = map[string]any{
			"name":  t.Name,
			"calls": nonNil(t.Calls),
		}
	}
	rels := make([]any, len(d.Relations))
	for i, r := range d.Relations {
		rels[i] = map[string]any{
			"kind": string(r.Kind),
			"a":    r.A,
			"b":    r.B,
		}
	}
	return map[string]any{
		"name":         d.Name,
		"methods":      methods,
		"transactions": txs,
		"relations":    rels,
	}
}

func fieldsList(fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = map[string]any{"name": f.Name, "type": f.Type}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
