// Package canonical provides deterministic serialization and hashing for
// ledger entries and policy references. Values are marshaled to JSON,
// transformed to the RFC 8785 canonical form, and digested with SHA-256.
// Strings that participate in hash inputs are NFC-normalized first so that
// visually identical references can never produce divergent chains.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// NFC returns the Unicode NFC normalization of s.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// NFCAll returns a new slice with every element NFC-normalized.
func NFCAll(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = NFC(s)
	}
	return out
}

// Marshal returns the RFC 8785 canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// HashBytes returns the prefixed SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Hash returns the prefixed SHA-256 hex digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashString returns the prefixed digest of the NFC form of s.
func HashString(s string) string {
	return HashBytes([]byte(NFC(s)))
}
