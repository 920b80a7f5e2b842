// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and content hashing for the context registry (4.A Hasher).
//
// Condition and override values are hashed after canonicalization so that
// two logically-equal JSON trees - built independently by different
// callers - always produce the same id. See spec §9 for the
// canonicalization quirk this resolves: object keys are sorted
// recursively rather than relying on insertion order.
package canonicalize

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"lukechampine.com/blake3"
)

// JCS returns the RFC 8785 canonical JSON representation of v. v is first
// marshaled with the standard encoder so struct tags are respected, then
// transformed into canonical form (sorted keys, ECMA-262 number formatting,
// no HTML escaping) by gowebpki/jcs, the reference Go implementation of
// RFC 8785.
func JCS(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	data, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return data, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Hash returns the content hash (4.A) of the canonical JSON
// representation of v: a hex-encoded, unkeyed BLAKE3-256 digest
// (blake3.Sum256) of the JCS bytes.
func Hash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the BLAKE3-256 hash of raw bytes and hex-encodes it.
// Collisions are treated as impossible per spec §4.A, so two conditions
// count as duplicates exactly when their hashes (their context ids) are
// equal; the canonical bytes themselves are not compared.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
