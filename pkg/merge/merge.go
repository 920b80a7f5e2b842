// Package merge implements RFC 7396 JSON Merge Patch semantics: object
// keys recurse, non-object values replace, and a null value deletes the
// key. It backs both the context registry's upsert-merge (spec §4.G)
// and the resolver's override fold (spec §4.H) — the same merge used in
// both places, as spec §9 requires.
package merge

import (
	jsonpatch "github.com/evanphx/json-patch"
)

// Patch applies patch atop original per RFC 7396 and returns the merged
// document. Both arguments and the result are raw JSON object bytes.
func Patch(original, patch []byte) ([]byte, error) {
	return jsonpatch.MergePatch(original, patch)
}
