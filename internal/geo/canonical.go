package geo

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Canonicalize re-serializes a GeoJSON (or any JSON) document with
// object keys in sorted order, mirroring Python's
// json.dumps(..., sort_keys=True) used by the original job manager to
// build its deduplication key. Go's encoding/json already sorts
// map[string]interface{} keys on Marshal, so round-tripping through
// that representation is sufficient.
func Canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("geo: canonicalize: invalid json: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("geo: canonicalize: marshal: %w", err)
	}
	return out, nil
}

// Equal reports whether two geometry documents describe the same
// structure, independent of key order or insignificant whitespace.
// Comparison is value-based (unmarshal then deep-equal) rather than
// byte-equality of the canonical form, since numeric literals like
// "1" vs "1.0" decode to the same float64.
func Equal(a, b json.RawMessage) (bool, error) {
	var va, vb interface{}
	if err := json.Unmarshal(a, &va); err != nil {
		return false, fmt.Errorf("geo: equal: invalid json a: %w", err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false, fmt.Errorf("geo: equal: invalid json b: %w", err)
	}
	return reflect.DeepEqual(va, vb), nil
}

// IsEmpty reports whether raw is absent or an empty JSON document.
// Per the documented testable property, coverage checks against an
// empty geometry report every dataset as covered.
func IsEmpty(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	return v == nil
}
