// Package canonical produces the deterministic byte serialization used for
// hashing, signing, and equality checks. All call sites that feed the hash
// chain or the integrity payload go through this package so the hashing-time
// and verification-time forms can never drift apart.
package canonical

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Marshal serializes v into RFC 8785 canonical JSON: object keys sorted by
// code point, no insignificant whitespace, numbers in shortest round-trip
// form, arrays in input order.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// Transform canonicalizes an existing JSON document.
func Transform(raw []byte) ([]byte, error) {
	return jcs.Transform(raw)
}

// Normalize round-trips v through JSON so that the result uses only the
// generic value tree (map[string]interface{}, []interface{}, string,
// float64, bool, nil). Structs, typed slices, and integer kinds collapse
// into the same representation their canonical form has.
func Normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal reports whether two values have identical canonical serializations.
// Representational differences (key order, integer vs float forms) do not
// cause a mismatch.
func Equal(a, b interface{}) bool {
	ca, err := Marshal(a)
	if err != nil {
		return false
	}
	cb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
