package canonical

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding (RFC 8949 section 4.2.1): sorted map keys,
	// shortest integer forms, definite lengths.
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("canonical: invalid CBOR encoding options: %v", err))
	}

	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("canonical: invalid CBOR decoding options: %v", err))
	}
}

// MarshalCBOR renders doc as deterministic CBOR, the compact twin of the
// canonical JSON form.
func MarshalCBOR(doc Document) ([]byte, error) {
	data, err := cborEncMode.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("CBOR encoding failed: %w", err)
	}
	return data, nil
}

// UnmarshalCBOR decodes a CBOR map produced by MarshalCBOR.
func UnmarshalCBOR(data []byte) (Document, error) {
	var m map[string]any
	if err := cborDecMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("CBOR decoding failed: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: CBOR item is not a map", ErrInvalidField)
	}
	return Document(m), nil
}
