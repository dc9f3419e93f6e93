package contentkey

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes parameter structs deterministically: map keys sorted,
// shortest integer and float forms, no indefinite lengths. Two equal
// parameter values therefore always produce identical bytes.
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	// Stable across Go versions and platforms; NaN is never a valid parameter.
	opts.NaNConvert = cbor.NaNConvert7e00
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("contentkey: building CBOR encoder: %v", err))
	}
}

func encodeParams(params any) ([]byte, error) {
	data, err := encMode.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	return data, nil
}
