// Package codec serializes values stored by the integrity layer.
//
// Encoding is CBOR with Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, shortest integer forms, no indefinite lengths. The same logical
// value always produces the same bytes, which keeps stored digests stable
// across processes. Types tagged only with `json` struct tags are encoded
// using those names.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Values decoded into any must be usable as JSON-style maps.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
