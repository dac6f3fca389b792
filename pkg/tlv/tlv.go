// Package tlv decodes the BER-TLV data returned by cards into Go structures.
//
// Struct fields are bound to tags with a `tlv:"TAG[,option]"` struct tag:
//
//	type FCP struct {
//		Size    []byte       `tlv:"80,int"`
//		Name    []byte       `tlv:"84,ascii"`
//		Unknown []bertlv.TLV `tlv:",unknown"`
//	}
//
// The ascii and int options only change how Fields renders the value. The unknown
// option collects every TLV no other field claimed.
package tlv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

var (
	// ErrMalformed is returned when data is not valid BER-TLV.
	ErrMalformed = errors.New("tlv: malformed data")
	// ErrTagNotFound is returned by Value when the path does not exist.
	ErrTagNotFound = errors.New("tlv: tag not found")
)

// Decode parses data into its top-level TLVs.
func Decode(data []byte) ([]bertlv.TLV, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return packets, nil
}

// Find follows path through nested templates and returns the TLV at its end.
// Tags are compared case-insensitively.
func Find(packets []bertlv.TLV, path ...string) (bertlv.TLV, bool) {
	var found bertlv.TLV
	level := packets

	for _, tag := range path {
		var ok bool
		for _, p := range level {
			if strings.EqualFold(p.Tag, tag) {
				found, ok = p, true
				break
			}
		}
		if !ok {
			return bertlv.TLV{}, false
		}
		level = found.TLVs
	}
	return found, len(path) > 0
}

// Value decodes data and returns the raw value at path. A constructed TLV is returned
// with its children re-encoded.
func Value(data []byte, path ...string) ([]byte, error) {
	packets, err := Decode(data)
	if err != nil {
		return nil, err
	}

	p, ok := Find(packets, path...)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, strings.Join(path, "/"))
	}
	return raw(p), nil
}

// Uint reads b as a big-endian unsigned integer. ok is false for an empty value or one
// longer than 8 bytes.
func Uint(b []byte) (v uint64, ok bool) {
	if len(b) == 0 || len(b) > 8 {
		return 0, false
	}
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, true
}

func raw(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}
