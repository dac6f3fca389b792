// Package codec converts between raw byte sequences and the hexadecimal text
// exchanged with reader drivers.
//
// The wire form is two upper-case digits per byte with no separator
// ("00FF10"). The display form joins the same digits with ",0x"
// ("04,0xA1,0x90,0x00") and is only meant for logs and UIs.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DisplaySeparator is inserted between bytes by Display.
const DisplaySeparator = ",0x"

// ErrMalformedHex is matched by every decoding failure.
// It signals a broken driver contract, so callers should not retry on it.
var ErrMalformedHex = errors.New("malformed hex")

// MalformedHexError describes why a hex string could not be decoded.
type MalformedHexError struct {
	Input string
	Err   error
}

func (e *MalformedHexError) Error() string {
	in := e.Input
	if len(in) > 32 {
		in = in[:32] + "..."
	}
	return fmt.Sprintf("malformed hex %q: %v", in, e.Err)
}

func (e *MalformedHexError) Unwrap() error { return e.Err }

func (e *MalformedHexError) Is(target error) bool { return target == ErrMalformedHex }

// Encode returns the wire representation of b.
func Encode(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Display returns the human-readable representation of b.
func Display(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, DisplaySeparator)
}

// Decode parses a wire hex string. Lower-case digits are accepted.
func Decode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, &MalformedHexError{Input: s, Err: hex.ErrLength}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &MalformedHexError{Input: s, Err: err}
	}
	return b, nil
}

// MustDecode joins parts, strips spaces and decodes the result.
// It panics on malformed input and is intended for fixed command tables and tests.
func MustDecode(parts ...string) []byte {
	clean := strings.ReplaceAll(strings.Join(parts, ""), " ", "")

	data, err := Decode(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}
