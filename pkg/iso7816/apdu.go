package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
)

// A C-APDU is CLA INS P1 P2, then an optional body [Lc Data] [Le].
// Nc is the length of Data and Ne the number of response bytes expected.
//
//	case 1: header only
//	case 2: header Le
//	case 3: header Lc Data
//	case 4: header Lc Data Le
//
// Short fields are one byte, where an Le of 00 means 256. Extended fields are
// used once Nc exceeds 255 or Ne exceeds 256: Lc becomes 00 followed by two
// bytes, and Le two bytes where 0000 means 65536.
//
// An R-APDU is the response data followed by the SW1-SW2 trailer.

// Length limits.
const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536
)

var (
	// ErrResponseTooShort is returned when a response lacks the SW1-SW2 trailer.
	ErrResponseTooShort = errors.New("response shorter than status word")
	// ErrMalformedCommand is returned by ParseCommandAPDU when the body matches no encoding case.
	ErrMalformedCommand = errors.New("malformed command APDU")
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// ParseCommandAPDU decodes a C-APDU in any of the seven short and extended forms.
// CLA FF is accepted as ReaderClass.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: header of %d bytes", ErrMalformedCommand, len(raw))
	}
	cla, err := ParseClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}
	cmd := NewCommandAPDU(cla, ins, raw[2], raw[3], nil, 0)

	body := raw[4:]
	switch {
	case len(body) == 0:
		return cmd, nil
	case len(body) == 1:
		cmd.Ne = shortLe(body[0])
		return cmd, nil
	case body[0] != 0:
		lc := int(body[0])
		switch len(body) {
		case 1 + lc:
		case 2 + lc:
			cmd.Ne = shortLe(body[1+lc])
		default:
			return nil, fmt.Errorf("%w: Lc %d with %d body bytes", ErrMalformedCommand, lc, len(body))
		}
		cmd.Data = body[1 : 1+lc]
		return cmd, nil
	case len(body) == 3:
		cmd.Ne = extendedLe(body[1], body[2])
		return cmd, nil
	case len(body) > 3:
		lc := int(bits.Join(body[1], body[2]))
		switch len(body) {
		case 3 + lc:
		case 5 + lc:
			cmd.Ne = extendedLe(body[3+lc], body[4+lc])
		default:
			return nil, fmt.Errorf("%w: extended Lc %d with %d body bytes", ErrMalformedCommand, lc, len(body))
		}
		if lc == 0 {
			return nil, fmt.Errorf("%w: extended Lc of 0", ErrMalformedCommand)
		}
		cmd.Data = body[3 : 3+lc]
		return cmd, nil
	}
	return nil, fmt.Errorf("%w: body %X", ErrMalformedCommand, body)
}

func shortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

func extendedLe(hi, lo byte) int {
	if n := int(bits.Join(hi, lo)); n != 0 {
		return n
	}
	return MaxExtendedLe
}

// Case returns the ISO 7816-3 encoding case (1 to 4) of the command.
func (c *CommandAPDU) Case() int {
	switch {
	case len(c.Data) > 0 && c.Ne > 0:
		return 4
	case len(c.Data) > 0:
		return 3
	case c.Ne > 0:
		return 2
	}
	return 1
}

// Extended reports whether the command needs extended length fields.
func (c *CommandAPDU) Extended() bool {
	return len(c.Data) > MaxShortLc || c.Ne > MaxShortLe
}

// Bytes encodes the command, choosing short or extended lengths from Nc and Ne.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data field too long: %d bytes", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("expected length out of range: %d", ne)
	}
	cla, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode class: %w", err)
	}

	out := make([]byte, 0, 4+3+nc+2)
	out = append(out, cla, byte(c.Instruction.Raw), c.P1, c.P2)
	ext := c.Extended()

	if nc > 0 {
		if ext {
			hi, lo := bits.Split(uint16(nc))
			out = append(out, 0x00, hi, lo)
		} else {
			out = append(out, byte(nc))
		}
		out = append(out, c.Data...)
	}

	switch {
	case ne == 0:
	case !ext:
		// 256 wraps to 00
		out = append(out, byte(ne))
	default:
		if nc == 0 {
			out = append(out, 0x00)
		}
		// 65536 wraps to 0000
		hi, lo := bits.Split(uint16(ne))
		out = append(out, hi, lo)
	}
	return out, nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | CLA: %s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.Class, c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is a decoded R-APDU.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into the data field and the trailing status word.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	n := len(raw) - 2
	if n < 0 {
		return nil, fmt.Errorf("%w: length %d", ErrResponseTooShort, len(raw))
	}
	return &ResponseAPDU{Data: raw[:n], Status: NewStatusWord(raw[n], raw[n+1])}, nil
}

// Bytes returns Data followed by SW1-SW2.
func (r *ResponseAPDU) Bytes() []byte {
	return append(append(make([]byte, 0, len(r.Data)+2), r.Data...), r.Status.SW1(), r.Status.SW2())
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
