package iso7816

import (
	"fmt"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
)

// READ BINARY COMMAND LOGIC (ISO 7816-4):
// The READ BINARY command (INS 'B0') reads part of a transparent EF.
//
// P1-P2 (Offset):
// - If bit 8 of P1 is 0, P1-P2 encode a 15-bit offset into the current EF (0000 - 7FFF).
// - If bit 8 of P1 is 1, bits 5-1 of P1 carry an SFI and P2 is an 8-bit offset.
//
// Le is the maximum number of bytes to return. A card reaching the end of the file
// before Le bytes answers with the data available and SW 6282, or with 6B00 when the
// offset itself lies beyond the end of the file.

// MaxBinaryOffset is the largest offset addressable in the current EF.
const MaxBinaryOffset = 0x7FFF

// ReadBinary creates a READ BINARY command on the current EF starting at offset.
func ReadBinary(cla Class, offset int, ne int) (*CommandAPDU, error) {
	if offset < 0 || offset > MaxBinaryOffset {
		return nil, fmt.Errorf("offset %d out of range (max %d)", offset, MaxBinaryOffset)
	}
	if ne <= 0 || ne > MaxShortLe {
		return nil, fmt.Errorf("expected length %d out of range (1-%d)", ne, MaxShortLe)
	}

	ins := mustInstruction(INS_READ_BINARY)
	p1, p2 := bits.Split(uint16(offset))

	return NewCommandAPDU(cla, ins, p1, p2, nil, ne), nil
}

// BinaryOffset decodes the target of a READ BINARY command from P1-P2.
// sfi is zero when the command addresses the current EF.
func BinaryOffset(cmd *CommandAPDU) (sfi byte, offset int) {
	if bits.IsSet(cmd.P1, 8) {
		return bits.GetRange(cmd.P1, 5, 1), int(cmd.P2)
	}
	return 0, int(bits.Join(cmd.P1, cmd.P2))
}
