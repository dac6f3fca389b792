package iso7816

import (
	"fmt"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
)

// InsCode is the instruction byte of a command.
//
// With an interindustry class, bit 1 set announces BER-TLV data (B0 vs B1 for READ BINARY).
// Values 6X and 9X are never valid: T=0 uses them as procedure bytes and status words.
type InsCode byte

// Instructions sent by the reader layer.
const (
	INS_SELECT          InsCode = 0xA4
	INS_READ_BINARY     InsCode = 0xB0
	INS_READ_BINARY_BER InsCode = 0xB1
	INS_GET_RESPONSE    InsCode = 0xC0
	INS_ENVELOPE        InsCode = 0xC2
	INS_GET_DATA        InsCode = 0xCA
	INS_GET_DATA_BER    InsCode = 0xCB
)

var insNames = map[InsCode]string{
	INS_SELECT:          "SELECT",
	INS_READ_BINARY:     "READ BINARY",
	INS_READ_BINARY_BER: "READ BINARY",
	INS_GET_RESPONSE:    "GET RESPONSE",
	INS_ENVELOPE:        "ENVELOPE",
	INS_GET_DATA:        "GET DATA",
	INS_GET_DATA_BER:    "GET DATA",
}

// String returns the command name, or INS(XX) for an instruction this package does not send.
func (c InsCode) String() string {
	if name, ok := insNames[c]; ok {
		return name
	}
	return fmt.Sprintf("INS(%02X)", byte(c))
}

// Instruction is a validated instruction byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates ins. 6X and 9X are rejected.
func NewInstruction(ins InsCode) (Instruction, error) {
	switch byte(ins) & 0xF0 {
	case 0x60, 0x90:
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}
	return Instruction{Raw: ins, IsBERTLV: bits.IsSet(byte(ins), 1)}, nil
}

// mustInstruction is NewInstruction for the constants above.
func mustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose describes the instruction, e.g. "A4 SELECT" or "B1 READ BINARY (BER-TLV)".
func (i Instruction) Verbose() string {
	s := fmt.Sprintf("%02X %s", byte(i.Raw), i.Raw)
	if i.IsBERTLV {
		s += " (BER-TLV)"
	}
	return s
}
