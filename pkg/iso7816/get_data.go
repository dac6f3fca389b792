package iso7816

// GET DATA (PC/SC Part 3):
// Contactless readers answer a set of pseudo-APDUs themselves instead of forwarding
// them to the card. They use the otherwise reserved class FF.
//
// GET DATA 'CA' with P1 = 00 returns the card UID (or the PUPI / IDm of type B and
// FeliCa cards). P1 = 01 returns the historical bytes of the ATS.

// GetDataTarget selects what the reader returns for a GET DATA pseudo-APDU (P1).
type GetDataTarget byte

const (
	GetDataUID           GetDataTarget = 0x00
	GetDataHistoricalATS GetDataTarget = 0x01
)

// NewGetDataCommand creates a reader GET DATA command. Le = 00 asks for the full value.
func NewGetDataCommand(target GetDataTarget) *CommandAPDU {
	ins := mustInstruction(INS_GET_DATA)
	return NewCommandAPDU(ReaderClass, ins, byte(target), 0x00, nil, MaxShortLe)
}

// GetUID creates the FF CA 00 00 00 command reading the card UID.
func GetUID() *CommandAPDU {
	return NewGetDataCommand(GetDataUID)
}
