package iso7816

import (
	"fmt"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
)

// SELECT (INS A4) makes a file or an application current.
// P1 says how the target is named. P2 packs what the card should answer
// (b4-b3) and which occurrence to pick when names repeat (b2-b1).

// MasterFile is the reserved FID of the root directory.
const MasterFile uint16 = 0x3F00

// SelectionMethod is the P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04 // AID
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

var methodNames = map[SelectionMethod]string{
	SelectByFileID:          "Select by File ID",
	SelectChildDF:           "Select Child DF",
	SelectEFUnderCurrentDF:  "Select EF under current DF",
	SelectParentDF:          "Select Parent DF",
	SelectByDFName:          "Select by DF Name (AID)",
	SelectPathFromMF:        "Select Path from MF",
	SelectPathFromCurrentDF: "Select Path from Current DF",
}

func (s SelectionMethod) String() string {
	if name, ok := methodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
}

// FileOccurrence is P2 b2-b1.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

func (f FileOccurrence) String() string {
	return [...]string{"First/Only", "Last", "Next", "Previous"}[f&0b11]
}

// SelectionControl is P2 b4-b3.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b00 << 2
	ReturnFCP    SelectionControl = 0b01 << 2
	ReturnFMD    SelectionControl = 0b10 << 2
	ReturnNoData SelectionControl = 0b11 << 2
)

func (s SelectionControl) String() string {
	return [...]string{"Return FCI", "Return FCP", "Return FMD", "No Response Data"}[(s>>2)&0b11]
}

// SplitP2 separates the two fields of a SELECT P2.
func SplitP2(p2 byte) (SelectionControl, FileOccurrence) {
	return SelectionControl(bits.GetRange(p2, 4, 3) << 2), FileOccurrence(bits.GetRange(p2, 2, 1))
}

// NewSelectCommand creates a SELECT command.
//
// Le is only sent when there is no data field. Under T=0 a case 4 command
// loses its Le anyway, and the card announces its answer with 61XX instead.
func NewSelectCommand(cla Class, method SelectionMethod, occurrence FileOccurrence, ctrl SelectionControl, data []byte) *CommandAPDU {
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, mustInstruction(INS_SELECT), byte(method), byte(ctrl)|byte(occurrence), data, ne)
}

// SelectByAID selects an application by name and asks for its FCI.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectFile selects a file by FID (P1 00).
func SelectFile(cla Class, fid uint16, ctrl SelectionControl) *CommandAPDU {
	return NewSelectCommand(cla, SelectByFileID, FirstOrOnlyOccurrence, ctrl, fidBytes(fid))
}

// SelectEF selects an EF under the current DF and asks for its FCP,
// which usually carries the file size (tag 80).
func SelectEF(cla Class, fid uint16) *CommandAPDU {
	return NewSelectCommand(cla, SelectEFUnderCurrentDF, FirstOrOnlyOccurrence, ReturnFCP, fidBytes(fid))
}

// SelectPath selects a file by its path of FIDs, from the MF (P1 08) or from
// the current DF (P1 09). A path from the MF omits 3F00.
func SelectPath(cla Class, fromMF bool, ctrl SelectionControl, path ...uint16) *CommandAPDU {
	method := SelectPathFromCurrentDF
	if fromMF {
		method = SelectPathFromMF
	}
	data := make([]byte, 0, 2*len(path))
	for _, fid := range path {
		data = append(data, fidBytes(fid)...)
	}
	return NewSelectCommand(cla, method, FirstOrOnlyOccurrence, ctrl, data)
}

func fidBytes(fid uint16) []byte {
	hi, lo := bits.Split(fid)
	return []byte{hi, lo}
}
