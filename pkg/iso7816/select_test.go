package iso7816

import (
	"bytes"
	"testing"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

func TestSelectCommands(t *testing.T) {
	cls, _ := NewClass(0x00)
	ch1, _ := NewClass(0x01)

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected string
	}{
		{"by AID, no Le with data", SelectByAID(cls, []byte("2PAY.SYS.DDF01")), "00A404000E 325041592E5359532E4444463031"},
		{"MF without data asks for 256", NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil), "00A4000000"},
		{"MF by FID, no data", SelectFile(cls, MasterFile, ReturnNoData), "00A4000C02 3F00"},
		{"EF under current DF", SelectEF(cls, 0x0101), "00A4020402 0101"},
		{"EF on channel 1", SelectEF(ch1, 0x011E), "01A4020402 011E"},
		{"next occurrence FMD", NewSelectCommand(cls, SelectChildDF, NextOccurrence, ReturnFMD, []byte{0xDF, 0x01}), "00A4010A02 DF01"},
		{"path from MF", SelectPath(cls, true, ReturnFCP, 0x5000, 0x5031), "00A4080404 50005031"},
		{"path from current DF", SelectPath(cls, false, ReturnNoData, 0x0101), "00A4090C02 0101"},
		{"parent without data", NewSelectCommand(cls, SelectParentDF, FirstOrOnlyOccurrence, ReturnNoData, nil), "00A4030C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if want := codec.MustDecode(tt.expected); !bytes.Equal(got, want) {
				t.Errorf("Bytes = %s, want %s", codec.Encode(got), codec.Encode(want))
			}
		})
	}
}

func TestSplitP2(t *testing.T) {
	tests := []struct {
		p2       byte
		ctrl     SelectionControl
		occ      FileOccurrence
		describe string
	}{
		{0x00, ReturnFCI, FirstOrOnlyOccurrence, "Return FCI | First/Only"},
		{0x04, ReturnFCP, FirstOrOnlyOccurrence, "Return FCP | First/Only"},
		{0x0A, ReturnFMD, NextOccurrence, "Return FMD | Next"},
		{0x0F, ReturnNoData, PreviousOccurrence, "No Response Data | Previous"},
		{0xF1, ReturnFCI, LastOccurrence, "Return FCI | Last"},
	}

	for _, tt := range tests {
		ctrl, occ := SplitP2(tt.p2)
		if ctrl != tt.ctrl || occ != tt.occ {
			t.Errorf("SplitP2(%02X) = %02X, %02X; want %02X, %02X", tt.p2, byte(ctrl), byte(occ), byte(tt.ctrl), byte(tt.occ))
		}
		if got := ctrl.String() + " | " + occ.String(); got != tt.describe {
			t.Errorf("SplitP2(%02X) describes as %q, want %q", tt.p2, got, tt.describe)
		}
	}
}

func TestSelectionMethod_String(t *testing.T) {
	if got := SelectByDFName.String(); got != "Select by DF Name (AID)" {
		t.Errorf("String = %q", got)
	}
	if got := SelectionMethod(0x42).String(); got != "Unknown Method (0x42)" {
		t.Errorf("String = %q", got)
	}
}
