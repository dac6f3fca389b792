package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

func TestSelectResult_Describe(t *testing.T) {
	cls := Class{}

	t.Run("EF with FCP through GET RESPONSE", func(t *testing.T) {
		fcp := codec.MustDecode(
			"62 0B",
			"80 02 025A", // 602 bytes
			"82 01 01",   // Transparent working EF
			"83 02 0101", // FID
		)
		trace := Trace{
			{
				Command:  SelectEF(cls, 0x0101),
				Response: &ResponseAPDU{Status: NewStatusWord(0x61, 0x0D)},
			},
			{
				Command:  NewCommandAPDU(cls, mustInstruction(INS_GET_RESPONSE), 0, 0, nil, 13),
				Response: &ResponseAPDU{Data: fcp, Status: SW_NO_ERROR},
			},
		}

		res, err := NewSelectResult(trace)
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}

		want := []string{
			"=== SELECT COMMAND REPORT ===",
			"[1] Command: SELECT FILE",
			"    + Method:  02 -> Select EF under current DF",
			"    + Control: 04 -> First/Only | Return FCP",
			`    + Target:  0101 ("..")`,
			"    + Result:  [61 0D] [OK] 0D (13) bytes still available",
			"",
			"[2] Protocol: Auto-handling (2 steps)",
			"    + Step 2:  GET RESPONSE (Le 13) -> [90 00] [OK] SW_NO_ERROR",
			"",
			"[=] FILE INFORMATION:",
			"    - Received:  13 bytes",
			"    - File ID:   0101",
			"    - Size:      602 bytes",
			"    - Structure: Transparent EF",
			"    - FCP.DataSize (80): 025A (Dec: 602)",
			"    - FCP.FileDescriptor (82): 01",
			"    - FCP.FileIdentifier (83): 0101",
		}

		if diff := cmp.Diff(want, strings.Split(res.Describe(), "\n")); diff != "" {
			t.Errorf("Report mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Application by AID", func(t *testing.T) {
		aid := []byte("1PAY.SYS.DDF01")
		trace := Trace{
			{
				Command: SelectByAID(cls, aid),
				Response: &ResponseAPDU{
					Data: codec.MustDecode(
						"6F 14",
						"64 12",
						"84 0E 315041592E5359532E4444463031",
						"99 00",
					),
					Status: SW_NO_ERROR,
				},
			},
		}

		res, _ := NewSelectResult(trace)
		report := res.Describe()

		for _, line := range []string{
			"    + Method:  04 -> Select by DF Name (AID)",
			"    + Control: 00 -> First/Only | Return FCI",
			`    + Target:  315041592E5359532E4444463031 ("1PAY.SYS.DDF01")`,
			`    - FMD.ApplicationIdentifier (84): 315041592E5359532E4444463031 ("1PAY.SYS.DDF01")`,
			"    - FMD.Unknown Tag 99: ",
		} {
			if !strings.Contains(report, line) {
				t.Errorf("Report missing line: %q\n%s", line, report)
			}
		}
		if strings.Contains(report, "[2] Protocol") {
			t.Error("Single exchange must not report protocol steps")
		}
	})

	t.Run("No data requested", func(t *testing.T) {
		trace := Trace{
			{
				Command:  SelectFile(cls, 0x3F00, ReturnNoData),
				Response: &ResponseAPDU{Status: SW_NO_ERROR},
			},
		}

		res, _ := NewSelectResult(trace)
		report := res.Describe()
		if !strings.HasSuffix(report, "[=] FILE INFORMATION:\n    - No Data requested.") {
			t.Errorf("Unexpected report ending:\n%s", report)
		}
	})

	t.Run("File not found", func(t *testing.T) {
		trace := Trace{
			{
				Command:  SelectEF(cls, 0x0202),
				Response: &ResponseAPDU{Status: SW_ERR_FILE_NOT_FOUND},
			},
		}

		res, _ := NewSelectResult(trace)
		report := res.Describe()
		for _, line := range []string{
			"    + Result:  [6A 82] [!!] ",
			"    - FCI Parsing Failed: selection failed: ",
		} {
			if !strings.Contains(report, line) {
				t.Errorf("Report missing line: %q\n%s", line, report)
			}
		}
	})
}

func TestNewSelectResult_Errors(t *testing.T) {
	if _, err := NewSelectResult(nil); err == nil {
		t.Error("Expected error for empty trace")
	}

	cmd, _ := ReadBinary(Class{}, 0, 2)
	trace := Trace{{Command: cmd, Response: &ResponseAPDU{Status: SW_NO_ERROR}}}
	if _, err := NewSelectResult(trace); err == nil {
		t.Error("Expected error for a trace not starting with SELECT")
	}
}
