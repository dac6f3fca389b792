package iso7816

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-reader/pkg/tlv"
)

// ErrNoSelectData is returned by SelectResult.FCI when the card answered without a data field.
var ErrNoSelectData = errors.New("iso7816: no data in SELECT response")

// SelectResult is the outcome of a SELECT command, GET RESPONSE and Le corrections included.
type SelectResult struct {
	Trace
}

// NewSelectResult wraps a trace that starts with a SELECT command.
func NewSelectResult(t Trace) (*SelectResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}
	if ins := t[0].Command.Instruction.Raw; ins != INS_SELECT {
		return nil, fmt.Errorf("trace must start with SELECT command (got %02X)", ins)
	}
	return &SelectResult{Trace: t}, nil
}

// FCI parses the data of the final response according to P2 of the initial SELECT.
func (r *SelectResult) FCI() (*FileControlInfo, error) {
	if !r.IsSuccess() {
		return nil, fmt.Errorf("selection failed: %s", r.Last().Response.Status.Verbose())
	}

	data := r.Last().Response.Data
	if len(data) == 0 {
		return nil, ErrNoSelectData
	}
	return ParseSelectData(data, r.Trace[0].Command.P2)
}

// Describe renders the selection as a report: the request, the transport steps that
// followed it, then the parsed file information.
func (r *SelectResult) Describe() string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	first := r.Trace[0]
	cmd := first.Command

	line("=== SELECT COMMAND REPORT ===")
	line("[1] Command: SELECT FILE")
	line("    + Method:  %02X -> %s", cmd.P1, SelectionMethod(cmd.P1))
	ctrl, occ := SplitP2(cmd.P2)
	line("    + Control: %02X -> %s | %s", cmd.P2, occ, ctrl)
	if len(cmd.Data) > 0 {
		line("    + Target:  %X (%q)", cmd.Data, tlv.Printable(cmd.Data))
	}
	line("    + Result:  %s", describeStatus(first.Response.Status))
	line("")

	last := r.Last()
	if len(r.Trace) > 1 {
		line("[2] Protocol: Auto-handling (%d steps)", len(r.Trace))
		for i, tx := range r.Trace[1:] {
			line("    + Step %d:  %s -> %s", i+2, stepName(tx.Command), describeStatus(tx.Response.Status))
		}
		line("")
	}

	line("[=] FILE INFORMATION:")
	fci, err := r.FCI()
	switch {
	case err == nil && fci == nil,
		errors.Is(err, ErrNoSelectData) && ctrl == ReturnNoData:
		line("    - No Data requested.")
	case errors.Is(err, ErrNoSelectData):
		line("    - No Data returned.")
	case err != nil:
		line("    - FCI Parsing Failed: %v", err)
	default:
		describeFCI(line, fci, len(last.Response.Data))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func describeFCI(line func(string, ...any), fci *FileControlInfo, n int) {
	if len(fci.ProprietaryRawData) > 0 {
		line("    - Proprietary: %X", fci.ProprietaryRawData)
		return
	}

	line("    - Received:  %d bytes", n)
	if fid, ok := fci.FileID(); ok {
		line("    - File ID:   %04X", fid)
	}
	if size, ok := fci.FileSize(); ok {
		line("    - Size:      %d bytes", size)
	}
	if transparent, ok := fci.IsTransparent(); ok {
		structure := "Other"
		if transparent {
			structure = "Transparent EF"
		}
		line("    - Structure: %s", structure)
	}

	for _, l := range tlv.Fields("FCP", fci.FCP) {
		line("%s", l)
	}
	for _, l := range tlv.Fields("FMD", fci.FMD) {
		line("%s", l)
	}
	for _, t := range fci.Unknown {
		line("    - Unknown Tag %s: %X", strings.ToUpper(t.Tag), t.Value)
	}
}

func stepName(cmd *CommandAPDU) string {
	switch cmd.Instruction.Raw {
	case INS_GET_RESPONSE:
		return fmt.Sprintf("GET RESPONSE (Le %d)", cmd.Ne)
	case INS_SELECT:
		return fmt.Sprintf("SELECT again (Le %d)", cmd.Ne)
	}
	return fmt.Sprintf("INS %02X", cmd.Instruction.Raw)
}
