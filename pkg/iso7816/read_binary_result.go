package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-reader/pkg/tlv"
)

// ReadBinaryResult represents the outcome of a READ BINARY command execution.
type ReadBinaryResult struct {
	Trace
}

func NewReadBinaryResult(t Trace) (*ReadBinaryResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	if t[0].Command.Instruction.Raw != INS_READ_BINARY {
		return nil, fmt.Errorf("trace must start with READ BINARY command (got %02X)", t[0].Command.Instruction.Raw)
	}

	return &ReadBinaryResult{Trace: t}, nil
}

// Data returns the bytes delivered by the final response, or nil when the trace
// ended on an error status. The 6282 end-of-file warning still carries data.
func (r *ReadBinaryResult) Data() []byte {
	last := r.Last()
	if last == nil || last.Response == nil {
		return nil
	}
	if last.Response.Status.IsSuccess() || last.Response.Status.IsEndOfFile() {
		return last.Response.Data
	}
	return nil
}

// Offset returns the offset the read started at.
func (r *ReadBinaryResult) Offset() int {
	_, off := BinaryOffset(r.Trace[0].Command)
	return off
}

// Describe generates a detailed, ASCII-formatted report of the read operation.
func (r *ReadBinaryResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== READ BINARY COMMAND REPORT ===\n")

	tx0 := r.Trace[0]
	cmd := tx0.Command
	sfi, offset := BinaryOffset(cmd)

	sb.WriteString("[1] Command: READ BINARY\n")

	targetStr := "Current EF"
	if sfi > 0 {
		targetStr = fmt.Sprintf("SFI %02X (%d)", sfi, sfi)
	}
	sb.WriteString(fmt.Sprintf("    + Target:  %s\n", targetStr))
	sb.WriteString(fmt.Sprintf("    + Offset:  %02X%02X -> %d\n", cmd.P1, cmd.P2, offset))
	sb.WriteString(fmt.Sprintf("    + Le:      %d\n", cmd.Ne))
	sb.WriteString(fmt.Sprintf("    + Result:  %s\n", describeStatus(tx0.Response.Status)))
	sb.WriteString("\n")

	lastTx := r.Last()
	if len(r.Trace) > 1 {
		sb.WriteString(fmt.Sprintf("[2] Protocol: Auto-handling (%d steps)\n", len(r.Trace)))
		sb.WriteString(fmt.Sprintf("    + Final SW: [%04X]\n", uint16(lastTx.Response.Status)))
	}

	sb.WriteString("[=] DATA OUTCOME:\n")
	if payload := r.Data(); len(payload) > 0 {
		sb.WriteString(fmt.Sprintf("    + Length: %d bytes\n", len(payload)))
		sb.WriteString(fmt.Sprintf("    + Dump:   %X\n", payload))
		sb.WriteString(fmt.Sprintf("    + ASCII:  %q\n", tlv.Printable(payload)))
		if lastTx.Response.Status.IsEndOfFile() {
			sb.WriteString("    + Note:   End of file reached before Le bytes\n")
		}
	} else {
		sb.WriteString("    - No Data Received.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// describeStatus renders the "[SW1 SW2] [OK|!!] reason" fragment shared by the command reports.
func describeStatus(sw StatusWord) string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	resultMsg := "[OK]"
	resultDesc := "SW_NO_ERROR"

	switch {
	case sw1 == 0x61:
		resultDesc = fmt.Sprintf("%02X (%d) bytes still available", sw2, sw2)
	case sw1 == 0x6C:
		resultMsg = "[!!]"
		resultDesc = fmt.Sprintf("Wrong length, correct is %02X (%d)", sw2, sw2)
	case sw.IsEndOfFile():
		resultMsg = "[~~]"
		resultDesc = sw.Verbose()
	case sw != SW_NO_ERROR:
		resultMsg = "[!!]"
		resultDesc = sw.Verbose()
	}

	return fmt.Sprintf("[%02X %02X] %s %s", sw1, sw2, resultMsg, resultDesc)
}
