package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

// Transaction is one command sent to the card and the response it produced.
// Response is nil when the exchange failed at the transport level.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether the response carries a success status (9000 or 61XX).
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace records every exchange made for one logical command, in order.
// A SELECT answered with 61XX, for example, is followed by its GET RESPONSE.
type Trace []Transaction

// Last returns the final transaction, nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether the final transaction succeeded. Intermediate 61XX and
// 6CXX steps do not count.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Status returns the status word of the final response. ok is false when the trace is
// empty or its final exchange has no response.
func (t Trace) Status() (sw StatusWord, ok bool) {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0, false
	}
	return last.Response.Status, true
}

// Data returns the data field of the final response.
func (t Trace) Data() []byte {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil
	}
	return last.Response.Data
}

// String renders the exchanges as ">> command << response" pairs separated by " | ",
// suitable for a single log attribute.
func (t Trace) String() string {
	parts := make([]string, 0, len(t))
	for _, tx := range t {
		cmd := "?"
		if tx.Command != nil {
			if raw, err := tx.Command.Bytes(); err == nil {
				cmd = codec.Encode(raw)
			}
		}
		resp := "-"
		if tx.Response != nil {
			resp = codec.Encode(tx.Response.Bytes())
		}
		parts = append(parts, fmt.Sprintf(">> %s << %s", cmd, resp))
	}
	return strings.Join(parts, " | ")
}
