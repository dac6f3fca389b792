/*
Package reader defines the boundary between the card session logic and the reader hardware.

A Driver speaks in hex strings, the way PC/SC bridges and native reader modules usually do.
The Transport converts those strings to and from bytes, bounds every exchange with a timeout and
guarantees that a slot never carries more than one exchange at a time: smart cards are strictly
half-duplex, and a second command sent before the first response is back corrupts both.

Errors are typed. A failure of the driver call itself is a *TransportError (matches ErrTransport),
an unusable or unexpected card answer is a *ProtocolError (matches ErrProtocolViolation) and a
failed reader start-up is an *InitError (matches ErrInit).
*/
package reader

import "context"

// Info describes the reader opened by Driver.Open.
type Info struct {
	ReaderName string
	NumSlots   int
}

// StateChange is a raw presence notification emitted by a driver.
// Previous and Current are driver tokens such as "Absent" or "Present".
type StateChange struct {
	Slot     int
	Previous string
	Current  string
}

// Driver is the hardware-facing side of a reader.
//
// Connect returns the card ATR as hex. Transmit takes a command APDU as hex and returns the
// response APDU (data followed by SW1-SW2) as hex. StateChanges delivers presence transitions in
// the order the hardware reports them; the channel is closed once the driver is closed.
type Driver interface {
	Open(ctx context.Context) (Info, error)
	Connect(ctx context.Context, slot int) (string, error)
	Transmit(ctx context.Context, slot int, command string) (string, error)
	StateChanges() <-chan StateChange
	Close() error
}

// CardState is the presence state of a slot.
type CardState int

const (
	Unknown CardState = iota
	Absent
	Present
)

// Driver tokens understood by ParseCardState.
const (
	TokenAbsent  = "Absent"
	TokenPresent = "Present"
	TokenUnknown = "Unknown"
)

// ParseCardState maps a driver token to a CardState. Tokens other than
// "Absent" and "Present" (Swallowed, Powered, Negotiable, ...) are Unknown.
func ParseCardState(token string) CardState {
	switch token {
	case TokenAbsent:
		return Absent
	case TokenPresent:
		return Present
	default:
		return Unknown
	}
}

func (s CardState) String() string {
	switch s {
	case Absent:
		return TokenAbsent
	case Present:
		return TokenPresent
	default:
		return TokenUnknown
	}
}
