package iso7816

import (
	"context"
	"errors"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client sits between the file-level protocols and a slot-bound Transmitter.
// It resolves the ISO 7816-3 transport procedures that T=0 readers expose to the
// application layer:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client issues a GET RESPONSE
//    with Le = XX on the same logical channel.
//
// 2. "6C XX" (Wrong Length):
//    The card rejects Le and suggests XX. The client re-sends the original command
//    with Le = XX.
//
// Send() returns a Trace holding every atomic exchange performed for the logical request.

// MaxProcedureSteps bounds the number of chained 61XX/6CXX exchanges for one Send.
const MaxProcedureSteps = 16

// ErrTooManySteps is returned when a card keeps answering 61XX or 6CXX.
var ErrTooManySteps = errors.New("too many chained transport procedures")

// Transmitter abstracts a physical card connection bound to one slot.
type Transmitter interface {
	Transmit(ctx context.Context, cmd []byte) ([]byte, error)
}

// TransmitterFunc adapts a function to the Transmitter interface.
type TransmitterFunc func(ctx context.Context, cmd []byte) ([]byte, error)

// Transmit calls f.
func (f TransmitterFunc) Transmit(ctx context.Context, cmd []byte) ([]byte, error) {
	return f(ctx, cmd)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
// When an exchange fails, the trace gathered so far is returned with the error.
func (c *Client) Send(ctx context.Context, cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	next := cmd

	for step := 0; step < MaxProcedureSteps; step++ {
		tx, err := c.exchange(ctx, next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)

		sw := tx.Response.Status
		sw2 := sw.SW2()

		switch sw.Kind() {
		case KindMoreData:
			// GET RESPONSE must use the same logical channel as the original command.
			respCls := cmd.Class
			respCls.IsChained = false

			ins := mustInstruction(INS_GET_RESPONSE)
			next = NewCommandAPDU(respCls, ins, 0x00, 0x00, nil, leFromSW2(sw2))

		case KindWrongLength:
			// Clone to update Le without mutating the caller's command.
			retry := *next
			retry.Ne = leFromSW2(sw2)
			next = &retry

		default:
			return trace, nil
		}
	}

	return trace, fmt.Errorf("%s: %w", cmd.Instruction.Raw, ErrTooManySteps)
}

func (c *Client) exchange(ctx context.Context, cmd *CommandAPDU) (Transaction, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return Transaction{}, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(ctx, rawCmd)
	if err != nil {
		return Transaction{}, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{Command: cmd, Response: resp}, nil
}

// leFromSW2 converts the length carried by SW2 into Ne. SW2 = 00 announces 256 bytes.
func leFromSW2(sw2 byte) int {
	if sw2 == 0x00 {
		return MaxShortLe
	}
	return int(sw2)
}
