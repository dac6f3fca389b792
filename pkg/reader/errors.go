package reader

import (
	"errors"
	"fmt"

	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
)

// Error categories. Typed errors below match them through errors.Is.
var (
	// ErrNotConfigured is returned when no driver backs the session.
	ErrNotConfigured = errors.New("reader not configured")

	// ErrInit marks a failed reader start-up.
	ErrInit = errors.New("reader initialization failed")

	// ErrTransport marks a failed or timed out driver exchange.
	ErrTransport = errors.New("transport failure")

	// ErrProtocolViolation marks a card answer that cannot satisfy the request.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSectionEnded is returned by a Transmitter from Exclusive used after its section ended.
	ErrSectionEnded = errors.New("exclusive section ended")

	// ErrResponseTooShort is returned for responses lacking SW1-SW2.
	ErrResponseTooShort = iso7816.ErrResponseTooShort
)

// InitError wraps a driver failure during Open.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init reader: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

func (e *InitError) Is(target error) bool {
	return target == ErrInit
}

// TransportError wraps a failed exchange with the slot and operation that produced it.
type TransportError struct {
	Err  error  // Underlying error
	Op   string // "connect" or "transmit"
	Slot int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s slot %d: %v", e.Op, e.Slot, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ProtocolError reports a card answer that breaks the expected exchange,
// such as a SELECT rejected by the card or a READ BINARY returning too little data.
type ProtocolError struct {
	Op     string
	Status iso7816.StatusWord // Zero when the failure is not tied to a status word
	Reason string
	Err    error // Optional cause, e.g. a short read marker
}

func (e *ProtocolError) Error() string {
	msg := e.Op
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Status != 0 {
		msg += " (" + e.Status.Verbose() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}
