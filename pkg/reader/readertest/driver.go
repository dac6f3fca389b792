// Package readertest provides an in-memory reader.Driver and a simulated card for tests.
package readertest

import (
	"context"
	"errors"

	"github.com/gregLibert/smart-card-reader/internal/syncutil"
	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
)

// ErrClosed is returned by a Driver after Close.
var ErrClosed = errors.New("fake driver closed")

// HandlerFunc answers a hex command APDU with a hex response APDU.
type HandlerFunc func(ctx context.Context, slot int, command string) (string, error)

// Driver is a scriptable reader.Driver built by NewDriver.
// Without a Handler every command is answered with 9000.
type Driver struct {
	Info       reader.Info
	OpenErr    error
	ConnectErr error
	ATR        string
	Handler    HandlerFunc

	mu       syncutil.Mutex
	changes  chan reader.StateChange
	connects map[int]int
	commands []string
	closed   bool
}

// Slot binds slot of t to an iso7816.Transmitter. Each command takes the slot on its own.
func Slot(t *reader.Transport, slot int) iso7816.Transmitter {
	return iso7816.TransmitterFunc(func(ctx context.Context, cmd []byte) ([]byte, error) {
		return t.Transmit(ctx, slot, cmd)
	})
}

// NewDriver creates a Driver with a buffered state-change channel.
func NewDriver() *Driver {
	return &Driver{
		Info:     reader.Info{ReaderName: "Fake Reader 00 00", NumSlots: 1},
		ATR:      "3B8F8001804F0CA000000306030001000000006A",
		changes:  make(chan reader.StateChange, 64),
		connects: make(map[int]int),
	}
}

func (d *Driver) Open(ctx context.Context) (reader.Info, error) {
	if d.OpenErr != nil {
		return reader.Info{}, d.OpenErr
	}
	return d.Info, nil
}

func (d *Driver) Connect(ctx context.Context, slot int) (string, error) {
	d.mu.Lock()
	d.connects[slot]++
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return "", ErrClosed
	}
	if d.ConnectErr != nil {
		return "", d.ConnectErr
	}
	return d.ATR, nil
}

func (d *Driver) Transmit(ctx context.Context, slot int, command string) (string, error) {
	d.mu.Lock()
	d.commands = append(d.commands, command)
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return "", ErrClosed
	}
	if d.Handler == nil {
		return "9000", nil
	}
	return d.Handler(ctx, slot, command)
}

func (d *Driver) StateChanges() <-chan reader.StateChange {
	return d.changes
}

// Close closes the state-change channel. It is safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.changes)
	}
	return nil
}

// Emit queues a presence transition, e.g. Emit(0, "Absent", "Present").
func (d *Driver) Emit(slot int, previous, current string) {
	d.changes <- reader.StateChange{Slot: slot, Previous: previous, Current: current}
}

// Connects returns how many times Connect was called for slot.
func (d *Driver) Connects(slot int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects[slot]
}

// Commands returns the hex commands received so far.
func (d *Driver) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}
