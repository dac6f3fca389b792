// Package pcsc implements reader.Driver on top of the PC/SC service (pcsc-lite, WinSCard)
// through github.com/ebfe/scard. Every PC/SC reader whose name matches the configured
// filter is exposed as one slot.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebfe/scard"

	"github.com/gregLibert/smart-card-reader/internal/syncutil"
	"github.com/gregLibert/smart-card-reader/pkg/codec"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
)

// DefaultPollInterval bounds a single GetStatusChange wait.
const DefaultPollInterval = 250 * time.Millisecond

var (
	ErrNoReader    = errors.New("no matching PC/SC reader")
	ErrUnknownSlot = errors.New("unknown slot")
	ErrNoCard      = errors.New("no card connected")
	ErrOpen        = errors.New("driver already open")
	ErrDriverClose = errors.New("driver closed")
)

const protocols = scard.ProtocolT0 | scard.ProtocolT1

// Driver is a reader.Driver over PC/SC.
type Driver struct {
	factory   ContextFactory
	filter    string
	warmReset bool
	poll      time.Duration
	logger    *slog.Logger

	mu      syncutil.Mutex
	ctx     Context // Connect and Transmit
	watch   Context // GetStatusChange, owned by the watcher goroutine
	readers []string
	cards   map[int]Card
	opened  bool
	closed  bool

	changes chan reader.StateChange
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Driver.
type Option func(*Driver)

// WithReaderFilter keeps only readers whose name contains name (case-insensitive).
func WithReaderFilter(name string) Option {
	return func(d *Driver) {
		d.filter = name
	}
}

// WithWarmReset resets the card after connecting, as some readers report a stale ATR otherwise.
func WithWarmReset(enabled bool) Option {
	return func(d *Driver) {
		d.warmReset = enabled
	}
}

// WithPollInterval sets how long the watcher waits for a change before checking for shutdown.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.poll = interval
		}
	}
}

// WithContextFactory replaces the PC/SC service, mostly for tests.
func WithContextFactory(f ContextFactory) Option {
	return func(d *Driver) {
		if f != nil {
			d.factory = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Driver. Nothing touches PC/SC before Open.
func New(opts ...Option) *Driver {
	d := &Driver{
		factory: EstablishContext,
		poll:    DefaultPollInterval,
		logger:  slog.Default(),
		cards:   make(map[int]Card),
		changes: make(chan reader.StateChange, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "pcsc"))
	return d
}

// Open establishes the PC/SC contexts, selects the readers and starts the presence watcher.
// The watcher runs on its own context, since a PC/SC context blocked in GetStatusChange
// must not be shared with Connect and Transmit.
func (d *Driver) Open(ctx context.Context) (reader.Info, error) {
	if err := ctx.Err(); err != nil {
		return reader.Info{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return reader.Info{}, ErrDriverClose
	case d.opened:
		return reader.Info{}, ErrOpen
	}

	opCtx, err := d.factory()
	if err != nil {
		return reader.Info{}, err
	}

	names, err := opCtx.ListReaders()
	if err != nil {
		_ = opCtx.Release()
		return reader.Info{}, err
	}

	readers := filterReaders(names, d.filter)
	if len(readers) == 0 {
		_ = opCtx.Release()
		return reader.Info{}, fmt.Errorf("%w (filter %q, found %d)", ErrNoReader, d.filter, len(names))
	}

	watchCtx, err := d.factory()
	if err != nil {
		_ = opCtx.Release()
		return reader.Info{}, err
	}

	d.ctx = opCtx
	d.watch = watchCtx
	d.readers = readers
	d.opened = true

	go d.run(watchCtx, readers)

	for slot, name := range readers {
		d.logger.Info("reader attached", slog.Int("slot", slot), slog.String("reader", name))
	}

	return reader.Info{ReaderName: readers[0], NumSlots: len(readers)}, nil
}

// Connect powers the card in slot and returns its ATR as hex.
func (d *Driver) Connect(ctx context.Context, slot int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name, err := d.readerLocked(slot)
	if err != nil {
		return "", err
	}

	if old, ok := d.cards[slot]; ok {
		_ = old.Disconnect(scard.LeaveCard)
		delete(d.cards, slot)
	}

	card, err := d.ctx.Connect(name, scard.ShareShared, protocols)
	if err != nil {
		return "", err
	}

	if d.warmReset {
		if err := card.Reconnect(scard.ShareShared, protocols, scard.ResetCard); err != nil {
			_ = card.Disconnect(scard.LeaveCard)
			return "", fmt.Errorf("warm reset: %w", err)
		}
	}

	status, err := card.Status()
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return "", fmt.Errorf("card status: %w", err)
	}

	d.cards[slot] = card
	return codec.Encode(status.Atr), nil
}

// Transmit sends a hex command APDU to the card connected in slot.
func (d *Driver) Transmit(ctx context.Context, slot int, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cmd, err := codec.Decode(command)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	card, ok := d.cards[slot]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("slot %d: %w", slot, ErrNoCard)
	}

	resp, err := card.Transmit(cmd)
	if err != nil {
		return "", err
	}
	return codec.Encode(resp), nil
}

// StateChanges returns presence transitions; the channel is closed by Close.
func (d *Driver) StateChanges() <-chan reader.StateChange {
	return d.changes
}

// Close stops the watcher, disconnects the cards and releases the PC/SC contexts.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stop)
	opened := d.opened
	if opened {
		// Wakes a watcher blocked in GetStatusChange.
		_ = d.watch.Cancel()
	}
	d.mu.Unlock()

	if !opened {
		close(d.changes)
		return nil
	}

	<-d.done

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for slot, card := range d.cards {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, fmt.Errorf("disconnect slot %d: %w", slot, err))
		}
		delete(d.cards, slot)
	}
	if err := d.watch.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release watcher context: %w", err))
	}
	if err := d.ctx.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release context: %w", err))
	}
	return errors.Join(errs...)
}

func (d *Driver) readerLocked(slot int) (string, error) {
	switch {
	case d.closed:
		return "", ErrDriverClose
	case !d.opened:
		return "", reader.ErrNotConfigured
	case slot < 0 || slot >= len(d.readers):
		return "", fmt.Errorf("slot %d: %w", slot, ErrUnknownSlot)
	}
	return d.readers[slot], nil
}

func (d *Driver) dropCard(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if card, ok := d.cards[slot]; ok {
		_ = card.Disconnect(scard.LeaveCard)
		delete(d.cards, slot)
	}
}

func filterReaders(names []string, filter string) []string {
	if filter == "" {
		return names
	}

	var out []string
	needle := strings.ToLower(filter)
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), needle) {
			out = append(out, name)
		}
	}
	return out
}
