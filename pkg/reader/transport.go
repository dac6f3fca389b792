package reader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gregLibert/smart-card-reader/internal/syncutil"
	"github.com/gregLibert/smart-card-reader/pkg/codec"
	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
)

// DefaultTimeout bounds a single Connect or Transmit.
const DefaultTimeout = 5 * time.Second

// Transport serializes byte-level exchanges with a Driver, one at a time per slot.
type Transport struct {
	driver  Driver
	timeout time.Duration
	logger  *slog.Logger

	mu    syncutil.Mutex
	slots map[int]chan struct{}
}

// Option configures a Transport.
type Option func(*Transport)

// WithTimeout sets the deadline applied to every driver call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithLogger sets the logger used for APDU traces.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport creates a Transport over d. A nil driver yields ErrNotConfigured on every call.
func NewTransport(d Driver, opts ...Option) *Transport {
	t := &Transport{
		driver:  d,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		slots:   make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("component", "transport"))
	return t
}

// Connect powers the card in slot and returns its ATR.
func (t *Transport) Connect(ctx context.Context, slot int) ([]byte, error) {
	atrHex, err := t.call(ctx, nil, "connect", slot, func(ctx context.Context) (string, error) {
		return t.driver.Connect(ctx, slot)
	})
	if err != nil {
		return nil, err
	}

	atr, err := codec.Decode(atrHex)
	if err != nil {
		return nil, fmt.Errorf("connect slot %d: ATR: %w", slot, err)
	}

	t.logger.Debug("card connected", slog.Int("slot", slot), slog.String("atr", codec.Display(atr)))
	return atr, nil
}

// Transmit sends one command APDU to slot and returns the raw response, status word included.
// The response is not interpreted beyond checking that it holds SW1-SW2.
func (t *Transport) Transmit(ctx context.Context, slot int, cmd []byte) ([]byte, error) {
	return t.transmit(ctx, nil, slot, cmd)
}

// Exclusive holds slot for the whole of fn. Commands sent through the Transmitter handed
// to fn are the only ones reaching the slot until fn returns, so a SELECT and the READ
// BINARY that depend on it cannot be split by another caller.
//
// The Transmitter must not be used after fn returns, and fn must not call back into
// the Transport for the same slot.
func (t *Transport) Exclusive(ctx context.Context, slot int, fn func(iso7816.Transmitter) error) error {
	sec, err := t.enter(ctx, "exclusive", slot)
	if err != nil {
		return err
	}
	defer sec.release()

	return fn(iso7816.TransmitterFunc(func(ctx context.Context, cmd []byte) ([]byte, error) {
		if sec.ended.Load() {
			return nil, &TransportError{Op: "transmit", Slot: slot, Err: ErrSectionEnded}
		}
		return t.transmit(ctx, sec, slot, cmd)
	}))
}

func (t *Transport) transmit(ctx context.Context, sec *section, slot int, cmd []byte) ([]byte, error) {
	t.logger.Debug("apdu >>", slog.Int("slot", slot), slog.String("cmd", codec.Display(cmd)))

	cmdHex := codec.Encode(cmd)
	respHex, err := t.call(ctx, sec, "transmit", slot, func(ctx context.Context) (string, error) {
		return t.driver.Transmit(ctx, slot, cmdHex)
	})
	if err != nil {
		return nil, err
	}

	resp, err := codec.Decode(respHex)
	if err != nil {
		return nil, fmt.Errorf("transmit slot %d: response: %w", slot, err)
	}

	t.logger.Debug("apdu <<", slog.Int("slot", slot), slog.String("resp", codec.Display(resp)))

	if len(resp) < 2 {
		return nil, &TransportError{
			Op:   "transmit",
			Slot: slot,
			Err:  fmt.Errorf("%w: length %d", ErrResponseTooShort, len(resp)),
		}
	}
	return resp, nil
}

// section is a held slot permit. Driver calls abandoned on timeout keep the slot
// busy until they return, even after the holder released it.
type section struct {
	sem     chan struct{}
	pending sync.WaitGroup
	ended   atomic.Bool
}

func (s *section) release() {
	s.ended.Store(true)
	go func() {
		s.pending.Wait()
		<-s.sem
	}()
}

func (t *Transport) enter(ctx context.Context, op string, slot int) (*section, error) {
	if t.driver == nil {
		return nil, ErrNotConfigured
	}

	sec := &section{sem: t.semaphore(slot)}
	select {
	case sec.sem <- struct{}{}:
		return sec, nil
	case <-ctx.Done():
		return nil, &TransportError{Op: op, Slot: slot, Err: ctx.Err()}
	}
}

// call runs fn inside sec, or inside a section of its own when sec is nil. When the
// deadline expires first, the caller gets its error right away but the slot stays busy
// until fn returns.
func (t *Transport) call(ctx context.Context, sec *section, op string, slot int, fn func(context.Context) (string, error)) (string, error) {
	if sec == nil {
		var err error
		if sec, err = t.enter(ctx, op, slot); err != nil {
			return "", err
		}
		defer sec.release()
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)

	sec.pending.Add(1)
	go func() {
		defer sec.pending.Done()
		out, err := fn(callCtx)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", &TransportError{Op: op, Slot: slot, Err: r.err}
		}
		return r.out, nil
	case <-callCtx.Done():
		t.logger.Warn("driver call abandoned",
			slog.String("op", op),
			slog.Int("slot", slot),
			slog.Any("error", callCtx.Err()))
		return "", &TransportError{Op: op, Slot: slot, Err: callCtx.Err()}
	}
}

func (t *Transport) semaphore(slot int) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	sem, ok := t.slots[slot]
	if !ok {
		sem = make(chan struct{}, 1)
		t.slots[slot] = sem
	}
	return sem
}
