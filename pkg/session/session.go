/*
Package session holds the card session state machine of one reader.

A Session opens the reader through a reader.Driver, follows the presence notifications the
driver emits and connects to a card on each Absent to Present edge. Presence notifications are
handled one at a time by a single goroutine, in the order the hardware reported them, then
handed to subscribed listeners by a separate dispatcher so a slow listener never holds up card
handling.

	s := session.New(driver, session.WithLogger(logger))
	info, err := s.Init(ctx)
	if err != nil {
	    return err
	}
	defer s.Close()

	sub := s.Subscribe(func(e session.PresenceEvent) {
	    if e.Current == reader.Present && e.Err == nil {
	        fmt.Printf("card in slot %d: %s\n", e.Slot, codec.Display(e.ATR))
	    }
	})
	defer s.Unsubscribe(sub)
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gregLibert/smart-card-reader/internal/syncutil"
	"github.com/gregLibert/smart-card-reader/pkg/fileread"
	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
)

var (
	// ErrNotInitialized is returned by card operations before Init succeeded.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrClosed is returned once Close was called.
	ErrClosed = errors.New("session closed")
)

// State is the lifecycle state of a slot.
type State int

const (
	StateUninitialized State = iota
	StateInitialized         // Reader open, no presence reported for the slot yet
	StateAbsent
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateAbsent:
		return "Absent"
	case StatePresent:
		return "Present"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PresenceEvent is delivered to listeners for every presence notification of the driver.
// ATR and Err report the connection attempted for this event; both are nil when the event
// did not trigger one.
type PresenceEvent struct {
	Slot     int
	Current  reader.CardState
	Previous reader.CardState
	ATR      []byte
	Err      error
}

// Subscription identifies a listener registered with Subscribe.
type Subscription struct {
	id uint64
}

type slotState struct {
	state State
	atr   []byte
}

// Session is the state machine of one reader. It is safe for concurrent use.
type Session struct {
	driver    reader.Driver
	transport *reader.Transport
	logger    *slog.Logger
	fileOpts  []fileread.Option
	timeout   time.Duration

	mu          syncutil.RWMutex
	info        reader.Info
	initialized bool
	closed      bool
	slots       map[int]*slotState
	listeners   map[uint64]func(PresenceEvent)
	nextID      uint64

	events   *queue
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session and its transport.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds each Connect and Transmit issued to the driver.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithFileOptions configures the reader used by ReadFile.
func WithFileOptions(opts ...fileread.Option) Option {
	return func(s *Session) {
		s.fileOpts = append(s.fileOpts, opts...)
	}
}

// New creates a Session over d. A nil driver is accepted; every operation then
// fails with reader.ErrNotConfigured.
func New(d reader.Driver, opts ...Option) *Session {
	s := &Session{
		driver:    d,
		logger:    slog.Default(),
		timeout:   reader.DefaultTimeout,
		slots:     make(map[int]*slotState),
		listeners: make(map[uint64]func(PresenceEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}

	base := s.logger
	s.logger = base.With(slog.String("component", "session"))
	s.transport = reader.NewTransport(d, reader.WithTimeout(s.timeout), reader.WithLogger(base))
	s.fileOpts = append([]fileread.Option{fileread.WithLogger(base)}, s.fileOpts...)
	return s
}

// Init opens the reader and starts following presence notifications.
func (s *Session) Init(ctx context.Context) (reader.Info, error) {
	if s.driver == nil {
		return reader.Info{}, reader.ErrNotConfigured
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return reader.Info{}, ErrClosed
	}
	if s.initialized {
		return reader.Info{}, ErrAlreadyInitialized
	}

	info, err := s.driver.Open(ctx)
	if err != nil {
		return reader.Info{}, &reader.InitError{Err: err}
	}

	s.info = info
	s.initialized = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.loopDone = make(chan struct{})
	s.events = newQueue(s.deliver)

	go s.events.run()
	go s.loop(s.driver.StateChanges())

	s.logger.Info("reader initialized",
		slog.String("reader", info.ReaderName),
		slog.Int("slots", info.NumSlots))

	return info, nil
}

// Info returns the reader description obtained by Init.
func (s *Session) Info() (reader.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.usableLocked(); err != nil {
		return reader.Info{}, err
	}
	return s.info, nil
}

// State returns the state of slot.
func (s *Session) State(slot int) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return StateUninitialized
	}
	if st, ok := s.slots[slot]; ok {
		return st.state
	}
	return StateInitialized
}

// ATR returns the ATR of the card connected in slot, or nil.
func (s *Session) ATR(slot int) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.slots[slot]; ok && st.state == StatePresent {
		return append([]byte(nil), st.atr...)
	}
	return nil
}

// ConnectToCard connects to the card in slot and returns its ATR.
// On failure the slot is left Absent.
func (s *Session) ConnectToCard(ctx context.Context, slot int) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	atr, err := s.transport.Connect(ctx, slot)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.setLocked(slot, StateAbsent, nil)
		return nil, err
	}
	s.setLocked(slot, StatePresent, atr)
	return atr, nil
}

// Transmit sends a raw command APDU to slot and returns the raw response, SW1-SW2 included.
func (s *Session) Transmit(ctx context.Context, slot int, cmd []byte) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.transport.Transmit(ctx, slot, cmd)
}

// UID reads the card UID with the reader GET DATA pseudo-APDU.
func (s *Session) UID(ctx context.Context, slot int) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	raw, err := iso7816.GetUID().Bytes()
	if err != nil {
		return nil, err
	}

	var resp []byte
	err = s.transport.Exclusive(ctx, slot, func(tx iso7816.Transmitter) error {
		var err error
		resp, err = tx.Transmit(ctx, raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	r, err := iso7816.ParseResponseAPDU(resp)
	if err != nil {
		return nil, err
	}
	if r.Status != iso7816.SW_NO_ERROR {
		return nil, &reader.ProtocolError{Op: "get uid", Status: r.Status}
	}
	return r.Data, nil
}

// ReadFile reads the length-prefixed EF fid from the card in slot.
func (s *Session) ReadFile(ctx context.Context, slot int, fid uint16) ([]byte, error) {
	f, err := s.OpenFile(ctx, slot, fid)
	if err != nil {
		return nil, err
	}
	return f.Content, nil
}

// OpenFile is ReadFile returning the full read outcome, trace and FCI included.
// The slot is held for the whole read, so concurrent reads on one slot never interleave
// their SELECT and READ BINARY commands.
func (s *Session) OpenFile(ctx context.Context, slot int, fid uint16) (*fileread.File, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	var f *fileread.File
	err := s.transport.Exclusive(ctx, slot, func(tx iso7816.Transmitter) error {
		var err error
		f, err = fileread.New(tx, s.fileOpts...).Read(ctx, fid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Close stops the event loop, delivers the events already queued and closes the driver.
// It is safe to call more than once. Called from a listener, it returns before the queued
// events are delivered.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.initialized
	s.mu.Unlock()

	if !started {
		if s.driver != nil {
			return s.driver.Close()
		}
		return nil
	}

	s.cancel()
	err := s.driver.Close()
	<-s.loopDone
	s.events.close()

	s.logger.Info("session closed")
	return err
}

func (s *Session) usable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usableLocked()
}

func (s *Session) usableLocked() error {
	switch {
	case s.driver == nil:
		return reader.ErrNotConfigured
	case s.closed:
		return ErrClosed
	case !s.initialized:
		return ErrNotInitialized
	}
	return nil
}

func (s *Session) setLocked(slot int, state State, atr []byte) {
	st, ok := s.slots[slot]
	if !ok {
		st = &slotState{}
		s.slots[slot] = st
	}
	st.state = state
	st.atr = atr
}
