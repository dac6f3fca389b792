package pcsc

import (
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// Card abstracts a *scard.Card so the driver can be tested without a reader.
type Card interface {
	Status() (*scard.CardStatus, error)
	Transmit(cmd []byte) ([]byte, error)
	Reconnect(mode scard.ShareMode, proto scard.Protocol, init scard.Disposition) error
	Disconnect(d scard.Disposition) error
}

// Context abstracts a *scard.Context.
type Context interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error)
	Cancel() error
	Release() error
}

// ContextFactory establishes a PC/SC context.
type ContextFactory func() (Context, error)

// EstablishContext is the ContextFactory talking to the system PC/SC service.
func EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}
	return &scardContext{ctx: ctx}, nil
}

type scardContext struct {
	ctx *scard.Context
}

func (c *scardContext) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

func (c *scardContext) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	return c.ctx.GetStatusChange(rs, timeout)
}

func (c *scardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error) {
	card, err := c.ctx.Connect(reader, mode, proto)
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", reader, err)
	}
	return card, nil
}

func (c *scardContext) Cancel() error {
	return c.ctx.Cancel()
}

func (c *scardContext) Release() error {
	return c.ctx.Release()
}
