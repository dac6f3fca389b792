package readertest

import (
	"context"
	"errors"
	"fmt"

	"github.com/gregLibert/smart-card-reader/internal/syncutil"
	"github.com/gregLibert/smart-card-reader/pkg/bits"
	"github.com/gregLibert/smart-card-reader/pkg/codec"
	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
)

// ErrInjected is the transport failure raised by Card.FailRead.
var ErrInjected = errors.New("injected transport failure")

// Card simulates a T=0 card holding transparent EFs under the Master File.
// File contents are stored raw, so a length-prefixed file carries its 2-byte header.
type Card struct {
	UID   []byte
	AID   []byte            // Application accepted by SELECT by name; nil rejects every AID
	Files map[uint16][]byte // EF contents keyed by FID
	Sizes map[uint16]int    // Optional size advertised in the FCP (tag 80)

	// MaxRead caps the data returned by one READ BINARY when positive.
	MaxRead int
	// FailRead makes the n-th READ BINARY (1-based) fail at the transport level.
	FailRead int

	mu       syncutil.Mutex
	selected uint16
	pending  []byte
	reads    int
	offsets  []int
}

// Handle implements HandlerFunc.
func (c *Card) Handle(ctx context.Context, slot int, command string) (string, error) {
	raw, err := codec.Decode(command)
	if err != nil {
		return "", err
	}
	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		return codec.Encode(sw(iso7816.SW_ERR_WRONG_LENGTH)), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.dispatch(cmd)
	if err != nil {
		return "", err
	}
	return codec.Encode(resp), nil
}

// ReadOffsets returns the offsets of every READ BINARY received, in order.
func (c *Card) ReadOffsets() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.offsets...)
}

func (c *Card) dispatch(cmd *iso7816.CommandAPDU) ([]byte, error) {
	ins := cmd.Instruction.Raw

	switch {
	case cmd.Class.IsReader() && ins == iso7816.INS_GET_DATA:
		if len(c.UID) == 0 {
			return sw(iso7816.SW_ERR_FUNC_NOT_SUPPORTED), nil
		}
		return append(append([]byte(nil), c.UID...), 0x90, 0x00), nil

	case ins == iso7816.INS_SELECT:
		return c.selectFile(cmd.P1, cmd.Data), nil

	case ins == iso7816.INS_GET_RESPONSE:
		if c.pending == nil {
			return sw(iso7816.SW_ERR_COND_OF_USE_NOT_SAT), nil
		}
		out := append(c.pending, 0x90, 0x00)
		c.pending = nil
		return out, nil

	case ins == iso7816.INS_READ_BINARY:
		c.reads++
		offset := int(bits.Join(cmd.P1, cmd.P2))
		c.offsets = append(c.offsets, offset)
		if c.FailRead > 0 && c.reads == c.FailRead {
			return nil, fmt.Errorf("read %d: %w", c.reads, ErrInjected)
		}
		return c.readBinary(offset, cmd.Ne), nil

	default:
		return sw(iso7816.SW_ERR_INS_INVALID), nil
	}
}

func (c *Card) selectFile(p1 byte, data []byte) []byte {
	switch iso7816.SelectionMethod(p1) {
	case iso7816.SelectByFileID:
		if len(data) == 2 && bits.Join(data[0], data[1]) == iso7816.MasterFile {
			c.selected = 0
			return sw(iso7816.SW_NO_ERROR)
		}
	case iso7816.SelectByDFName:
		if c.AID != nil && string(data) == string(c.AID) {
			c.selected = 0
			return sw(iso7816.SW_NO_ERROR)
		}
	case iso7816.SelectEFUnderCurrentDF:
		if len(data) != 2 {
			return sw(iso7816.SW_ERR_WRONG_LENGTH)
		}
		fid := bits.Join(data[0], data[1])
		content, ok := c.Files[fid]
		if !ok {
			break
		}
		c.selected = fid

		size := len(content)
		if s, ok := c.Sizes[fid]; ok {
			size = s
		}
		hi, lo := bits.Split(uint16(size))
		c.pending = []byte{0x62, 0x08, 0x80, 0x02, hi, lo, 0x83, 0x02, data[0], data[1]}
		return []byte{0x61, byte(len(c.pending))}
	}
	return sw(iso7816.SW_ERR_FILE_NOT_FOUND)
}

func (c *Card) readBinary(offset, le int) []byte {
	content, ok := c.Files[c.selected]
	if c.selected == 0 || !ok {
		return sw(iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF)
	}
	if offset > len(content) {
		return sw(iso7816.SW_ERR_WRONG_P1P2)
	}

	n := le
	if c.MaxRead > 0 && n > c.MaxRead {
		n = c.MaxRead
	}
	end := min(offset+n, len(content))

	out := append([]byte(nil), content[offset:end]...)
	if end-offset < le {
		return append(out, sw(iso7816.SW_WARN_EOF_REACHED)...)
	}
	return append(out, sw(iso7816.SW_NO_ERROR)...)
}

func sw(s iso7816.StatusWord) []byte {
	return []byte{s.SW1(), s.SW2()}
}

// LengthPrefixed returns content preceded by its 2-byte big-endian length.
func LengthPrefixed(content []byte) []byte {
	hi, lo := bits.Split(uint16(len(content)))
	return append([]byte{hi, lo}, content...)
}
