package iso7816

import (
	"errors"
	"fmt"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
)

// CLA byte layout (ISO/IEC 7816-4, 5.4.1):
//
//	b8      proprietary (1) or interindustry (0)
//	b7      first (0) or further (1) interindustry class
//	b5      command chaining
//	first   b4-b3 secure messaging, b2-b1 channel 0-3
//	further b6 secure messaging, b4-b1 channel minus 4 (channels 4-19)
//
// PC/SC readers claim the reserved value FF for their own pseudo-APDUs.

// SecureMessaging is the SM indication carried by an interindustry CLA.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0 // No SM or no indication
	SMProprietary  SecureMessaging = 1 // First interindustry only
	SMHeaderNoProc SecureMessaging = 2 // ISO SM, header not processed
	SMHeaderAuth   SecureMessaging = 3 // ISO SM, header authenticated; first interindustry only
)

const (
	claReader     = 0xFF
	maxChannel    = 19
	firstChannels = 4
)

// ErrReservedClass is returned by NewClass for the value FF.
var ErrReservedClass = errors.New("CLA FF is reserved")

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// ReaderClass is the CLA of reader pseudo-APDUs (PC/SC part 3).
var ReaderClass = Class{Raw: claReader, IsProprietary: true}

// NewClass decodes a CLA byte sent to a card. FF is rejected.
func NewClass(cla byte) (Class, error) {
	if cla == claReader {
		return Class{}, ErrReservedClass
	}
	if bits.IsSet(cla, 8) {
		return Class{Raw: cla, IsProprietary: true}, nil
	}

	c := Class{Raw: cla, IsChained: bits.IsSet(cla, 5)}
	if bits.IsSet(cla, 7) {
		c.Channel = bits.GetRange(cla, 4, 1) + firstChannels
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		return c, nil
	}
	c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
	c.Channel = bits.GetRange(cla, 2, 1)
	return c, nil
}

// ParseClass is NewClass, except that FF decodes to ReaderClass.
func ParseClass(cla byte) (Class, error) {
	if cla == claReader {
		return ReaderClass, nil
	}
	return NewClass(cla)
}

// IsReader reports whether the class addresses the reader instead of the card.
func (c Class) IsReader() bool {
	return c.IsProprietary && c.Raw == claReader
}

// Encode returns the CLA byte. Proprietary classes are returned as is.
func (c Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > maxChannel {
		return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, maxChannel)
	}
	if c.Channel >= firstChannels && (c.SecureMessaging == SMProprietary || c.SecureMessaging == SMHeaderAuth) {
		return 0, fmt.Errorf("SM indicator %d not available on channel %d", c.SecureMessaging, c.Channel)
	}

	var cla byte
	if c.IsChained {
		cla = bits.Set(cla, 5)
	}
	if c.Channel < firstChannels {
		return cla | byte(c.SecureMessaging)<<2 | c.Channel, nil
	}

	cla = bits.Set(cla, 7)
	if c.SecureMessaging != SMNone {
		cla = bits.Set(cla, 6)
	}
	return cla | (c.Channel - firstChannels), nil
}

func (c Class) String() string {
	switch {
	case c.IsReader():
		return "FF (reader)"
	case c.IsProprietary:
		return fmt.Sprintf("%02X (proprietary)", c.Raw)
	}
	s := fmt.Sprintf("%02X (channel %d", c.Raw, c.Channel)
	if c.SecureMessaging != SMNone {
		s += fmt.Sprintf(", SM %d", c.SecureMessaging)
	}
	if c.IsChained {
		s += ", chained"
	}
	return s + ")"
}
