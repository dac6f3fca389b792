package iso7816

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewClass(t *testing.T) {
	tests := []struct {
		cla  byte
		want Class
	}{
		{0x00, Class{Raw: 0x00}},
		{0b0001_1111, Class{Raw: 0x1F, IsChained: true, SecureMessaging: SMHeaderAuth, Channel: 3}},
		{0b0000_0100, Class{Raw: 0x04, SecureMessaging: SMProprietary}},
		{0b0100_0000, Class{Raw: 0x40, Channel: 4}},
		{0b0111_1111, Class{Raw: 0x7F, IsChained: true, SecureMessaging: SMHeaderNoProc, Channel: 19}},
		{0x80, Class{Raw: 0x80, IsProprietary: true}},
		{0xA4, Class{Raw: 0xA4, IsProprietary: true}},
	}

	for _, tt := range tests {
		got, err := NewClass(tt.cla)
		if err != nil {
			t.Errorf("NewClass(%02X): %v", tt.cla, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("NewClass(%02X) mismatch (-want +got):\n%s", tt.cla, diff)
		}
	}
}

func TestParseClass_Reader(t *testing.T) {
	if _, err := NewClass(0xFF); !errors.Is(err, ErrReservedClass) {
		t.Errorf("NewClass(FF) error = %v, want ErrReservedClass", err)
	}

	c, err := ParseClass(0xFF)
	if err != nil {
		t.Fatalf("ParseClass(FF): %v", err)
	}
	if !c.IsReader() || c != ReaderClass {
		t.Errorf("ParseClass(FF) = %+v, want ReaderClass", c)
	}

	c, err = ParseClass(0x00)
	if err != nil || c.IsReader() {
		t.Errorf("ParseClass(00) = %+v, %v", c, err)
	}
}

func TestClass_Encode(t *testing.T) {
	tests := []struct {
		name    string
		chained bool
		sm      SecureMessaging
		channel uint8
		want    byte
		wantErr bool
	}{
		{name: "basic channel", want: 0x00},
		{name: "channel 2 with auth SM", sm: SMHeaderAuth, channel: 2, want: 0x0E},
		{name: "further channel 10 chained SM", chained: true, sm: SMHeaderNoProc, channel: 10, want: 0x76},
		{name: "further channel 19", channel: 19, want: 0x4F},
		{name: "auth SM above channel 3", sm: SMHeaderAuth, channel: 5, wantErr: true},
		{name: "proprietary SM above channel 3", sm: SMProprietary, channel: 4, wantErr: true},
		{name: "channel 20", channel: 20, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Class{IsChained: tt.chained, SecureMessaging: tt.sm, Channel: tt.channel}
			raw, err := c.Encode()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if raw != tt.want {
				t.Errorf("Encode() = %08b, want %08b", raw, tt.want)
			}
			c.Raw = raw
			back, err := NewClass(raw)
			if err != nil {
				t.Fatalf("NewClass(%02X): %v", raw, err)
			}
			if diff := cmp.Diff(c, back); diff != "" {
				t.Errorf("decode mismatch (-built +decoded):\n%s", diff)
			}
		})
	}
}

func TestClass_String(t *testing.T) {
	tests := []struct {
		cla  byte
		want string
	}{
		{0x00, "00 (channel 0)"},
		{0x1F, "1F (channel 3, SM 3, chained)"},
		{0x90, "90 (proprietary)"},
		{0xFF, "FF (reader)"},
	}
	for _, tt := range tests {
		c, err := ParseClass(tt.cla)
		if err != nil {
			t.Fatalf("ParseClass(%02X): %v", tt.cla, err)
		}
		if got := c.String(); got != tt.want {
			t.Errorf("String(%02X) = %q, want %q", tt.cla, got, tt.want)
		}
	}
}
