package tlv

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

func TestValue(t *testing.T) {
	data := codec.MustDecode(
		"6F 0F",        // FCI
		"62 0D",        // FCP
		"80 02 0102",   // Data size 258
		"83 02 0101",   // FID
		"A5 03 880101", // Nested proprietary template
		"90 01 FF",     // Outside of the FCI
	)

	tests := []struct {
		name    string
		path    []string
		want    []byte
		wantErr error
	}{
		{name: "Nested primitive", path: []string{"6F", "62", "80"}, want: []byte{0x01, 0x02}},
		{name: "Lower-case tags", path: []string{"6f", "62", "83"}, want: []byte{0x01, 0x01}},
		{name: "Constructed value re-encoded", path: []string{"6F", "62", "A5"}, want: codec.MustDecode("880101")},
		{name: "Top level", path: []string{"90"}, want: []byte{0xFF}},
		{name: "Missing leaf", path: []string{"6F", "62", "81"}, wantErr: ErrTagNotFound},
		{name: "Empty path", path: nil, wantErr: ErrTagNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Value(data, tt.path...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Value() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Value() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Value() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValue_Malformed(t *testing.T) {
	// Length announces 5 bytes, only 1 follows.
	_, err := Value(codec.MustDecode("80 05 01"), "80")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Value() error = %v, want ErrMalformed", err)
	}
}

func TestUint(t *testing.T) {
	tests := []struct {
		in     []byte
		want   uint64
		wantOK bool
	}{
		{in: []byte{0x02, 0x5A}, want: 602, wantOK: true},
		{in: []byte{0x00}, want: 0, wantOK: true},
		{in: []byte{0x01, 0, 0, 0, 0, 0, 0, 0}, want: 1 << 56, wantOK: true},
		{in: nil},
		{in: make([]byte, 9)},
	}

	for _, tt := range tests {
		got, ok := Uint(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Uint(%X) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
