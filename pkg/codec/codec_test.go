package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"Empty", nil, ""},
		{"Zero Padding", []byte{0x00, 0xFF, 0x10}, "00FF10"},
		{"Upper Case", []byte{0xCA, 0xFE}, "CAFE"},
		{"GET UID Command", []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}, "FFCA000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.in); got != tt.want {
				t.Errorf("Encode(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"Empty", nil, ""},
		{"Single Byte", []byte{0x0A}, "0A"},
		{"UID Response", []byte{0x04, 0xA1, 0xB2, 0xC3, 0x90, 0x00}, "04,0xA1,0xB2,0xC3,0x90,0x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Display(tt.in); got != tt.want {
				t.Errorf("Display(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"Empty", "", []byte{}, false},
		{"Upper Case", "00FF10", []byte{0x00, 0xFF, 0x10}, false},
		{"Lower Case", "cafe", []byte{0xCA, 0xFE}, false},
		{"Odd Length", "ABC", nil, true},
		{"Invalid Digit", "ZZ", nil, true},
		{"Separator Not Allowed", "04,0xA1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedHex) {
					t.Errorf("Decode(%q) error %v does not match ErrMalformedHex", tt.in, err)
				}
				var mhe *MalformedHexError
				if !errors.As(err, &mhe) || mhe.Input != tt.in {
					t.Errorf("Decode(%q) error should carry the input, got %v", tt.in, err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7816))

	for i := 0; i < 200; i++ {
		in := make([]byte, rng.Intn(300))
		rng.Read(in)

		enc := Encode(in)
		if len(enc) != 2*len(in) {
			t.Fatalf("Encode length = %d, want %d", len(enc), 2*len(in))
		}
		if strings.Trim(enc, "0123456789ABCDEF") != "" {
			t.Fatalf("Encode produced non upper-case hex: %q", enc)
		}

		out, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(b)) failed: %v", err)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("round trip mismatch: %X != %X", in, out)
		}
	}
}

func TestMustDecode(t *testing.T) {
	tests := []struct {
		name      string
		inputs    []string
		want      []byte
		wantPanic bool
	}{
		{
			name:   "Simple Join",
			inputs: []string{"00", "A4"},
			want:   []byte{0x00, 0xA4},
		},
		{
			name:   "With Spaces",
			inputs: []string{"00 A4", " 04 00 "},
			want:   []byte{0x00, 0xA4, 0x04, 0x00},
		},
		{
			name:   "Mixed Case",
			inputs: []string{"ca", "FE"},
			want:   []byte{0xCA, 0xFE},
		},
		{
			name:      "Invalid Hex",
			inputs:    []string{"ZZ"},
			wantPanic: true,
		},
		{
			name:      "Odd Length",
			inputs:    []string{"123"},
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if (r != nil) != tt.wantPanic {
					t.Errorf("MustDecode() panic = %v, wantPanic %v", r, tt.wantPanic)
				}
			}()

			got := MustDecode(tt.inputs...)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("MustDecode() = %X, want %X", got, tt.want)
			}
		})
	}
}
