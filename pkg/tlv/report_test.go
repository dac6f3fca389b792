package tlv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type template struct {
	FileID     []byte `tlv:"83"`
	Name       []byte `tlv:"84,ascii"`
	Size       []byte `tlv:"80,int"`
	RawData    []byte // No tag
	EmptyField []byte `tlv:"99"`
	Count      int    `tlv:"82"` // Not a byte field, not rendered
	Unknown    []bertlv.TLV
}

func TestFields(t *testing.T) {
	tmpl := template{
		FileID:  []byte{0x01, 0x01},
		Name:    []byte{'M', 'R', 'Z', 0x00},
		Size:    []byte{0x02, 0x5A},
		RawData: []byte{0xCA, 0xFE},
		Count:   3,
		Unknown: []bertlv.TLV{
			{Tag: "9f01", Value: []byte{0x12, 0x34}},
		},
	}

	want := []string{
		"    - FCP.FileID (83): 0101",
		`    - FCP.Name (84): 4D525A00 ("MRZ.")`,
		"    - FCP.Size (80): 025A (Dec: 602)",
		"    - FCP.RawData: CAFE",
		"    - FCP.Unknown Tag 9F01: 1234",
	}

	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{name: "Pointer", input: &tmpl, want: want},
		{name: "Value", input: tmpl, want: want},
		{name: "Nil pointer", input: (*template)(nil), want: nil},
		{name: "Not a struct", input: 42, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fields("FCP", tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrintable(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43, 0x20, 0x7E}
	want := "AB...C ~"

	if got := Printable(input); got != want {
		t.Errorf("Printable() = %q, want %q", got, want)
	}
}
