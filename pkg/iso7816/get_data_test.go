package iso7816

import (
	"bytes"
	"testing"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

func TestGetData(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []byte
	}{
		{
			name:     "Get UID",
			cmd:      GetUID(),
			expected: codec.MustDecode("FF CA 00 00 00"),
		},
		{
			name:     "Get ATS Historical Bytes",
			cmd:      NewGetDataCommand(GetDataHistoricalATS),
			expected: codec.MustDecode("FF CA 01 00 00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Failed to encode bytes: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Mismatch: got %X, want %X", got, tt.expected)
			}
		})
	}
}
