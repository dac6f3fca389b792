package iso7816

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/smart-card-reader/pkg/codec"
)

// scriptedCard answers each Transmit with the next scripted response and records the commands.
type scriptedCard struct {
	responses [][]byte
	sent      [][]byte
}

func (s *scriptedCard) Transmit(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.sent = append(s.sent, cmd)
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func TestClient_Send(t *testing.T) {
	cls, _ := NewClass(0x00)

	tests := []struct {
		name      string
		cmd       *CommandAPDU
		responses [][]byte
		wantSent  [][]byte
		wantData  []byte
		wantSW    StatusWord
	}{
		{
			name:      "Direct Success",
			cmd:       SelectEF(cls, 0x0101),
			responses: [][]byte{codec.MustDecode("9000")},
			wantSent:  [][]byte{codec.MustDecode("00A4020402 0101")},
			wantSW:    SW_NO_ERROR,
		},
		{
			name: "61XX Triggers GET RESPONSE",
			cmd:  SelectByAID(cls, codec.MustDecode("A000000003")),
			responses: [][]byte{
				codec.MustDecode("6104"),
				codec.MustDecode("6F028400 9000"),
			},
			wantSent: [][]byte{
				codec.MustDecode("00A40400 05 A000000003"),
				codec.MustDecode("00C00000 04"),
			},
			wantData: codec.MustDecode("6F028400"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name: "6CXX Re-issues With Corrected Le",
			cmd:  mustReadBinary(t, 0, 0xFF),
			responses: [][]byte{
				codec.MustDecode("6C03"),
				codec.MustDecode("010203 9000"),
			},
			wantSent: [][]byte{
				codec.MustDecode("00B00000 FF"),
				codec.MustDecode("00B00000 03"),
			},
			wantData: codec.MustDecode("010203"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name: "6100 Announces 256 Bytes",
			cmd:  selectCurrent(cls),
			responses: [][]byte{
				codec.MustDecode("6100"),
				codec.MustDecode("6A82"),
			},
			wantSent: [][]byte{
				codec.MustDecode("00A40000 00"),
				codec.MustDecode("00C00000 00"),
			},
			wantSW: SW_ERR_FILE_NOT_FOUND,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := &scriptedCard{responses: tt.responses}
			trace, err := NewClient(card).Send(context.Background(), tt.cmd)
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			if diff := cmp.Diff(tt.wantSent, card.sent); diff != "" {
				t.Errorf("Commands mismatch (-want +got):\n%s", diff)
			}

			last := trace.Last()
			if last.Response.Status != tt.wantSW {
				t.Errorf("Final SW = %04X, want %04X", uint16(last.Response.Status), uint16(tt.wantSW))
			}
			if len(tt.wantData) > 0 {
				if diff := cmp.Diff(tt.wantData, last.Response.Data); diff != "" {
					t.Errorf("Data mismatch (-want +got):\n%s", diff)
				}
			}
			if len(trace) != len(tt.responses) {
				t.Errorf("Trace length = %d, want %d", len(trace), len(tt.responses))
			}
		})
	}
}

func TestClient_Send_TooManySteps(t *testing.T) {
	responses := make([][]byte, MaxProcedureSteps+1)
	for i := range responses {
		responses[i] = codec.MustDecode("6110")
	}
	card := &scriptedCard{responses: responses}

	trace, err := NewClient(card).Send(context.Background(), selectCurrent(Class{}))
	if !errors.Is(err, ErrTooManySteps) {
		t.Fatalf("Send() error = %v, want ErrTooManySteps", err)
	}
	if len(trace) != MaxProcedureSteps {
		t.Errorf("Trace length = %d, want %d", len(trace), MaxProcedureSteps)
	}
}

func TestClient_Send_Errors(t *testing.T) {
	t.Run("Cancelled Context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		card := &scriptedCard{responses: [][]byte{codec.MustDecode("9000")}}
		_, err := NewClient(card).Send(ctx, selectCurrent(Class{}))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Send() error = %v, want context.Canceled", err)
		}
	})

	t.Run("Short Response", func(t *testing.T) {
		card := &scriptedCard{responses: [][]byte{{0x90}}}
		_, err := NewClient(card).Send(context.Background(), selectCurrent(Class{}))
		if !errors.Is(err, ErrResponseTooShort) {
			t.Errorf("Send() error = %v, want ErrResponseTooShort", err)
		}
	})

	t.Run("Partial Trace Kept", func(t *testing.T) {
		card := &scriptedCard{responses: [][]byte{codec.MustDecode("6110")}}
		trace, err := NewClient(card).Send(context.Background(), selectCurrent(Class{}))
		if err == nil {
			t.Fatal("Expected error when GET RESPONSE has no answer")
		}
		if len(trace) != 1 {
			t.Errorf("Trace length = %d, want 1", len(trace))
		}
	})
}

// selectCurrent is SELECT by FID without data, answered with the FCI of the current DF.
func selectCurrent(cls Class) *CommandAPDU {
	return NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil)
}
