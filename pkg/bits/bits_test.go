package bits

import "testing"

func TestBit(t *testing.T) {
	for n, want := range map[uint]byte{0: 0, 1: 0x01, 3: 0x04, 5: 0x10, 8: 0x80, 9: 0} {
		if got := Bit(n); got != want {
			t.Errorf("Bit(%d) = %02X, want %02X", n, got, want)
		}
	}
}

func TestIsSetAndSet(t *testing.T) {
	b := byte(0b1010_0101)
	for n, want := range map[uint]bool{1: true, 2: false, 3: true, 6: true, 7: false, 8: true, 0: false, 9: false} {
		if got := IsSet(b, n); got != want {
			t.Errorf("IsSet(%08b, %d) = %v, want %v", b, n, got, want)
		}
	}

	if got := Set(Set(0, 8), 5); got != 0x90 {
		t.Errorf("Set(Set(0, 8), 5) = %02X, want 90", got)
	}
	if got := Set(0x41, 1); got != 0x41 {
		t.Errorf("Set on a set bit changed the byte: %02X", got)
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		in        byte
		high, low uint
		want      byte
	}{
		{0b0000_1100, 4, 3, 0b11}, // first interindustry SM
		{0b0111_0110, 4, 1, 6},    // further interindustry channel offset
		{0b1001_1111, 5, 1, 31},   // SFI in READ BINARY P1
		{0b0110_0011, 8, 5, 6},
		{0xAA, 8, 1, 0xAA},
		{0xFF, 3, 4, 0},
		{0xFF, 9, 1, 0},
		{0xFF, 2, 0, 0},
	}

	for _, tt := range tests {
		if got := GetRange(tt.in, tt.high, tt.low); got != tt.want {
			t.Errorf("GetRange(%08b, %d, %d) = %d, want %d", tt.in, tt.high, tt.low, got, tt.want)
		}
	}
}

func TestSplitJoin(t *testing.T) {
	for _, v := range []uint16{0, 0x00FF, 0x0100, 0x01FE, 0x3F00, 0x7FFF, 0xFFFF} {
		hi, lo := Split(v)
		if hi != byte(v>>8) || lo != byte(v) {
			t.Errorf("Split(%04X) = %02X %02X", v, hi, lo)
		}
		if got := Join(hi, lo); got != v {
			t.Errorf("Join(Split(%04X)) = %04X", v, got)
		}
	}
}
