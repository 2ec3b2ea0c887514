package builtin

import "testing"

func TestCRC8(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		init, finalXOR byte
		polynomial     byte
		want           byte
	}{
		{
			// Worked example from the SHT3x data sheet.
			name: "sensirion reference",
			data: []byte{0xBE, 0xEF},
			init: 0xFF, finalXOR: 0x00, polynomial: 0x31,
			want: 0x92,
		},
		{
			name: "empty data",
			data: nil,
			init: 0xFF, finalXOR: 0x00, polynomial: 0x31,
			want: 0xFF,
		},
		{
			name: "final xor applied",
			data: []byte{0xBE, 0xEF},
			init: 0xFF, finalXOR: 0xFF, polynomial: 0x31,
			want: 0x92 ^ 0xFF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := crc8(tt.data, tt.init, tt.finalXOR, tt.polynomial)
			if got != tt.want {
				t.Errorf("crc8() = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}
