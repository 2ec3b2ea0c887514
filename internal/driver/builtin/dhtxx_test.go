package builtin

import (
	"strings"
	"testing"
)

// makeDHTCounts builds a pulse-count series for the given 4 data
// bytes plus a valid checksum. Low phases count 10 polls; a 1 bit's
// high phase counts 20, a 0 bit's 5.
func makeDHTCounts(data [4]byte, checksumDelta byte) []int {
	checksum := byte(0)
	for _, b := range data {
		checksum += b
	}
	checksum += checksumDelta

	bytes := [5]byte{data[0], data[1], data[2], data[3], checksum}
	counts := make([]int, 2*dhtPulseCount)
	counts[0], counts[1] = 10, 10 // response pulse

	for bit := 0; bit < 40; bit++ {
		counts[2*(bit+1)] = 10
		high := 5
		if bytes[bit/8]&(1<<(7-bit%8)) != 0 {
			high = 20
		}
		counts[2*(bit+1)+1] = high
	}
	return counts
}

func TestDecodeDHTPulses(t *testing.T) {
	want := [4]byte{45, 0, 23, 0}
	data, err := decodeDHTPulses(makeDHTCounts(want, 0))
	if err != nil {
		t.Fatalf("decodeDHTPulses() error = %v", err)
	}
	if data != want {
		t.Errorf("decodeDHTPulses() = %v, want %v", data, want)
	}
}

func TestDecodeDHTPulsesChecksumMismatch(t *testing.T) {
	_, err := decodeDHTPulses(makeDHTCounts([4]byte{45, 0, 23, 0}, 1))
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Errorf("decodeDHTPulses() error = %v, want checksum mismatch", err)
	}
}

func TestConvertDHT(t *testing.T) {
	tests := []struct {
		name     string
		kind     dhtKind
		data     [4]byte
		wantTemp float64
		wantHum  float64
	}{
		{
			name:     "dht11 integer values",
			kind:     kindDHT11,
			data:     [4]byte{45, 0, 23, 0},
			wantTemp: 23,
			wantHum:  45,
		},
		{
			name:     "dht22 tenths",
			kind:     kindDHT22,
			data:     [4]byte{0x02, 0x8C, 0x01, 0x5F}, // 652, 351
			wantTemp: 35.1,
			wantHum:  65.2,
		},
		{
			name:     "dht22 negative temperature",
			kind:     kindDHT22,
			data:     [4]byte{0x02, 0x8C, 0x80, 0x65}, // sign bit + 101
			wantTemp: -10.1,
			wantHum:  65.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp, hum := convertDHT(tt.kind, tt.data)
			if !closeTo(temp, tt.wantTemp) {
				t.Errorf("temperature = %v, want %v", temp, tt.wantTemp)
			}
			if !closeTo(hum, tt.wantHum) {
				t.Errorf("humidity = %v, want %v", hum, tt.wantHum)
			}
		})
	}
}

func closeTo(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
