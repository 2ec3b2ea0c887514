package builtin

import (
	"strings"
	"testing"

	"github.com/flxdot/carlos-sub000/internal/driver"
)

func sht30Frame(rawTemp, rawHum uint16) []byte {
	frame := []byte{
		byte(rawTemp >> 8), byte(rawTemp), 0,
		byte(rawHum >> 8), byte(rawHum), 0,
	}
	frame[2] = crc8(frame[0:2], 0xFF, 0x00, 0x31)
	frame[5] = crc8(frame[3:5], 0xFF, 0x00, 0x31)
	return frame
}

func TestDecodeSHT30Frame(t *testing.T) {
	tests := []struct {
		name     string
		rawTemp  uint16
		rawHum   uint16
		wantTemp float64
		wantHum  float64
	}{
		{name: "scale minimum", rawTemp: 0x0000, rawHum: 0x0000, wantTemp: -45, wantHum: 0},
		{name: "scale maximum", rawTemp: 0xFFFF, rawHum: 0xFFFF, wantTemp: 130, wantHum: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp, hum, err := decodeSHT30Frame(sht30Frame(tt.rawTemp, tt.rawHum))
			if err != nil {
				t.Fatalf("decodeSHT30Frame() error = %v", err)
			}
			if !closeTo(temp, tt.wantTemp) {
				t.Errorf("temperature = %v, want %v", temp, tt.wantTemp)
			}
			if !closeTo(hum, tt.wantHum) {
				t.Errorf("humidity = %v, want %v", hum, tt.wantHum)
			}
		})
	}
}

func TestDecodeSHT30FrameCRCMismatch(t *testing.T) {
	frame := sht30Frame(0x6666, 0x8000)
	frame[1] ^= 0x01

	_, _, err := decodeSHT30Frame(frame)
	if err == nil || !strings.Contains(err.Error(), "crc") {
		t.Errorf("decodeSHT30Frame() error = %v, want crc mismatch", err)
	}
}

func TestSHT30Read(t *testing.T) {
	bus := newFakeBus()
	bus.reads[0x00] = sht30Frame(0xFFFF, 0x0000)

	restore := OpenI2C
	OpenI2C = func(int) (I2CBus, error) { return bus, nil }
	defer func() { OpenI2C = restore }()

	built, err := driver.Default().Build(driver.RawConfig{
		"identifier":    "sht30-1",
		"driver_module": SHT30Module,
		"protocol":      "i2c",
		"address":       "0x44",
		"direction":     "input",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	sensor := built.(*SHT30)
	if err := sensor.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	values, err := sensor.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !closeTo(values["temperature"], 130) {
		t.Errorf("temperature = %v, want 130", values["temperature"])
	}
	if !closeTo(values["humidity"], 0) {
		t.Errorf("humidity = %v, want 0", values["humidity"])
	}

	// The measurement command must precede the data read.
	if len(bus.writes) == 0 || bus.writes[0][0] != sht30RegMeasure {
		t.Errorf("first write = %v, want measurement command", bus.writes)
	}
}

func TestSHT30RejectsForeignAddress(t *testing.T) {
	_, err := driver.Default().Build(driver.RawConfig{
		"identifier":    "sht30-1",
		"driver_module": SHT30Module,
		"protocol":      "i2c",
		"address":       "0x48",
		"direction":     "input",
	})
	if err == nil {
		t.Error("Build() error = nil, want address error")
	}
}
