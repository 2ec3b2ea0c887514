package builtin

import (
	"fmt"
	"time"

	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
)

// SHT30Module is the driver_module name of the Sensirion SHT30 driver.
const SHT30Module = "sht30"

const (
	// sht30RegMeasure starts a measurement with clock stretching
	// disabled; sht30ParamHighRepeatability selects the high
	// repeatability mode.
	sht30RegMeasure             = 0x2C
	sht30ParamHighRepeatability = 0x06
	sht30ReadDelay              = 100 * time.Millisecond
)

// sht30Addresses are the two bus addresses the sensor can be strapped
// to.
var sht30Addresses = map[int]bool{0x44: true, 0x45: true}

// SHT30 reads temperature and humidity from a Sensirion SHT30 over
// I2C. Measurement frames carry a CRC-8 per 16-bit word.
type SHT30 struct {
	config  driver.I2CConfig
	address int

	bus I2CBus
}

func init() {
	driver.MustRegister(SHT30Module, func(raw driver.RawConfig) (driver.Driver, error) {
		var cfg driver.I2CConfig
		if err := driver.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		address, err := cfg.Address.Int()
		if err != nil {
			return nil, err
		}
		if !sht30Addresses[address] {
			return nil, fmt.Errorf("%w: %s: sht30 must sit at 0x44 or 0x45, got %#02x",
				driver.ErrInvalidConfig, cfg.Identifier, address)
		}
		return &SHT30{config: cfg, address: address}, nil
	})
}

func (s *SHT30) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   s.config.Identifier,
		Direction:    edge.DirectionInput,
		DriverModule: SHT30Module,
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "temperature", UnitOfMeasurement: edge.UnitCelsius},
			{SignalIdentifier: "humidity", UnitOfMeasurement: edge.UnitHumidityPercentage},
		},
	}
}

func (s *SHT30) Setup() error {
	bus, err := OpenI2C(s.address)
	if err != nil {
		return err
	}
	s.bus = bus
	return nil
}

func (s *SHT30) Read() (map[string]float64, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("%s: sensor has not been set up", s.config.Identifier)
	}

	if err := s.bus.WriteReg(sht30RegMeasure, sht30ParamHighRepeatability); err != nil {
		return nil, err
	}
	time.Sleep(sht30ReadDelay)

	// Temperature MSB, LSB, CRC, then humidity MSB, LSB, CRC.
	data, err := s.bus.ReadReg(0x00, 6)
	if err != nil {
		return nil, err
	}
	temperature, humidity, err := decodeSHT30Frame(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.config.Identifier, err)
	}
	return map[string]float64{
		"temperature": temperature,
		"humidity":    humidity,
	}, nil
}

func decodeSHT30Frame(data []byte) (temperature, humidity float64, err error) {
	if len(data) != 6 {
		return 0, 0, fmt.Errorf("sht30: frame has %d bytes, want 6", len(data))
	}
	if crc8(data[0:2], 0xFF, 0x00, 0x31) != data[2] {
		return 0, 0, fmt.Errorf("sht30: temperature crc mismatch")
	}
	if crc8(data[3:5], 0xFF, 0x00, 0x31) != data[5] {
		return 0, 0, fmt.Errorf("sht30: humidity crc mismatch")
	}

	rawTemp := uint16(data[0])<<8 | uint16(data[1])
	rawHum := uint16(data[3])<<8 | uint16(data[4])

	temperature = -45 + 175*float64(rawTemp)/0xFFFF
	humidity = 100 * float64(rawHum) / 0xFFFF
	return temperature, humidity, nil
}
