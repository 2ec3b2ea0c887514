package builtin

import (
	"errors"
	"fmt"
	"time"

	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
)

// Module names of the two supported DHT sensor generations.
const (
	DHT11Module = "dht11"
	DHT22Module = "dht22"
)

const (
	// dhtPulseCount covers the response pulse plus 40 data bits.
	dhtPulseCount = 41

	// dhtMaxPollCount bounds the busy-wait per signal edge.
	dhtMaxPollCount = 320

	// dhtReadAttempts retries flaky reads. The sensor is not a
	// real-time device and misses edges regularly.
	dhtReadAttempts = 16
)

var errDHTTimeout = errors.New("dht: signal edge timeout")

type dhtKind int

const (
	kindDHT11 dhtKind = iota
	kindDHT22
)

// DHT reads temperature and humidity from a DHT11 or DHT22 sensor
// over a single GPIO line.
type DHT struct {
	config driver.GPIOConfig
	module string
	kind   dhtKind

	pin Pin
}

func init() {
	driver.MustRegister(DHT11Module, newDHTFactory(DHT11Module, kindDHT11))
	driver.MustRegister(DHT22Module, newDHTFactory(DHT22Module, kindDHT22))
}

func newDHTFactory(module string, kind dhtKind) driver.Factory {
	return func(raw driver.RawConfig) (driver.Driver, error) {
		var cfg driver.GPIOConfig
		if err := driver.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if cfg.Direction != edge.DirectionInput {
			return nil, fmt.Errorf("%w: %s: %s is an input sensor",
				driver.ErrInvalidConfig, cfg.Identifier, module)
		}
		return &DHT{config: cfg, module: module, kind: kind}, nil
	}
}

func (d *DHT) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   d.config.Identifier,
		Direction:    edge.DirectionInput,
		DriverModule: d.module,
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "temperature", UnitOfMeasurement: edge.UnitCelsius},
			{SignalIdentifier: "humidity", UnitOfMeasurement: edge.UnitHumidityPercentage},
		},
	}
}

func (d *DHT) Setup() error {
	pin, err := OpenPin(d.config.Pin)
	if err != nil {
		return err
	}
	d.pin = pin
	return d.pin.Output()
}

func (d *DHT) Read() (map[string]float64, error) {
	if d.pin == nil {
		return nil, fmt.Errorf("%s: sensor has not been set up", d.config.Identifier)
	}

	var lastErr error
	for attempt := 0; attempt < dhtReadAttempts; attempt++ {
		temperature, humidity, err := d.readOnce()
		if err != nil {
			lastErr = err
			continue
		}
		return map[string]float64{
			"temperature": temperature,
			"humidity":    humidity,
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", d.config.Identifier, lastErr)
}

func (d *DHT) readOnce() (temperature, humidity float64, err error) {
	counts, err := d.readPulseCounts()
	if err != nil {
		return 0, 0, err
	}
	data, err := decodeDHTPulses(counts)
	if err != nil {
		return 0, 0, err
	}
	temperature, humidity = convertDHT(d.kind, data)
	return temperature, humidity, nil
}

// readPulseCounts triggers a measurement and samples the line,
// counting poll iterations per low and high phase of each pulse.
func (d *DHT) readPulseCounts() ([]int, error) {
	// Start signal: hold high, then pull low for 18 ms.
	if err := d.pin.Output(); err != nil {
		return nil, err
	}
	if err := d.pin.Write(true); err != nil {
		return nil, err
	}
	time.Sleep(200 * time.Millisecond)
	if err := d.pin.Write(false); err != nil {
		return nil, err
	}
	time.Sleep(18 * time.Millisecond)

	if err := d.pin.Input(); err != nil {
		return nil, err
	}

	// The host pull-up holds the line high for 20-40 us before the
	// sensor answers.
	for count := 0; ; count++ {
		high, err := d.pin.Read()
		if err != nil {
			return nil, err
		}
		if !high {
			break
		}
		if count > dhtMaxPollCount {
			return nil, fmt.Errorf("%w: initial pull-up", errDHTTimeout)
		}
	}

	counts := make([]int, 2*dhtPulseCount)
	for pulse := 0; pulse < 2*dhtPulseCount; pulse += 2 {
		for {
			high, err := d.pin.Read()
			if err != nil {
				return nil, err
			}
			if high {
				break
			}
			counts[pulse]++
			if counts[pulse] > dhtMaxPollCount {
				return nil, fmt.Errorf("%w: low phase of pulse %d", errDHTTimeout, pulse/2)
			}
		}
		for {
			high, err := d.pin.Read()
			if err != nil {
				return nil, err
			}
			if !high {
				break
			}
			counts[pulse+1]++
			if counts[pulse+1] > dhtMaxPollCount {
				return nil, fmt.Errorf("%w: high phase of pulse %d", errDHTTimeout, pulse/2)
			}
		}
	}
	return counts, nil
}

// decodeDHTPulses turns pulse counts into the sensor's 4 data bytes.
// Each bit's high phase is compared against the average low phase
// length (nominally 50 us): longer means 1. The fifth byte is an
// additive checksum over the first four.
func decodeDHTPulses(counts []int) ([4]byte, error) {
	var data [4]byte
	if len(counts) != 2*dhtPulseCount {
		return data, fmt.Errorf("dht: got %d phase counts, want %d", len(counts), 2*dhtPulseCount)
	}

	totalLow := 0
	for pulse := 1; pulse < dhtPulseCount; pulse++ {
		totalLow += counts[2*pulse]
	}
	averageLow := float64(totalLow) / float64(dhtPulseCount-1)

	var bits [40]byte
	for bit := 0; bit < 40; bit++ {
		// Skip the response pulse, then take the high phase of each
		// data pulse.
		if float64(counts[2*(bit+1)+1]) > averageLow {
			bits[bit] = 1
		}
	}

	var checksum byte
	for i := 0; i < 4; i++ {
		for b := 0; b < 8; b++ {
			data[i] = data[i]<<1 | bits[8*i+b]
		}
		checksum += data[i]
	}
	var expected byte
	for b := 0; b < 8; b++ {
		expected = expected<<1 | bits[32+b]
	}
	if checksum != expected {
		return data, fmt.Errorf("dht: checksum mismatch: computed %#02x, sensor sent %#02x",
			checksum, expected)
	}
	return data, nil
}

// convertDHT turns the data bytes into physical values. The DHT11
// sends integer degrees and percent; the DHT22 sends tenths with a
// sign bit on the temperature.
func convertDHT(kind dhtKind, data [4]byte) (temperature, humidity float64) {
	if kind == kindDHT11 {
		return float64(data[2]), float64(data[0])
	}

	humidity = float64(uint16(data[0])<<8|uint16(data[1])) * 0.1
	rawTemp := uint16(data[2])<<8 | uint16(data[3])
	temperature = float64(rawTemp&0x7FFF) * 0.1
	if rawTemp&0x8000 != 0 {
		temperature = -temperature
	}
	return temperature, humidity
}
