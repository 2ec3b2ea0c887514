package driver

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/flxdot/carlos-sub000/internal/edge"
)

// GPIO pins 0 and 1 carry the HAT ID EEPROM, anything above 27 does
// not exist on the 40-pin header.
const (
	MinGPIOPin = 2
	MaxGPIOPin = 27
)

// 7-bit I2C address range, excluding the reserved addresses at both
// ends of the bus.
const (
	MinI2CAddress = 0x03
	MaxI2CAddress = 0x77
)

// RawConfig is one undecoded driver entry from the device config file.
type RawConfig map[string]any

// Identifier returns the identifier key, or "" when absent.
func (r RawConfig) Identifier() string {
	s, _ := r["identifier"].(string)
	return s
}

// Module returns the driver_module key, or "" when absent.
func (r RawConfig) Module() string {
	s, _ := r["driver_module"].(string)
	return s
}

// Protocol returns the protocol key, or "" when absent.
func (r RawConfig) Protocol() string {
	s, _ := r["protocol"].(string)
	return s
}

// Decode unmarshals a raw config into a typed config struct. Unknown
// keys are rejected so that typos in the device config file fail
// loudly instead of being silently ignored.
func Decode(raw RawConfig, out any) error {
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(encoded))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CommonConfig holds the fields shared by every driver variant.
type CommonConfig struct {
	// Identifier names the driver instance. It must be unique within
	// the device.
	Identifier string `yaml:"identifier"`

	// DriverModule resolves the implementation in the registry.
	DriverModule string `yaml:"driver_module"`
}

func (c CommonConfig) Validate() error {
	if c.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidConfig)
	}
	if c.DriverModule == "" {
		return fmt.Errorf("%w: driver_module is required", ErrInvalidConfig)
	}
	return nil
}

// GPIOConfig configures a driver attached to a GPIO pin.
type GPIOConfig struct {
	CommonConfig `yaml:",inline"`

	Protocol  string               `yaml:"protocol"`
	Pin       int                  `yaml:"pin"`
	Direction edge.DriverDirection `yaml:"direction"`
}

func (c GPIOConfig) Validate() error {
	if err := c.CommonConfig.Validate(); err != nil {
		return err
	}
	if c.Protocol != "gpio" {
		return fmt.Errorf("%w: %s: protocol must be gpio, got %q",
			ErrInvalidConfig, c.Identifier, c.Protocol)
	}
	if c.Pin < MinGPIOPin || c.Pin > MaxGPIOPin {
		return fmt.Errorf("%w: %s: pin %d outside [%d, %d]",
			ErrInvalidConfig, c.Identifier, c.Pin, MinGPIOPin, MaxGPIOPin)
	}
	if !c.Direction.Valid() {
		return fmt.Errorf("%w: %s: invalid direction %q",
			ErrInvalidConfig, c.Identifier, c.Direction)
	}
	return nil
}

// I2CAddress is a 7-bit bus address, written as "0x44" in config files.
type I2CAddress string

// Int parses the address. Plain decimal strings are accepted as well.
func (a I2CAddress) Int() (int, error) {
	v, err := strconv.ParseInt(string(a), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid i2c address %q", ErrInvalidConfig, a)
	}
	return int(v), nil
}

// I2CConfig configures a driver attached to the I2C bus.
type I2CConfig struct {
	CommonConfig `yaml:",inline"`

	Protocol  string               `yaml:"protocol"`
	Address   I2CAddress           `yaml:"address"`
	Direction edge.DriverDirection `yaml:"direction"`
}

func (c I2CConfig) Validate() error {
	if err := c.CommonConfig.Validate(); err != nil {
		return err
	}
	if c.Protocol != "i2c" {
		return fmt.Errorf("%w: %s: protocol must be i2c, got %q",
			ErrInvalidConfig, c.Identifier, c.Protocol)
	}
	addr, err := c.Address.Int()
	if err != nil {
		return fmt.Errorf("%s: %w", c.Identifier, err)
	}
	if addr < MinI2CAddress || addr > MaxI2CAddress {
		return fmt.Errorf("%w: %s: address %#02x outside [%#02x, %#02x]",
			ErrInvalidConfig, c.Identifier, addr, MinI2CAddress, MaxI2CAddress)
	}
	if !c.Direction.Valid() {
		return fmt.Errorf("%w: %s: invalid direction %q",
			ErrInvalidConfig, c.Identifier, c.Direction)
	}
	return nil
}
