package driver

import "fmt"

// ValidateAddressSpace checks that a device's driver configs do not
// collide on the shared buses: identifiers are unique, GPIO pins are
// unique, I2C addresses are unique, and pins 2 and 3 stay free when
// any I2C driver is present because they carry SDA and SCL.
func ValidateAddressSpace(configs []RawConfig) error {
	identifiers := make(map[string]bool, len(configs))
	pins := make(map[int]string)
	addresses := make(map[int]string)
	hasI2C := false

	for _, raw := range configs {
		identifier := raw.Identifier()
		if identifier == "" {
			return fmt.Errorf("%w: driver without identifier", ErrInvalidConfig)
		}
		if identifiers[identifier] {
			return fmt.Errorf("%w: duplicate driver identifier %q",
				ErrInvalidConfig, identifier)
		}
		identifiers[identifier] = true

		switch raw.Protocol() {
		case "gpio":
			var cfg GPIOConfig
			if err := Decode(raw, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if other, taken := pins[cfg.Pin]; taken {
				return fmt.Errorf("%w: pin %d used by both %q and %q",
					ErrInvalidConfig, cfg.Pin, other, identifier)
			}
			pins[cfg.Pin] = identifier

		case "i2c":
			var cfg I2CConfig
			if err := Decode(raw, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			hasI2C = true
			addr, _ := cfg.Address.Int()
			if other, taken := addresses[addr]; taken {
				return fmt.Errorf("%w: i2c address %#02x used by both %q and %q",
					ErrInvalidConfig, addr, other, identifier)
			}
			addresses[addr] = identifier

		case "":
			// Bus-less drivers such as device metrics.
			var cfg CommonConfig
			if err := Decode(raw, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: %s: unknown protocol %q",
				ErrInvalidConfig, identifier, raw.Protocol())
		}
	}

	if hasI2C {
		for _, pin := range []int{2, 3} {
			if other, taken := pins[pin]; taken {
				return fmt.Errorf("%w: pin %d is reserved for i2c but used by %q",
					ErrInvalidConfig, pin, other)
			}
		}
	}
	return nil
}
