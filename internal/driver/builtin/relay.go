package builtin

import (
	"fmt"

	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
)

// RelayModule is the driver_module name of the GPIO relay driver.
const RelayModule = "relay"

// Relay switches a relay board over a GPIO pin. The board is active
// low: a high line means off.
type Relay struct {
	config driver.GPIOConfig

	pin Pin
}

func init() {
	driver.MustRegister(RelayModule, func(raw driver.RawConfig) (driver.Driver, error) {
		var cfg driver.GPIOConfig
		if err := driver.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if cfg.Direction != edge.DirectionOutput {
			return nil, fmt.Errorf("%w: %s: relay is an output driver",
				driver.ErrInvalidConfig, cfg.Identifier)
		}
		return &Relay{config: cfg}, nil
	})
}

func (r *Relay) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   r.config.Identifier,
		Direction:    edge.DirectionOutput,
		DriverModule: RelayModule,
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "state", UnitOfMeasurement: edge.UnitLess},
		},
	}
}

func (r *Relay) Setup() error {
	pin, err := OpenPin(r.config.Pin)
	if err != nil {
		return err
	}
	r.pin = pin
	if err := r.pin.Output(); err != nil {
		return err
	}
	// Start switched off.
	return r.pin.Write(true)
}

func (r *Relay) Set(value bool) error {
	if r.pin == nil {
		return fmt.Errorf("%s: relay has not been set up", r.config.Identifier)
	}
	return r.pin.Write(!value)
}
