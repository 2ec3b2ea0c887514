package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

// DefaultSampleInterval is how often each input driver is read.
const DefaultSampleInterval = 150 * time.Second

// DriverManager owns the drivers built from the device configuration.
// It sets each one up exactly once and samples every input driver on a
// fixed interval, forwarding readings to the blackbox.
type DriverManager struct {
	drivers  []driver.Driver
	box      *blackbox.Blackbox
	logger   *logging.Logger
	interval time.Duration
}

// NewDriverManager builds the configured drivers through the registry.
// An interval of zero selects the default.
func NewDriverManager(registry *driver.Registry, configs []driver.RawConfig, box *blackbox.Blackbox, logger *logging.Logger, interval time.Duration) (*DriverManager, error) {
	if err := driver.ValidateAddressSpace(configs); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	drivers := make([]driver.Driver, 0, len(configs))
	for _, raw := range configs {
		d, err := registry.Build(raw)
		if err != nil {
			return nil, fmt.Errorf("building driver %q: %w", raw.Identifier(), err)
		}
		drivers = append(drivers, d)
	}

	return &DriverManager{
		drivers:  drivers,
		box:      box,
		logger:   logger,
		interval: interval,
	}, nil
}

// Setup initializes every driver. Called once before Run.
func (m *DriverManager) Setup() error {
	for _, d := range m.drivers {
		metadata := d.Metadata()
		if err := d.Setup(); err != nil {
			return fmt.Errorf("setting up driver %q: %w", metadata.Identifier, err)
		}
		m.logger.Info("driver ready",
			"identifier", metadata.Identifier, "module", metadata.DriverModule)
	}
	return nil
}

// Metadata returns the metadata of every driver, used as the payload
// of the registration handshake.
func (m *DriverManager) Metadata() []edge.DriverMetadata {
	metadata := make([]edge.DriverMetadata, 0, len(m.drivers))
	for _, d := range m.drivers {
		metadata = append(metadata, d.Metadata())
	}
	return metadata
}

// Run samples every input driver on the configured interval until the
// context is cancelled. Each driver gets its own goroutine so one slow
// sensor does not delay the others.
func (m *DriverManager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range m.drivers {
		d := d
		read := inputReadFunc(d)
		if read == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.sampleLoop(ctx, d.Metadata().Identifier, read)
		}()
	}
	wg.Wait()
}

// inputReadFunc returns the sampling function for an input driver, or
// nil for drivers that are not sampled (outputs). Digital readings are
// stored as 0 and 1, the same encoding the server keeps for booleans.
func inputReadFunc(d driver.Driver) func(ctx context.Context) (map[string]float64, error) {
	switch input := d.(type) {
	case driver.AnalogInput:
		return func(ctx context.Context) (map[string]float64, error) {
			return driver.ReadAnalog(ctx, input)
		}
	case driver.DigitalInput:
		return func(ctx context.Context) (map[string]float64, error) {
			states, err := driver.ReadDigital(ctx, input)
			if err != nil {
				return nil, err
			}
			values := make(map[string]float64, len(states))
			for signal, state := range states {
				var value float64
				if state {
					value = 1
				}
				values[signal] = value
			}
			return values, nil
		}
	default:
		return nil
	}
}

// sampleLoop reads one driver forever. The reading is stamped with the
// midpoint of the read window, since slow sensors can take hundreds of
// milliseconds between start and finish.
func (m *DriverManager) sampleLoop(ctx context.Context, identifier string, read func(ctx context.Context) (map[string]float64, error)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		readStart := time.Now().UTC()
		values, err := read(ctx)
		readEnd := time.Now().UTC()

		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			m.logger.Warn("driver read failed", "identifier", identifier, "error", err)
		default:
			timestamp := readStart.Add(readEnd.Sub(readStart) / 2)
			if err := m.box.Record(ctx, identifier, timestamp, values); err != nil {
				m.logger.Error("recording reading failed",
					"identifier", identifier, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
