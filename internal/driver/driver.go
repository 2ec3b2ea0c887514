package driver

import (
	"context"
	"time"

	"github.com/flxdot/carlos-sub000/internal/edge"
)

// Driver is the capability shared by every peripheral driver.
type Driver interface {
	// Metadata describes the driver instance: identifier, direction,
	// module and the signals it produces or consumes.
	Metadata() edge.DriverMetadata

	// Setup initializes the hardware. It is called exactly once before
	// any read or set.
	Setup() error
}

// AnalogInput produces float readings keyed by signal identifier.
type AnalogInput interface {
	Driver

	// Read performs a blocking measurement. Sensor reads can take
	// hundreds of milliseconds; callers on a latency-sensitive loop
	// should go through ReadAnalog instead.
	Read() (map[string]float64, error)
}

// DigitalInput produces boolean readings keyed by signal identifier.
type DigitalInput interface {
	Driver

	Read() (map[string]bool, error)
}

// DigitalOutput accepts a boolean output state.
type DigitalOutput interface {
	Driver

	Set(value bool) error
}

// ReadAnalog runs the blocking Read off the calling goroutine and
// waits for the result or context cancellation. A read that survives
// cancellation finishes in the background and is discarded.
func ReadAnalog(ctx context.Context, d AnalogInput) (map[string]float64, error) {
	type result struct {
		values map[string]float64
		err    error
	}

	ch := make(chan result, 1)
	go func() {
		values, err := d.Read()
		ch <- result{values: values, err: err}
	}()

	select {
	case res := <-ch:
		return res.values, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadDigital is the DigitalInput counterpart of ReadAnalog.
func ReadDigital(ctx context.Context, d DigitalInput) (map[string]bool, error) {
	type result struct {
		values map[string]bool
		err    error
	}

	ch := make(chan result, 1)
	go func() {
		values, err := d.Read()
		ch <- result{values: values, err: err}
	}()

	select {
	case res := <-ch:
		return res.values, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TestAnalogInput validates a configured input by taking one reading.
func TestAnalogInput(d AnalogInput) (map[string]float64, error) {
	return d.Read()
}

// TestDigitalOutput validates a configured output by switching it off,
// on for one second, and off again.
func TestDigitalOutput(d DigitalOutput) error {
	if err := d.Set(false); err != nil {
		return err
	}
	if err := d.Set(true); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return d.Set(false)
}
