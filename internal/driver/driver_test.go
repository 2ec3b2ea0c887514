package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flxdot/carlos-sub000/internal/edge"
)

type fakeAnalog struct {
	metadata edge.DriverMetadata
	values   map[string]float64
	err      error
	block    chan struct{}
}

func (f *fakeAnalog) Metadata() edge.DriverMetadata { return f.metadata }
func (f *fakeAnalog) Setup() error                  { return nil }

func (f *fakeAnalog) Read() (map[string]float64, error) {
	if f.block != nil {
		<-f.block
	}
	return f.values, f.err
}

func TestRegistryRegisterAndBuild(t *testing.T) {
	registry := NewRegistry()

	driver := &fakeAnalog{values: map[string]float64{"temperature": 21.5}}
	err := registry.Register("fake-sensor", func(raw RawConfig) (Driver, error) {
		var cfg CommonConfig
		if err := Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return driver, nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	built, err := registry.Build(RawConfig{
		"identifier":    "sensor-1",
		"driver_module": "fake-sensor",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if built != driver {
		t.Error("Build() returned a different driver instance")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	factory := func(RawConfig) (Driver, error) { return &fakeAnalog{}, nil }

	if err := registry.Register("fake-sensor", factory); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := registry.Register("fake-sensor", factory)
	if !errors.Is(err, ErrDuplicateModule) {
		t.Errorf("second Register() error = %v, want ErrDuplicateModule", err)
	}
}

func TestRegistryBuildUnknownModule(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Build(RawConfig{
		"identifier":    "sensor-1",
		"driver_module": "missing",
	})
	if !errors.Is(err, ErrUnknownModule) {
		t.Errorf("Build() error = %v, want ErrUnknownModule", err)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	var cfg GPIOConfig
	err := Decode(RawConfig{
		"identifier":    "relay-1",
		"driver_module": "relay",
		"protocol":      "gpio",
		"pin":           17,
		"direction":     "output",
		"pni":           4,
	}, &cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Decode() error = %v, want ErrInvalidConfig", err)
	}
}

func TestGPIOConfigValidate(t *testing.T) {
	valid := GPIOConfig{
		CommonConfig: CommonConfig{Identifier: "relay-1", DriverModule: "relay"},
		Protocol:     "gpio",
		Pin:          17,
		Direction:    edge.DirectionOutput,
	}

	tests := []struct {
		name    string
		mutate  func(*GPIOConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*GPIOConfig) {}},
		{name: "pin below range", mutate: func(c *GPIOConfig) { c.Pin = 1 }, wantErr: true},
		{name: "pin above range", mutate: func(c *GPIOConfig) { c.Pin = 28 }, wantErr: true},
		{name: "bad direction", mutate: func(c *GPIOConfig) { c.Direction = "sideways" }, wantErr: true},
		{name: "missing identifier", mutate: func(c *GPIOConfig) { c.Identifier = "" }, wantErr: true},
		{name: "wrong protocol", mutate: func(c *GPIOConfig) { c.Protocol = "i2c" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestI2CConfigValidate(t *testing.T) {
	valid := I2CConfig{
		CommonConfig: CommonConfig{Identifier: "sht30-1", DriverModule: "sht30"},
		Protocol:     "i2c",
		Address:      "0x44",
		Direction:    edge.DirectionInput,
	}

	tests := []struct {
		name    string
		mutate  func(*I2CConfig)
		wantErr bool
	}{
		{name: "valid hex", mutate: func(*I2CConfig) {}},
		{name: "valid decimal", mutate: func(c *I2CConfig) { c.Address = "68" }},
		{name: "address below range", mutate: func(c *I2CConfig) { c.Address = "0x02" }, wantErr: true},
		{name: "address above range", mutate: func(c *I2CConfig) { c.Address = "0x78" }, wantErr: true},
		{name: "unparsable address", mutate: func(c *I2CConfig) { c.Address = "fishy" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddressSpace(t *testing.T) {
	gpio := func(id string, pin int) RawConfig {
		return RawConfig{
			"identifier": id, "driver_module": "relay",
			"protocol": "gpio", "pin": pin, "direction": "output",
		}
	}
	i2c := func(id, addr string) RawConfig {
		return RawConfig{
			"identifier": id, "driver_module": "sht30",
			"protocol": "i2c", "address": addr, "direction": "input",
		}
	}

	tests := []struct {
		name    string
		configs []RawConfig
		wantErr bool
	}{
		{
			name:    "disjoint space",
			configs: []RawConfig{gpio("relay-1", 17), gpio("relay-2", 27), i2c("sht30-1", "0x44")},
		},
		{
			name:    "duplicate identifier",
			configs: []RawConfig{gpio("relay-1", 17), gpio("relay-1", 27)},
			wantErr: true,
		},
		{
			name:    "duplicate pin",
			configs: []RawConfig{gpio("relay-1", 17), gpio("relay-2", 17)},
			wantErr: true,
		},
		{
			name:    "duplicate i2c address",
			configs: []RawConfig{i2c("sht30-1", "0x44"), i2c("si-1", "0x44")},
			wantErr: true,
		},
		{
			name:    "i2c reserves pins 2 and 3",
			configs: []RawConfig{gpio("relay-1", 2), i2c("sht30-1", "0x44")},
			wantErr: true,
		},
		{
			name:    "pin 2 fine without i2c",
			configs: []RawConfig{gpio("relay-1", 2)},
		},
		{
			name: "bus-less driver",
			configs: []RawConfig{
				{"identifier": "metrics", "driver_module": "device_metrics"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddressSpace(tt.configs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddressSpace() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadAnalogCancellation(t *testing.T) {
	blocked := &fakeAnalog{block: make(chan struct{})}
	defer close(blocked.block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ReadAnalog(ctx, blocked)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadAnalog() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestReadAnalogReturnsValues(t *testing.T) {
	sensor := &fakeAnalog{values: map[string]float64{"temperature": 21.5}}

	values, err := ReadAnalog(context.Background(), sensor)
	if err != nil {
		t.Fatalf("ReadAnalog() error = %v", err)
	}
	if values["temperature"] != 21.5 {
		t.Errorf("temperature = %v, want 21.5", values["temperature"])
	}
}
