package device

import (
	"context"
	"testing"
	"time"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

// fakeSensor is an analog input producing a fixed reading.
type fakeSensor struct {
	identifier string
	setupCalls int
}

func (f *fakeSensor) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   f.identifier,
		Direction:    edge.DirectionInput,
		DriverModule: "fake_sensor",
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "temperature", UnitOfMeasurement: edge.UnitCelsius},
		},
	}
}

func (f *fakeSensor) Setup() error {
	f.setupCalls++
	return nil
}

func (f *fakeSensor) Read() (map[string]float64, error) {
	return map[string]float64{"temperature": 21.5}, nil
}

// fakeContact is a digital input reporting a fixed closed state.
type fakeContact struct {
	identifier string
}

func (f *fakeContact) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   f.identifier,
		Direction:    edge.DirectionInput,
		DriverModule: "fake_contact",
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "closed", UnitOfMeasurement: edge.UnitLess},
		},
	}
}

func (f *fakeContact) Setup() error { return nil }

func (f *fakeContact) Read() (map[string]bool, error) {
	return map[string]bool{"closed": true}, nil
}

func newFakeRegistry(t *testing.T, sensors map[string]*fakeSensor) *driver.Registry {
	t.Helper()
	registry := driver.NewRegistry()
	err := registry.Register("fake_sensor", func(raw driver.RawConfig) (driver.Driver, error) {
		sensor := &fakeSensor{identifier: raw.Identifier()}
		sensors[raw.Identifier()] = sensor
		return sensor, nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return registry
}

func TestDriverManagerSetupAndMetadata(t *testing.T) {
	box, _ := newTestBlackbox(t)
	sensors := make(map[string]*fakeSensor)
	registry := newFakeRegistry(t, sensors)

	configs := []driver.RawConfig{
		{"identifier": "sensor-a", "driver_module": "fake_sensor"},
		{"identifier": "sensor-b", "driver_module": "fake_sensor"},
	}
	manager, err := NewDriverManager(registry, configs, box, logging.Default(), 0)
	if err != nil {
		t.Fatalf("NewDriverManager() error = %v", err)
	}

	if err := manager.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	for identifier, sensor := range sensors {
		if sensor.setupCalls != 1 {
			t.Errorf("sensor %s setup called %d times, want 1", identifier, sensor.setupCalls)
		}
	}

	metadata := manager.Metadata()
	if len(metadata) != 2 {
		t.Fatalf("Metadata() returned %d entries, want 2", len(metadata))
	}
	if metadata[0].DriverModule != "fake_sensor" {
		t.Errorf("DriverModule = %q", metadata[0].DriverModule)
	}
}

func TestDriverManagerUnknownModule(t *testing.T) {
	box, _ := newTestBlackbox(t)
	registry := driver.NewRegistry()

	configs := []driver.RawConfig{
		{"identifier": "sensor-a", "driver_module": "does_not_exist"},
	}
	if _, err := NewDriverManager(registry, configs, box, logging.Default(), 0); err == nil {
		t.Fatal("NewDriverManager() expected error for unknown module")
	}
}

func TestDriverManagerRunRecordsReadings(t *testing.T) {
	box, db := newTestBlackbox(t)
	sensors := make(map[string]*fakeSensor)
	registry := newFakeRegistry(t, sensors)

	configs := []driver.RawConfig{
		{"identifier": "sensor-a", "driver_module": "fake_sensor"},
	}
	manager, err := NewDriverManager(registry, configs, box, logging.Default(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewDriverManager() error = %v", err)
	}
	if err := manager.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	manager.Run(ctx)

	entries, err := blackbox.FindIndex(context.Background(), db, "sensor-a", "temperature")
	if err != nil {
		t.Fatalf("FindIndex() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d index entries, want 1", len(entries))
	}

	var samples int
	if err := db.QueryRow(`SELECT count(*) FROM timeseries_data`).Scan(&samples); err != nil {
		t.Fatalf("counting samples: %v", err)
	}
	if samples == 0 {
		t.Error("no samples recorded")
	}
}

func TestDriverManagerSamplesDigitalInputs(t *testing.T) {
	box, db := newTestBlackbox(t)
	registry := driver.NewRegistry()
	err := registry.Register("fake_contact", func(raw driver.RawConfig) (driver.Driver, error) {
		return &fakeContact{identifier: raw.Identifier()}, nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	configs := []driver.RawConfig{
		{"identifier": "door-1", "driver_module": "fake_contact"},
	}
	manager, err := NewDriverManager(registry, configs, box, logging.Default(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewDriverManager() error = %v", err)
	}
	if err := manager.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	manager.Run(ctx)

	var samples int
	var value float64
	err = db.QueryRow(`SELECT count(*), max(value) FROM timeseries_data`).Scan(&samples, &value)
	if err != nil {
		t.Fatalf("counting samples: %v", err)
	}
	if samples == 0 {
		t.Fatal("no digital samples recorded")
	}
	if value != 1 {
		t.Errorf("recorded value = %v, want 1 for a closed contact", value)
	}
}
