package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadMemoryUsagePercent(t *testing.T) {
	restore := procMeminfoPath
	procMeminfoPath = writeFixture(t, "meminfo",
		"MemTotal:       8000000 kB\nMemFree:        1000000 kB\nMemAvailable:   2000000 kB\n")
	defer func() { procMeminfoPath = restore }()

	usage, err := readMemoryUsagePercent()
	if err != nil {
		t.Fatalf("readMemoryUsagePercent() error = %v", err)
	}
	if !closeTo(usage, 75) {
		t.Errorf("usage = %v, want 75", usage)
	}
}

func TestReadMemoryUsagePercentMissingTotal(t *testing.T) {
	restore := procMeminfoPath
	procMeminfoPath = writeFixture(t, "meminfo", "MemFree: 12 kB\n")
	defer func() { procMeminfoPath = restore }()

	if _, err := readMemoryUsagePercent(); err == nil {
		t.Error("readMemoryUsagePercent() error = nil, want error")
	}
}

func TestReadCPUTemperature(t *testing.T) {
	restore := cpuTempPath
	cpuTempPath = writeFixture(t, "temp", "48500\n")
	defer func() { cpuTempPath = restore }()

	if temp := readCPUTemperature(); !closeTo(temp, 48.5) {
		t.Errorf("temperature = %v, want 48.5", temp)
	}
}

func TestReadCPUTemperatureMissingZone(t *testing.T) {
	restore := cpuTempPath
	cpuTempPath = filepath.Join(t.TempDir(), "missing")
	defer func() { cpuTempPath = restore }()

	if temp := readCPUTemperature(); temp != 0 {
		t.Errorf("temperature = %v, want 0 fallback", temp)
	}
}

func TestReadCPUTicks(t *testing.T) {
	restore := procStatPath
	procStatPath = writeFixture(t, "stat",
		"cpu  100 0 50 800 50 0 0 0 0 0\ncpu0 100 0 50 800 50 0 0 0 0 0\n")
	defer func() { procStatPath = restore }()

	idle, total, err := readCPUTicks()
	if err != nil {
		t.Fatalf("readCPUTicks() error = %v", err)
	}
	if idle != 850 {
		t.Errorf("idle = %d, want 850", idle)
	}
	if total != 1000 {
		t.Errorf("total = %d, want 1000", total)
	}
}

func TestDeviceMetricsMetadata(t *testing.T) {
	built, err := driver.Default().Build(driver.RawConfig{
		"identifier":    "metrics",
		"driver_module": DeviceMetricsModule,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	metadata := built.Metadata()
	if metadata.Direction != edge.DirectionInput {
		t.Errorf("direction = %v, want input", metadata.Direction)
	}
	if len(metadata.Signals) != 4 {
		t.Errorf("got %d signals, want 4", len(metadata.Signals))
	}
	for _, signal := range metadata.Signals {
		if signal.SignalIdentifier == "cpu.temperature" &&
			signal.UnitOfMeasurement != edge.UnitCelsius {
			t.Errorf("cpu.temperature unit = %v, want celsius", signal.UnitOfMeasurement)
		}
	}
}
