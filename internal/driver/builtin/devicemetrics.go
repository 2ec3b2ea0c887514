package builtin

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
)

// DeviceMetricsModule is the driver_module name of the host metrics
// driver.
const DeviceMetricsModule = "device_metrics"

// Paths are variables so tests can point them at fixtures.
var (
	procStatPath    = "/proc/stat"
	procMeminfoPath = "/proc/meminfo"
	cpuTempPath     = "/sys/class/thermal/thermal_zone0/temp"
	diskUsagePath   = "/"
)

// DeviceMetrics reports CPU, memory and disk utilization of the device
// itself. It needs no bus access.
type DeviceMetrics struct {
	config driver.CommonConfig
}

func init() {
	driver.MustRegister(DeviceMetricsModule, func(raw driver.RawConfig) (driver.Driver, error) {
		var cfg driver.CommonConfig
		if err := driver.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &DeviceMetrics{config: cfg}, nil
	})
}

func (d *DeviceMetrics) Metadata() edge.DriverMetadata {
	return edge.DriverMetadata{
		Identifier:   d.config.Identifier,
		Direction:    edge.DirectionInput,
		DriverModule: DeviceMetricsModule,
		Signals: []edge.SignalDescriptor{
			{SignalIdentifier: "cpu.load_percent", UnitOfMeasurement: edge.UnitPercentage},
			{SignalIdentifier: "cpu.temperature", UnitOfMeasurement: edge.UnitCelsius},
			{SignalIdentifier: "memory.usage_percent", UnitOfMeasurement: edge.UnitPercentage},
			{SignalIdentifier: "disk.usage_percent", UnitOfMeasurement: edge.UnitPercentage},
		},
	}
}

func (d *DeviceMetrics) Setup() error { return nil }

func (d *DeviceMetrics) Read() (map[string]float64, error) {
	cpuLoad, err := readCPULoadPercent()
	if err != nil {
		return nil, err
	}
	memory, err := readMemoryUsagePercent()
	if err != nil {
		return nil, err
	}
	disk, err := readDiskUsagePercent()
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"cpu.load_percent":     cpuLoad,
		"cpu.temperature":      readCPUTemperature(),
		"memory.usage_percent": memory,
		"disk.usage_percent":   disk,
	}, nil
}

// readCPULoadPercent samples /proc/stat twice one second apart and
// derives busy time from the delta.
func readCPULoadPercent() (float64, error) {
	idle0, total0, err := readCPUTicks()
	if err != nil {
		return 0, err
	}
	time.Sleep(time.Second)
	idle1, total1, err := readCPUTicks()
	if err != nil {
		return 0, err
	}

	totalDelta := total1 - total0
	if totalDelta == 0 {
		return 0, nil
	}
	idleDelta := idle1 - idle0
	return 100 * float64(totalDelta-idleDelta) / float64(totalDelta), nil
}

func readCPUTicks() (idle, total uint64, err error) {
	raw, err := os.ReadFile(procStatPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read cpu stats: %w", err)
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("read cpu stats: unexpected line %q", line)
	}
	for i, field := range fields[1:] {
		ticks, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("read cpu stats: %w", err)
		}
		total += ticks
		// Fields 4 and 5 are idle and iowait.
		if i == 3 || i == 4 {
			idle += ticks
		}
	}
	return idle, total, nil
}

func readMemoryUsagePercent() (float64, error) {
	raw, err := os.ReadFile(procMeminfoPath)
	if err != nil {
		return 0, fmt.Errorf("read memory stats: %w", err)
	}

	var total, available float64
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("read memory stats: MemTotal missing")
	}
	return 100 * (total - available) / total, nil
}

func readDiskUsagePercent() (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(diskUsagePath, &stat); err != nil {
		return 0, fmt.Errorf("read disk stats: %w", err)
	}
	total := float64(stat.Blocks) * float64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	free := float64(stat.Bavail) * float64(stat.Bsize)
	return 100 * (total - free) / total, nil
}

// readCPUTemperature returns 0 on hosts without a thermal zone.
func readCPUTemperature() float64 {
	raw, err := os.ReadFile(cpuTempPath)
	if err != nil {
		return 0
	}
	millis, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0
	}
	return millis / 1000
}
