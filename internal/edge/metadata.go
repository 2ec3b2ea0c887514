package edge

import "fmt"

// DriverDirection describes the data direction of a driver.
type DriverDirection string

const (
	DirectionInput         DriverDirection = "input"
	DirectionOutput        DriverDirection = "output"
	DirectionBidirectional DriverDirection = "bidirectional"
)

// Valid reports whether the direction is one of the known values.
func (d DriverDirection) Valid() bool {
	switch d {
	case DirectionInput, DirectionOutput, DirectionBidirectional:
		return true
	}
	return false
}

// PhysicalQuantity is the physical quantity measured by a signal.
type PhysicalQuantity int

const (
	QuantityIdentity    PhysicalQuantity = 0
	QuantityTemperature PhysicalQuantity = 1
	QuantityHumidity    PhysicalQuantity = 2
	QuantityIlluminance PhysicalQuantity = 3
	QuantityRatio       PhysicalQuantity = 4
)

// UnitOfMeasurement enumerates the supported units. The numeric code
// encodes the physical quantity as code / 100.
type UnitOfMeasurement int

const (
	UnitLess UnitOfMeasurement = 0

	UnitPercentage UnitOfMeasurement = 100

	UnitCelsius    UnitOfMeasurement = 200
	UnitFahrenheit UnitOfMeasurement = 201

	UnitHumidityPercentage UnitOfMeasurement = 300

	UnitLux UnitOfMeasurement = 400
)

// PhysicalQuantity returns the physical quantity of the unit.
func (u UnitOfMeasurement) PhysicalQuantity() PhysicalQuantity {
	return PhysicalQuantity(int(u) / 100)
}

// String returns a human readable unit symbol.
func (u UnitOfMeasurement) String() string {
	switch u {
	case UnitLess:
		return ""
	case UnitPercentage, UnitHumidityPercentage:
		return "%"
	case UnitCelsius:
		return "°C"
	case UnitFahrenheit:
		return "°F"
	case UnitLux:
		return "lx"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// SignalDescriptor describes a single signal exposed by a driver.
type SignalDescriptor struct {
	SignalIdentifier  string            `json:"signal_identifier"`
	UnitOfMeasurement UnitOfMeasurement `json:"unit_of_measurement"`
}

// DriverMetadata describes a configured driver. It is exchanged in the
// DEVICE_CONFIG handshake so the server can register the device's
// drivers and signals.
type DriverMetadata struct {
	Identifier   string             `json:"identifier"`
	Direction    DriverDirection    `json:"direction"`
	DriverModule string             `json:"driver_module"`
	Signals      []SignalDescriptor `json:"signals"`
}
