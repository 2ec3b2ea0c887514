// Package builtin ships the driver implementations bundled with the
// device runtime: device metrics, DHT11/DHT22 and SHT30 climate
// sensors, the SI1145 light sensor, and a GPIO relay.
//
// Importing the package registers every driver in the default
// registry. Hardware access goes through the Pin and I2CBus
// interfaces whose constructors are package variables, so tests swap
// in fakes without touching /dev or /sys.
package builtin
