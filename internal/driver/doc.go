// Package driver defines the device driver model: typed configuration
// for GPIO and I2C peripherals, the driver capability interfaces, a
// process-wide module registry and device-level address-space
// validation.
//
// Driver implementations live in the builtin subpackage and register
// themselves at init time. Building a driver from raw configuration
// resolves the driver_module key against the registry, decodes the raw
// mapping into the module's typed config and invokes its constructor.
package driver
