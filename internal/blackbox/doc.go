// Package blackbox is the device-local durable buffer. Every sensor
// reading lands here first and survives restarts and network outages
// until the server has acknowledged it.
//
// The store holds three tables: timeseries_index maps each
// (driver, signal) pair to a local id and optionally to the server's
// timeseries id, timeseries_data holds the buffered samples, and
// api_token caches the current server API token.
//
// Delivery is at-least-once: Stage tags a page of eligible samples
// with a staging id, the runtime sends the page, and Confirm deletes
// the rows once the server acknowledges the staging id. Rows whose
// staging went stale become eligible again after thirty minutes.
package blackbox
