// Package store is the server-side persistence layer on Postgres. It
// owns the device registry tables (device, device_driver,
// device_signal) and the range-partitioned timeseries table, including
// the on-demand creation of partitions from the ingest path.
package store
