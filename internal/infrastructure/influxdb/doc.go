// Package influxdb mirrors accepted device samples into an InfluxDB
// v2 bucket. The relational store stays the source of truth; the
// mirror only serves ad-hoc dashboards, so writes are non-blocking and
// a lost point is never an ingestion failure.
package influxdb
