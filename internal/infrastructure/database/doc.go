// Package database manages the server's Postgres connection: pool
// configuration, health checks and embedded schema migrations.
//
// Postgres is required rather than optional because the timeseries
// table relies on native range partitioning, which the ingest path
// extends on demand.
package database
