// Package device implements the edge-side runtime: it loads the device
// configuration, samples the configured drivers, buffers readings in
// the blackbox, and ships staged batches to the server over an
// authenticated websocket.
//
// The runtime reconnects forever with exponential backoff; the only
// regular exit is the server announcing a newer edge version, which
// hands control to the configured updater.
package device
