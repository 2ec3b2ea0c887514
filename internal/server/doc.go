// Package server provides the ingestion side of the device link: the
// HTTP API, the websocket endpoint devices connect to, the short-lived
// handshake token service and the connection manager that tracks which
// devices are online.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	srv, err := server.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package server
