// Package edge defines the wire protocol shared by the Carlos server
// and the Carlos edge devices.
//
// It contains the message envelope and codec, the abstract protocol
// endpoint implemented by the websocket transports on both sides, the
// message dispatch loop (CommunicationHandler), and the driver
// metadata types exchanged during the registration handshake.
//
// The wire format is deliberately small: an ASCII message tag,
// optionally followed by a '|' separator and a JSON payload. Payload
// field names use short aliases (v, sid, d, ts) to keep frames small
// on constrained uplinks.
package edge
