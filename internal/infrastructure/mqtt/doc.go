// Package mqtt publishes device lifecycle events to an MQTT broker.
// Home automation consumers subscribe to carlos/devices/+/status to
// react to devices coming online or dropping off. The broker is
// optional; the server runs fine without it.
package mqtt
