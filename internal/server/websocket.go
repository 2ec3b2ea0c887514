package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/store"
)

// Websocket close codes for handshake failures. 4000-4999 is the range
// reserved for application use.
const (
	closeCodeInvalidToken  = 4003
	closeCodeUnknownDevice = 4004
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Devices are not browsers; the token carries the authentication.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWSToken answers GET /devices/{id}/ws/token. The caller
// authenticates with a bearer token; the response is the plain-text
// handshake token for the websocket endpoint.
func (s *Server) handleWSToken(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceIDFromRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeUnauthorized(w, "missing bearer token")
		return
	}
	if err := s.auth.VerifyBearer(bearer); err != nil {
		writeUnauthorized(w, "bearer token rejected")
		return
	}

	if _, err := s.devices.GetDevice(r.Context(), deviceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device for token", "device_id", deviceID, "error", err)
		writeInternalError(w, "issuing token failed")
		return
	}

	token, err := s.tokens.Issue(deviceID, clientHostname(r))
	if err != nil {
		s.logger.Error("issuing token", "device_id", deviceID, "error", err)
		writeInternalError(w, "issuing token failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte(token))
}

// handleWebsocket answers GET /devices/{id}/ws?token=... by verifying
// the handshake token, upgrading the connection, and serving the
// device until it disconnects.
//
// Token failures close with code 4003 and unknown devices with 4004,
// after the upgrade, because a plain HTTP error status is invisible to
// most websocket clients.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceIDFromRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "device_id", deviceID, "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	if err := s.tokens.Verify(token, deviceID, clientHostname(r)); err != nil {
		s.logger.Warn("websocket token rejected", "device_id", deviceID, "error", err)
		closeWithCode(conn, closeCodeInvalidToken, "Invalid token")
		return
	}

	if _, err := s.devices.GetDevice(r.Context(), deviceID); err != nil {
		s.logger.Warn("websocket for unknown device", "device_id", deviceID, "error", err)
		closeWithCode(conn, closeCodeUnknownDevice, "Unknown device")
		return
	}

	s.serveDevice(r, deviceID, conn)
}

// serveDevice registers the connection and runs the dispatch loop
// until the device disconnects. Runs on the HTTP handler goroutine;
// returning releases the connection.
func (s *Server) serveDevice(r *http.Request, deviceID uuid.UUID, conn *websocket.Conn) {
	endpoint := edge.NewWebsocketEndpoint(conn)

	if err := s.manager.Add(r.Context(), deviceID, endpoint); err != nil {
		s.logger.Error("registering device connection", "device_id", deviceID, "error", err)
		//nolint:errcheck // Connection is being torn down anyway
		endpoint.Disconnect()
		return
	}
	defer s.manager.Remove(deviceID, endpoint)

	handler := edge.NewCommunicationHandler(endpoint, deviceID.String())
	handler.SetLogger(s.logger)
	if err := handler.RegisterHandlers(s.deviceHandlers(deviceID)); err != nil {
		s.logger.Error("registering device handlers", "device_id", deviceID, "error", err)
		return
	}

	// Listen blocks this handler goroutine until the device
	// disconnects, which keeps the request context alive for the
	// lifetime of the connection.
	err := handler.Listen(r.Context())
	if err != nil && !errors.Is(err, edge.ErrDisconnected) {
		s.logger.Warn("device listener stopped", "device_id", deviceID, "error", err)
	}
}

// closeWithCode sends a close frame with an application close code and
// closes the connection.
func closeWithCode(conn *websocket.Conn, code int, reason string) {
	//nolint:errcheck // Best-effort close frame; the peer may be gone
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	//nolint:errcheck // Nothing to do about a failed close
	conn.Close()
}

// clientHostname identifies the connecting host for token binding.
// The X-Client-Hostname header takes precedence so devices behind NAT
// can present a stable identity; the remote address is the fallback.
func clientHostname(r *http.Request) string {
	if host := r.Header.Get("X-Client-Hostname"); host != "" {
		return host
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
