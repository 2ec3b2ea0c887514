package device

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/mod/semver"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

// Updater replaces the running edge software with the announced
// version. The runtime only makes the decision; how the binary is
// swapped is the deployment's business.
type Updater interface {
	Update(version string) error
}

// deviceHandlers bundles the device-side message handlers and the
// state they share.
type deviceHandlers struct {
	box     *blackbox.Blackbox
	logger  *logging.Logger
	version string
	updater Updater

	updateRequested atomic.Bool

	// onUpdate is invoked once when an update is requested. The
	// runtime uses it to stop the dispatch loop.
	onUpdate func()
}

func newDeviceHandlers(box *blackbox.Blackbox, logger *logging.Logger, version string, updater Updater) *deviceHandlers {
	return &deviceHandlers{
		box:     box,
		logger:  logger,
		version: version,
		updater: updater,
	}
}

// handlers returns the handler map for registration.
func (h *deviceHandlers) handlers() map[edge.MessageType]edge.HandlerFunc {
	return map[edge.MessageType]edge.HandlerFunc{
		edge.MessageTypeEdgeVersion:          h.handleEdgeVersion,
		edge.MessageTypeDeviceConfigResponse: h.handleDeviceConfigResponse,
		edge.MessageTypeDeviceDataAck:        h.handleDeviceDataAck,
	}
}

// handleEdgeVersion compares the server's announced edge version with
// our own and triggers the updater on a strictly newer one.
func (h *deviceHandlers) handleEdgeVersion(_ context.Context, _ edge.Protocol, msg edge.Message) error {
	payload, ok := msg.Payload.(*edge.EdgeVersionPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}

	announced := "v" + payload.Version
	current := "v" + h.version
	if !semver.IsValid(announced) {
		return fmt.Errorf("server announced invalid version %q", payload.Version)
	}

	if semver.Compare(announced, current) <= 0 {
		h.logger.Debug("edge version up to date",
			"current", h.version, "announced", payload.Version)
		return nil
	}

	h.logger.Info("newer edge version announced",
		"current", h.version, "announced", payload.Version)
	if !h.updateRequested.Swap(true) && h.onUpdate != nil {
		h.onUpdate()
	}
	if h.updater != nil {
		if err := h.updater.Update(payload.Version); err != nil {
			return fmt.Errorf("updating to %s: %w", payload.Version, err)
		}
	}
	return nil
}

// handleDeviceConfigResponse reconciles the local index with the
// server's signal identity map, unlocking staging for the mapped
// samples.
func (h *deviceHandlers) handleDeviceConfigResponse(ctx context.Context, _ edge.Protocol, msg edge.Message) error {
	payload, ok := msg.Payload.(*edge.DeviceConfigResponsePayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}

	if err := h.box.ReconcileServerMapping(ctx, payload.TimeseriesIndex); err != nil {
		return err
	}
	h.logger.Info("server timeseries mapping reconciled",
		"drivers", len(payload.TimeseriesIndex))
	return nil
}

// handleDeviceDataAck deletes the acknowledged batch from the buffer.
func (h *deviceHandlers) handleDeviceDataAck(ctx context.Context, _ edge.Protocol, msg edge.Message) error {
	payload, ok := msg.Payload.(*edge.DeviceDataAckPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}
	return h.box.Confirm(ctx, payload.StagingID)
}
