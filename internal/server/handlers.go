package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flxdot/carlos-sub000/internal/edge"
)

// deviceHandlers builds the message handlers for one device
// connection. Every handler stamps the device's last-seen time first,
// so liveness tracking works no matter which message types a device
// actually sends.
func (s *Server) deviceHandlers(deviceID uuid.UUID) map[edge.MessageType]edge.HandlerFunc {
	handlers := map[edge.MessageType]edge.HandlerFunc{
		edge.MessageTypeDeviceConfig: s.handleDeviceConfig(deviceID),
		edge.MessageTypeDeviceData:   s.handleDeviceData(deviceID),
		// Re-register the built-ins so they get the last-seen stamp too.
		edge.MessageTypePing: func(ctx context.Context, p edge.Protocol, _ edge.Message) error {
			return p.Send(ctx, edge.Message{Type: edge.MessageTypePong})
		},
		edge.MessageTypePong: func(context.Context, edge.Protocol, edge.Message) error {
			return nil
		},
	}

	for messageType, handler := range handlers {
		handlers[messageType] = s.withDeviceSeen(deviceID, handler)
	}
	return handlers
}

// withDeviceSeen stamps last_seen_at before dispatching. A failed
// stamp is logged but does not block the message.
func (s *Server) withDeviceSeen(deviceID uuid.UUID, next edge.HandlerFunc) edge.HandlerFunc {
	return func(ctx context.Context, p edge.Protocol, msg edge.Message) error {
		if err := s.devices.SetDeviceSeen(ctx, deviceID); err != nil {
			s.logger.Warn("stamping device last seen", "device_id", deviceID, "error", err)
		}
		return next(ctx, p, msg)
	}
}

// handleDeviceConfig registers the drivers and signals a device
// announces and answers with the full signal identity map. The device
// uses the response to fill in the server timeseries ids its local
// buffer is missing.
func (s *Server) handleDeviceConfig(deviceID uuid.UUID) edge.HandlerFunc {
	return func(ctx context.Context, p edge.Protocol, msg edge.Message) error {
		payload, ok := msg.Payload.(*edge.DeviceConfigPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", msg.Payload)
		}

		for _, driver := range payload.Drivers {
			if err := s.devices.UpsertDriver(ctx, deviceID, driver); err != nil {
				return err
			}
			for _, signal := range driver.Signals {
				if _, err := s.devices.UpsertSignal(ctx, deviceID, driver.Identifier, signal); err != nil {
					return err
				}
			}
		}

		index, err := s.devices.TimeseriesIndex(ctx, deviceID)
		if err != nil {
			return err
		}

		s.logger.Info("device registered",
			"device_id", deviceID, "drivers", len(payload.Drivers))
		return p.Send(ctx, edge.Message{
			Type:    edge.MessageTypeDeviceConfigResponse,
			Payload: &edge.DeviceConfigResponsePayload{TimeseriesIndex: index},
		})
	}
}

// handleDeviceData persists a staged batch and acknowledges it. The
// ack is only sent once every series in the batch is stored; on
// failure the device re-stages the batch after the staleness timeout
// and the idempotent upsert absorbs the duplicates.
func (s *Server) handleDeviceData(deviceID uuid.UUID) edge.HandlerFunc {
	return func(ctx context.Context, p edge.Protocol, msg edge.Message) error {
		payload, ok := msg.Payload.(*edge.DeviceDataPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", msg.Payload)
		}

		samples := 0
		for timeseriesID, series := range payload.Data {
			timestamps := make([]time.Time, len(series.TimestampsUTC))
			for i, ts := range series.TimestampsUTC {
				timestamps[i] = time.Unix(ts, 0).UTC()
			}
			if err := s.timeseries.AddTimeseries(ctx, timeseriesID, timestamps, series.Values); err != nil {
				return fmt.Errorf("storing batch %s: %w", payload.StagingID, err)
			}
			if s.ingest != nil {
				for i, value := range series.Values {
					s.ingest.WriteSample(deviceID, timeseriesID, value, timestamps[i])
				}
			}
			samples += len(series.Values)
		}

		s.logger.Debug("stored device data",
			"device_id", deviceID, "staging_id", payload.StagingID, "samples", samples)
		return p.Send(ctx, edge.Message{
			Type:    edge.MessageTypeDeviceDataAck,
			Payload: &edge.DeviceDataAckPayload{StagingID: payload.StagingID},
		})
	}
}
