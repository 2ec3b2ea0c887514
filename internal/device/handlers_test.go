package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

type recordingUpdater struct {
	versions []string
}

func (u *recordingUpdater) Update(version string) error {
	u.versions = append(u.versions, version)
	return nil
}

func newTestBlackbox(t *testing.T) (*blackbox.Blackbox, *sql.DB) {
	t.Helper()
	db, err := blackbox.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return blackbox.New(db, logging.Default()), db
}

func TestHandleEdgeVersion(t *testing.T) {
	tests := []struct {
		name       string
		current    string
		announced  string
		wantUpdate bool
	}{
		{name: "older announced", current: "1.4.0", announced: "1.3.9", wantUpdate: false},
		{name: "same version", current: "1.4.0", announced: "1.4.0", wantUpdate: false},
		{name: "newer patch", current: "1.4.0", announced: "1.4.1", wantUpdate: true},
		{name: "newer major", current: "1.4.0", announced: "2.0.0", wantUpdate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, _ := newTestBlackbox(t)
			updater := &recordingUpdater{}
			handlers := newDeviceHandlers(box, logging.Default(), tt.current, updater)

			stopped := false
			handlers.onUpdate = func() { stopped = true }

			msg := edge.Message{
				Type:    edge.MessageTypeEdgeVersion,
				Payload: &edge.EdgeVersionPayload{Version: tt.announced},
			}
			if err := handlers.handleEdgeVersion(context.Background(), nil, msg); err != nil {
				t.Fatalf("handleEdgeVersion() error = %v", err)
			}

			if handlers.updateRequested.Load() != tt.wantUpdate {
				t.Errorf("updateRequested = %v, want %v",
					handlers.updateRequested.Load(), tt.wantUpdate)
			}
			if stopped != tt.wantUpdate {
				t.Errorf("onUpdate fired = %v, want %v", stopped, tt.wantUpdate)
			}
			if tt.wantUpdate && (len(updater.versions) != 1 || updater.versions[0] != tt.announced) {
				t.Errorf("updater.versions = %v, want [%s]", updater.versions, tt.announced)
			}
		})
	}

	t.Run("invalid version rejected", func(t *testing.T) {
		box, _ := newTestBlackbox(t)
		handlers := newDeviceHandlers(box, logging.Default(), "1.0.0", nil)

		msg := edge.Message{
			Type:    edge.MessageTypeEdgeVersion,
			Payload: &edge.EdgeVersionPayload{Version: "not-a-version"},
		}
		if err := handlers.handleEdgeVersion(context.Background(), nil, msg); err == nil {
			t.Fatal("handleEdgeVersion() expected error for invalid version")
		}
	})
}

func TestHandleDeviceConfigResponse(t *testing.T) {
	box, db := newTestBlackbox(t)
	handlers := newDeviceHandlers(box, logging.Default(), "1.0.0", nil)
	ctx := context.Background()

	if err := box.Record(ctx, "sht30-1", time.Now(), map[string]float64{"temperature": 21.5}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	msg := edge.Message{
		Type: edge.MessageTypeDeviceConfigResponse,
		Payload: &edge.DeviceConfigResponsePayload{
			TimeseriesIndex: map[string]map[string]int64{
				"sht30-1": {"temperature": 42},
			},
		},
	}
	if err := handlers.handleDeviceConfigResponse(ctx, nil, msg); err != nil {
		t.Fatalf("handleDeviceConfigResponse() error = %v", err)
	}

	entries, err := blackbox.FindIndex(ctx, db, "sht30-1", "temperature")
	if err != nil {
		t.Fatalf("FindIndex() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].ServerTimeseriesID.Valid ||
		entries[0].ServerTimeseriesID.Int64 != 42 {
		t.Errorf("index entries = %+v, want server id 42", entries)
	}
}

func TestHandleDeviceDataAck(t *testing.T) {
	box, db := newTestBlackbox(t)
	handlers := newDeviceHandlers(box, logging.Default(), "1.0.0", nil)
	ctx := context.Background()

	if err := box.Record(ctx, "sht30-1", time.Now(), map[string]float64{"temperature": 21.5}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := box.ReconcileServerMapping(ctx, map[string]map[string]int64{
		"sht30-1": {"temperature": 42},
	}); err != nil {
		t.Fatalf("ReconcileServerMapping() error = %v", err)
	}

	payload, err := box.Stage(ctx, 0)
	if err != nil || payload == nil {
		t.Fatalf("Stage() = %v, %v, want a batch", payload, err)
	}

	msg := edge.Message{
		Type:    edge.MessageTypeDeviceDataAck,
		Payload: &edge.DeviceDataAckPayload{StagingID: payload.StagingID},
	}
	if err := handlers.handleDeviceDataAck(ctx, nil, msg); err != nil {
		t.Fatalf("handleDeviceDataAck() error = %v", err)
	}

	var remaining int
	if err := db.QueryRow(`SELECT count(*) FROM timeseries_data`).Scan(&remaining); err != nil {
		t.Fatalf("counting samples: %v", err)
	}
	if remaining != 0 {
		t.Errorf("samples remaining after ack = %d, want 0", remaining)
	}
}
