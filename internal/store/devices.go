package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flxdot/carlos-sub000/internal/edge"
)

// DeviceOnlineThreshold is the maximum silence before a device counts
// as offline.
const DeviceOnlineThreshold = 5 * time.Minute

// Device is one registered edge device.
type Device struct {
	DeviceID     uuid.UUID
	DisplayName  string
	Description  sql.NullString
	RegisteredAt time.Time
	LastSeenAt   sql.NullTime
}

// Online reports whether the device checked in recently.
func (d Device) Online() bool {
	return d.LastSeenAt.Valid &&
		time.Since(d.LastSeenAt.Time) < DeviceOnlineThreshold
}

// DeviceDriver is one driver a device announced in its registration
// handshake.
type DeviceDriver struct {
	DeviceID             uuid.UUID
	DriverIdentifier     string
	Direction            edge.DriverDirection
	DriverModule         string
	DisplayName          string
	IsVisibleOnDashboard bool
}

// DeviceSignal is one signal of a device driver, carrying the
// server-side timeseries identity.
type DeviceSignal struct {
	TimeseriesID         int64
	DeviceID             uuid.UUID
	DriverIdentifier     string
	SignalIdentifier     string
	DisplayName          string
	UnitOfMeasurement    edge.UnitOfMeasurement
	IsVisibleOnDashboard bool
}

// DeviceStore manages the device registry tables.
type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// CreateDevice registers a new device and returns it with its
// generated id.
func (s *DeviceStore) CreateDevice(ctx context.Context, displayName, description string) (Device, error) {
	device := Device{DisplayName: displayName}
	if description != "" {
		device.Description = sql.NullString{String: description, Valid: true}
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO carlos.device (display_name, description)
		 VALUES ($1, $2) RETURNING device_id, registered_at`,
		displayName, device.Description,
	).Scan(&device.DeviceID, &device.RegisteredAt)
	if err != nil {
		return Device{}, fmt.Errorf("creating device: %w", err)
	}
	return device, nil
}

// GetDevice returns a device by id.
func (s *DeviceStore) GetDevice(ctx context.Context, deviceID uuid.UUID) (Device, error) {
	var device Device
	err := s.db.QueryRowContext(ctx,
		`SELECT device_id, display_name, description, registered_at, last_seen_at
		 FROM carlos.device WHERE device_id = $1`, deviceID,
	).Scan(&device.DeviceID, &device.DisplayName, &device.Description,
		&device.RegisteredAt, &device.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	if err != nil {
		return Device{}, fmt.Errorf("getting device: %w", err)
	}
	return device, nil
}

// ListDevices returns all registered devices ordered by display name.
func (s *DeviceStore) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, display_name, description, registered_at, last_seen_at
		 FROM carlos.device ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var device Device
		if err := rows.Scan(&device.DeviceID, &device.DisplayName, &device.Description,
			&device.RegisteredAt, &device.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// SetDeviceSeen stamps the device's last_seen_at with the current
// time. Called for every message a device sends.
func (s *DeviceStore) SetDeviceSeen(ctx context.Context, deviceID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE carlos.device SET last_seen_at = (now() AT TIME ZONE 'utc')
		 WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("updating device last seen: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating device last seen: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	return nil
}

// UpsertDriver stores or refreshes a driver announced by a device.
// The display name defaults to the identifier on first contact and is
// left alone afterwards so user edits survive re-registration.
func (s *DeviceStore) UpsertDriver(ctx context.Context, deviceID uuid.UUID, metadata edge.DriverMetadata) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO carlos.device_driver
		     (device_id, driver_identifier, direction, driver_module,
		      display_name, is_visible_on_dashboard)
		 VALUES ($1, $2, $3, $4, $2, true)
		 ON CONFLICT (device_id, driver_identifier)
		 DO UPDATE SET direction = EXCLUDED.direction,
		               driver_module = EXCLUDED.driver_module`,
		deviceID, metadata.Identifier, metadata.Direction, metadata.DriverModule)
	if err != nil {
		return fmt.Errorf("upserting device driver: %w", err)
	}
	return nil
}

// UpsertSignal stores or refreshes one signal of a driver and returns
// its server timeseries id.
func (s *DeviceStore) UpsertSignal(ctx context.Context, deviceID uuid.UUID, driverIdentifier string, signal edge.SignalDescriptor) (int64, error) {
	var timeseriesID int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO carlos.device_signal
		     (device_id, driver_identifier, signal_identifier,
		      display_name, unit_of_measurement, is_visible_on_dashboard)
		 VALUES ($1, $2, $3, $3, $4, true)
		 ON CONFLICT (device_id, driver_identifier, signal_identifier)
		 DO UPDATE SET unit_of_measurement = EXCLUDED.unit_of_measurement
		 RETURNING timeseries_id`,
		deviceID, driverIdentifier, signal.SignalIdentifier, signal.UnitOfMeasurement,
	).Scan(&timeseriesID)
	if err != nil {
		return 0, fmt.Errorf("upserting device signal: %w", err)
	}
	return timeseriesID, nil
}

// TimeseriesIndex returns the device's full signal identity map,
// driver identifier to signal identifier to timeseries id. This is
// the payload of the registration response.
func (s *DeviceStore) TimeseriesIndex(ctx context.Context, deviceID uuid.UUID) (map[string]map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT driver_identifier, signal_identifier, timeseries_id
		 FROM carlos.device_signal WHERE device_id = $1`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading timeseries index: %w", err)
	}
	defer rows.Close()

	index := make(map[string]map[string]int64)
	for rows.Next() {
		var (
			driverIdentifier string
			signalIdentifier string
			timeseriesID     int64
		)
		if err := rows.Scan(&driverIdentifier, &signalIdentifier, &timeseriesID); err != nil {
			return nil, fmt.Errorf("scanning timeseries index: %w", err)
		}
		if index[driverIdentifier] == nil {
			index[driverIdentifier] = make(map[string]int64)
		}
		index[driverIdentifier][signalIdentifier] = timeseriesID
	}
	return index, rows.Err()
}

// ListDrivers returns the drivers of a device.
func (s *DeviceStore) ListDrivers(ctx context.Context, deviceID uuid.UUID) ([]DeviceDriver, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, driver_identifier, direction, driver_module,
		        display_name, is_visible_on_dashboard
		 FROM carlos.device_driver WHERE device_id = $1
		 ORDER BY driver_identifier`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing device drivers: %w", err)
	}
	defer rows.Close()

	var drivers []DeviceDriver
	for rows.Next() {
		var d DeviceDriver
		if err := rows.Scan(&d.DeviceID, &d.DriverIdentifier, &d.Direction,
			&d.DriverModule, &d.DisplayName, &d.IsVisibleOnDashboard); err != nil {
			return nil, fmt.Errorf("scanning device driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// ListSignals returns the signals of one driver.
func (s *DeviceStore) ListSignals(ctx context.Context, deviceID uuid.UUID, driverIdentifier string) ([]DeviceSignal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timeseries_id, device_id, driver_identifier, signal_identifier,
		        display_name, unit_of_measurement, is_visible_on_dashboard
		 FROM carlos.device_signal
		 WHERE device_id = $1 AND driver_identifier = $2
		 ORDER BY signal_identifier`, deviceID, driverIdentifier)
	if err != nil {
		return nil, fmt.Errorf("listing device signals: %w", err)
	}
	defer rows.Close()

	var signals []DeviceSignal
	for rows.Next() {
		var s DeviceSignal
		if err := rows.Scan(&s.TimeseriesID, &s.DeviceID, &s.DriverIdentifier,
			&s.SignalIdentifier, &s.DisplayName, &s.UnitOfMeasurement,
			&s.IsVisibleOnDashboard); err != nil {
			return nil, fmt.Errorf("scanning device signal: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
