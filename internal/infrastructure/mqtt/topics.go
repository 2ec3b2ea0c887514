package mqtt

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// serverStatusTopic carries the server's own availability, including
	// the Last Will published by the broker on an unclean disconnect.
	serverStatusTopic = "carlos/server/status"

	deviceStatusTopicFormat = "carlos/devices/%s/status"
)

// deviceStatusTopic returns the status topic for one device.
func deviceStatusTopic(deviceID uuid.UUID) string {
	return fmt.Sprintf(deviceStatusTopicFormat, deviceID)
}

// statusPayload is the JSON body published on status topics.
func statusPayload(status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"timestamp":%q}`,
			status, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"reason":%q,"timestamp":%q}`,
		status, reason, time.Now().UTC().Format(time.RFC3339))
}
