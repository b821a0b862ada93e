package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading mirrors a stored reading into the time-series bucket.
//
// SQLite remains the source of truth; the mirror exists for dashboarding
// and long-range trend queries. The write is non-blocking: data is
// batched and sent asynchronously, and a mirror failure never affects
// the committed SQLite row.
//
// Parameters:
//   - deviceID: Composite device identity ("<source_kind>:<vendor_id>")
//   - sourceKind: Device ecosystem tag
//   - location: Display location at insertion time
//   - timestamp: The reading's collection timestamp
//   - fields: Numeric measurements (value_celsius plus secondaries)
//   - anomalous: Whether the reading was flagged out of range
//
// Example:
//
//	client.WriteReading("cloud-thermostat:th-1", "cloud-thermostat",
//	    "living room", ts, map[string]interface{}{"value_celsius": 21.5}, false)
func (c *Client) WriteReading(deviceID, sourceKind, location string, timestamp time.Time, fields map[string]interface{}, anomalous bool) {
	if !c.IsConnected() {
		return
	}
	if len(fields) == 0 {
		return
	}

	anomalyTag := "false"
	if anomalous {
		anomalyTag = "true"
	}

	point := write.NewPoint(
		"readings",
		map[string]string{
			"device_id":   deviceID,
			"source_kind": sourceKind,
			"location":    location,
			"anomalous":   anomalyTag,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}
