package mqtt

import "fmt"

// Topic prefixes for the Homepulse MQTT surface.
//
// All topics use the flat scheme: homepulse/{category}/{source_kind}/{vendor_id}
const (
	// TopicPrefix is the base for all Homepulse topics.
	TopicPrefix = "homepulse"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "homepulse/system"
)

// Topics provides builders for Homepulse MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Ingest("motion-sensor", "aa:bb:cc:dd:ee:ff")
//	// Returns: "homepulse/ingest/motion-sensor/aa:bb:cc:dd:ee:ff"
type Topics struct{}

// Ingest returns the topic a collector publishes raw vendor payloads to.
//
// Example: homepulse/ingest/cloud-thermostat/th-77821
func (Topics) Ingest(sourceKind, vendorID string) string {
	return fmt.Sprintf("%s/ingest/%s/%s", TopicPrefix, sourceKind, vendorID)
}

// IngestAck returns the topic the ingest service acknowledges on.
// The ack payload carries the insert outcome (stored or duplicate).
//
// Example: homepulse/ack/cloud-thermostat/th-77821
func (Topics) IngestAck(sourceKind, vendorID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, sourceKind, vendorID)
}

// DeviceRegistered returns the topic for device auto-registration events.
//
// Example: homepulse/device/motion-sensor:aa:bb:cc/registered
func (Topics) DeviceRegistered(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/registered", TopicPrefix, deviceID)
}

// SystemStatus returns the system status topic used for LWT and
// online/offline announcements.
//
// Example: homepulse/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllIngest returns a pattern matching every collector ingest topic.
//
// Pattern: homepulse/ingest/+/+
func (Topics) AllIngest() string {
	return fmt.Sprintf("%s/ingest/+/+", TopicPrefix)
}

// IngestForKind returns a pattern matching every ingest topic for one
// source kind.
//
// Pattern: homepulse/ingest/{source_kind}/+
func (Topics) IngestForKind(sourceKind string) string {
	return fmt.Sprintf("%s/ingest/%s/+", TopicPrefix, sourceKind)
}

// AllTopics returns a pattern matching all Homepulse topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: homepulse/#
func (Topics) AllTopics() string {
	return "homepulse/#"
}
