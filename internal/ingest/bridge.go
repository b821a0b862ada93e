package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/homepulse/homepulse-core/internal/infrastructure/mqtt"
	"github.com/homepulse/homepulse-core/internal/reading"
)

// ingestTopicParts is the expected segment count of an ingest topic:
// homepulse/ingest/{source_kind}/{vendor_id}.
const ingestTopicParts = 4

// envelope is the optional wrapper collectors may publish. When the
// "payload" key is absent the whole document is treated as the raw
// vendor payload and the metadata fields default to empty.
type envelope struct {
	Location        string             `json:"location,omitempty"`
	Model           string             `json:"model,omitempty"`
	VendorUpdatedAt *time.Time         `json:"vendor_updated_at,omitempty"`
	Payload         reading.RawPayload `json:"payload,omitempty"`
}

// ack is the message published after each ingest attempt.
type ack struct {
	Result
	Error string `json:"error,omitempty"`
}

// registrationEvent announces a device's first sight to interested
// subscribers (dashboards, operator tooling).
type registrationEvent struct {
	DeviceID      string `json:"device_id"`
	SourceKind    string `json:"source_kind"`
	CorrelationID string `json:"correlation_id"`
}

// Publisher publishes ack messages. Implemented by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Subscriber registers ingest handlers. Implemented by mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Bridge connects remote collectors to the ingest Service over MQTT.
//
// Collectors publish raw vendor payloads (optionally wrapped in an
// envelope carrying device metadata) to:
//
//	homepulse/ingest/{source_kind}/{vendor_id}
//
// The bridge runs the pipeline and acknowledges the outcome on:
//
//	homepulse/ack/{source_kind}/{vendor_id}
//
// A rejected payload is acked with an error and dropped; the collector's
// cycle is never blocked by a bad reading.
type Bridge struct {
	service *Service
	qos     byte
	logger  Logger

	pub Publisher

	// baseCtx bounds pipeline work started by broker callbacks.
	baseCtx context.Context
}

// NewBridge creates a Bridge over an existing service and MQTT client.
//
// Parameters:
//   - ctx: Bounds pipeline work for received messages
//   - service: The shared ingest pipeline
//   - pub: Ack publisher (normally the same mqtt.Client as the subscriber)
//   - qos: QoS level for subscriptions and acks
func NewBridge(ctx context.Context, service *Service, pub Publisher, qos byte) *Bridge {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Bridge{
		service: service,
		pub:     pub,
		qos:     qos,
		baseCtx: ctx,
	}
}

// SetLogger sets an optional logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to every collector ingest topic.
//
// Returns:
//   - error: If the subscription cannot be established
func (b *Bridge) Start(sub Subscriber) error {
	topic := mqtt.Topics{}.AllIngest()
	if err := sub.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribing to ingest topics: %w", err)
	}
	if b.logger != nil {
		b.logger.Info("ingest bridge listening", "topic", topic)
	}
	return nil
}

// handleMessage processes one collector publish. Always returns nil:
// per-payload failures are acked and logged, never bounced back to the
// MQTT client as handler errors.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	kind, vendorID, err := parseIngestTopic(topic)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("ignoring message on malformed ingest topic",
				"topic", topic, "error", err)
		}
		return nil
	}

	env, err := decodeEnvelope(payload)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("ignoring undecodable ingest payload",
				"topic", topic, "error", err)
		}
		b.publishAck(kind, vendorID, ack{Error: "undecodable payload"})
		return nil
	}

	meta := reading.DeviceMetadata{
		VendorID:        vendorID,
		Location:        env.Location,
		Model:           env.Model,
		VendorUpdatedAt: env.VendorUpdatedAt,
	}

	result, err := b.service.Ingest(b.baseCtx, kind, meta, env.Payload)
	if err != nil {
		b.publishAck(kind, vendorID, ack{Error: err.Error()})
		return nil
	}

	if result.Registered {
		b.publishRegistration(kind, result)
	}
	b.publishAck(kind, vendorID, ack{Result: *result})
	return nil
}

// publishRegistration announces an auto-registered device. Best-effort,
// like acks: the registry entry exists whether or not anyone hears.
func (b *Bridge) publishRegistration(kind reading.SourceKind, result *Result) {
	if b.pub == nil {
		return
	}

	data, err := json.Marshal(registrationEvent{
		DeviceID:      result.DeviceID,
		SourceKind:    string(kind),
		CorrelationID: result.CorrelationID,
	})
	if err != nil {
		return
	}

	topic := mqtt.Topics{}.DeviceRegistered(result.DeviceID)
	if err := b.pub.Publish(topic, data, b.qos, false); err != nil {
		if b.logger != nil {
			b.logger.Warn("registration event publish failed", "topic", topic, "error", err)
		}
	}
}

// publishAck reports an ingest outcome back to the collector. Ack
// delivery is best-effort: the reading is already committed (or
// rejected) regardless.
func (b *Bridge) publishAck(kind reading.SourceKind, vendorID string, a ack) {
	if b.pub == nil {
		return
	}

	data, err := json.Marshal(a)
	if err != nil {
		return
	}

	topic := mqtt.Topics{}.IngestAck(string(kind), vendorID)
	if err := b.pub.Publish(topic, data, b.qos, false); err != nil {
		if b.logger != nil {
			b.logger.Warn("ack publish failed", "topic", topic, "error", err)
		}
	}
}

// parseIngestTopic extracts the source kind and vendor id from an ingest
// topic. Vendor ids may themselves contain slashes-free separators like
// colons; only the four-segment shape is enforced.
func parseIngestTopic(topic string) (reading.SourceKind, string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != ingestTopicParts || parts[0] != mqtt.TopicPrefix || parts[1] != "ingest" {
		return "", "", fmt.Errorf("topic %q does not match %s/ingest/{source_kind}/{vendor_id}", topic, mqtt.TopicPrefix)
	}

	kind := reading.SourceKind(parts[2])
	if !kind.Valid() {
		return "", "", fmt.Errorf("unknown source kind %q in topic %q", parts[2], topic)
	}
	if parts[3] == "" {
		return "", "", fmt.Errorf("empty vendor id in topic %q", topic)
	}
	return kind, parts[3], nil
}

// decodeEnvelope parses a collector publish. A document with a "payload"
// key is an envelope; anything else is treated as the bare vendor payload.
func decodeEnvelope(data []byte) (*envelope, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	if _, ok := doc["payload"]; ok {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parsing envelope: %w", err)
		}
		return &env, nil
	}

	var raw reading.RawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}
	return &envelope{Payload: raw}, nil
}
