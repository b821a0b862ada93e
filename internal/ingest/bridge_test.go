package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/homepulse/homepulse-core/internal/reading"
	"github.com/homepulse/homepulse-core/internal/registry"
)

// fakePublisher records published acks.
type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) lastAck(t *testing.T) ack {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatal("no ack published")
	}
	var a ack
	if err := json.Unmarshal(f.payloads[len(f.payloads)-1], &a); err != nil {
		t.Fatalf("unmarshalling ack: %v", err)
	}
	return a
}

func TestParseIngestTopic(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		wantKind reading.SourceKind
		wantID   string
		wantErr  bool
	}{
		{
			name:     "motion sensor",
			topic:    "homepulse/ingest/motion-sensor/aa:bb:cc:dd:ee:ff",
			wantKind: reading.SourceMotionSensor,
			wantID:   "aa:bb:cc:dd:ee:ff",
		},
		{
			name:     "cloud thermostat",
			topic:    "homepulse/ingest/cloud-thermostat/th-77821",
			wantKind: reading.SourceCloudThermostat,
			wantID:   "th-77821",
		},
		{
			name:    "unknown source kind",
			topic:   "homepulse/ingest/smart-plug/sp-1",
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			topic:   "other/ingest/motion-sensor/aa",
			wantErr: true,
		},
		{
			name:    "missing vendor id",
			topic:   "homepulse/ingest/motion-sensor/",
			wantErr: true,
		},
		{
			name:    "too few segments",
			topic:   "homepulse/ingest/motion-sensor",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id, err := parseIngestTopic(tt.topic)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseIngestTopic(%q) expected error", tt.topic)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseIngestTopic(%q) error = %v", tt.topic, err)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("parseIngestTopic(%q) = (%q, %q), want (%q, %q)",
					tt.topic, kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestDecodeEnvelope_Bare(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"temperature":21.5,"battery":90}`))
	if err != nil {
		t.Fatalf("decodeEnvelope() error = %v", err)
	}
	if env.Location != "" || env.Model != "" {
		t.Error("bare payload should have empty metadata")
	}
	if _, ok := env.Payload["temperature"]; !ok {
		t.Error("bare payload should become the raw payload")
	}
}

func TestDecodeEnvelope_Wrapped(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"location":"kitchen","model":"TH-2","payload":{"ambient_temperature_f":70}}`))
	if err != nil {
		t.Fatalf("decodeEnvelope() error = %v", err)
	}
	if env.Location != "kitchen" || env.Model != "TH-2" {
		t.Errorf("envelope metadata = (%q, %q)", env.Location, env.Model)
	}
	if _, ok := env.Payload["ambient_temperature_f"]; !ok {
		t.Error("envelope payload missing vendor fields")
	}
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	if _, err := decodeEnvelope([]byte(`not json`)); err == nil {
		t.Error("decodeEnvelope() expected error for invalid JSON")
	}
}

func TestBridge_HandleMessageAcksOutcome(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})
	pub := &fakePublisher{}
	bridge := NewBridge(context.Background(), svc, pub, 1)

	err := bridge.handleMessage(
		"homepulse/ingest/motion-sensor/aa:bb:cc",
		[]byte(`{"temperature":21.5}`),
	)
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	if len(store.readings) != 1 {
		t.Fatalf("stored readings = %d, want 1", len(store.readings))
	}

	a := pub.lastAck(t)
	if a.Outcome != "inserted" {
		t.Errorf("ack outcome = %q, want inserted", a.Outcome)
	}
	if a.DeviceID != "motion-sensor:aa:bb:cc" {
		t.Errorf("ack device id = %q", a.DeviceID)
	}

	wantTopic := "homepulse/ack/motion-sensor/aa:bb:cc"
	if pub.topics[len(pub.topics)-1] != wantTopic {
		t.Errorf("ack topic = %q, want %q", pub.topics[len(pub.topics)-1], wantTopic)
	}
}

func TestBridge_FirstSightPublishesRegistration(t *testing.T) {
	firstSeen := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	registrar := &fakeRegistrar{
		entry: &registry.Entry{
			DeviceID:   "motion-sensor:aa:bb:cc",
			SourceKind: reading.SourceMotionSensor,
			FirstSeen:  firstSeen,
			LastSeen:   firstSeen,
		},
	}
	svc := newTestService(&fakeStore{}, registrar)
	pub := &fakePublisher{}
	bridge := NewBridge(context.Background(), svc, pub, 1)

	err := bridge.handleMessage(
		"homepulse/ingest/motion-sensor/aa:bb:cc",
		[]byte(`{"temperature":21.5}`),
	)
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.topics) != 2 {
		t.Fatalf("publishes = %d, want registration event plus ack", len(pub.topics))
	}
	wantEvent := "homepulse/device/motion-sensor:aa:bb:cc/registered"
	if pub.topics[0] != wantEvent {
		t.Errorf("event topic = %q, want %q", pub.topics[0], wantEvent)
	}

	var event registrationEvent
	if err := json.Unmarshal(pub.payloads[0], &event); err != nil {
		t.Fatalf("unmarshalling event: %v", err)
	}
	if event.DeviceID != "motion-sensor:aa:bb:cc" || event.SourceKind != "motion-sensor" {
		t.Errorf("event = %+v", event)
	}
	if event.CorrelationID == "" {
		t.Error("event should carry the ingest correlation id")
	}
}

func TestBridge_HandleMessageRejectionAcked(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeRegistrar{})
	pub := &fakePublisher{}
	bridge := NewBridge(context.Background(), svc, pub, 1)

	err := bridge.handleMessage(
		"homepulse/ingest/motion-sensor/aa:bb:cc",
		[]byte(`{"battery":50}`),
	)
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	if len(store.readings) != 0 {
		t.Errorf("stored readings = %d, want 0", len(store.readings))
	}

	a := pub.lastAck(t)
	if a.Error == "" {
		t.Error("ack should carry the rejection error")
	}
}

func TestBridge_MalformedTopicIgnored(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeRegistrar{})
	pub := &fakePublisher{}
	bridge := NewBridge(context.Background(), svc, pub, 1)

	err := bridge.handleMessage("homepulse/other/x/y", []byte(`{}`))
	if err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.payloads) != 0 {
		t.Error("no ack should be published for an unrecognised topic")
	}
}
