// Package mqtt provides MQTT client connectivity for Homepulse Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the optional transport between per-source collector processes
// and the ingest service. Collectors publish raw vendor payloads to
// ingest topics; the service normalizes, validates, and stores them, then
// acknowledges the insert outcome on the ack topic.
//
//	Collectors → MQTT Broker → Ingest Service → SQLite
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to every collector ingest topic
//	err = client.Subscribe(mqtt.Topics{}.AllIngest(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Acknowledge an insert outcome
//	topic := mqtt.Topics{}.IngestAck("motion-sensor", "aa:bb:cc")
//	client.Publish(topic, []byte(`{"outcome":"stored"}`), 1, false)
package mqtt
