// Package livefeed is the gateway's optional internal ops channel: a
// fire-and-forget, publish-only MQTT client that mirrors every
// accepted record to an operations topic the instant it lands, rather
// than on a polling ticker, since the gateway already knows exactly
// when a new record arrives.
//
// This is distinct from the HTTP read surface's non-goal of real-time
// client push: livefeed is disabled by default, addressed only by
// operators who configure LIVEFEED_MQTT_BROKER, and never reachable
// from a device connection or an HTTP client.
package livefeed

import (
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

const DefaultClientID = "telematics-gateway"

// Config carries the broker connection details. An empty Broker means
// the live feed is disabled.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// Publisher publishes normalized records to MQTT. The zero value (or a
// Config with an empty Broker) is a harmless no-op, so callers can
// always construct one and pass it to session.Handler unconditionally.
type Publisher struct {
	topic  string
	client mqtt.Client
}

// New connects to cfg.Broker and returns a ready Publisher, or nil if
// cfg.Broker is empty (the feed is disabled). Connection errors are
// logged and degrade to a no-op Publisher rather than failing startup,
// since the live feed is an ops convenience, not load-bearing.
func New(cfg Config) *Publisher {
	if cfg.Broker == "" {
		return nil
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("livefeed: connection to %s lost: %v", cfg.Broker, err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("livefeed: could not connect to %s, feed disabled: %v", cfg.Broker, token.Error())
		return nil
	}

	return &Publisher{topic: cfg.Topic, client: client}
}

// Notify implements session.StateNotifier. It never blocks the caller
// on network I/O beyond handing the payload to the client library's own
// internal queue, and never returns an error: a dropped live-feed
// message does not affect ingestion.
func (p *Publisher) Notify(rec model.Record) {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("livefeed: could not marshal record for imei=%s: %v", rec.IMEI, err)
		return
	}
	token := p.client.Publish(p.topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("livefeed: publish failed for imei=%s: %v", rec.IMEI, token.Error())
		}
	}()
}

// Close disconnects cleanly. Safe to call on a nil Publisher.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
