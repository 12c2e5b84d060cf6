// Package telemetry publishes relay transitions and health snapshots over
// MQTT for external collaborators (dashboards, home automation). Delivery
// is fire-and-forget: the control loop never blocks on the broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Govanator12/smart-meeting-sign/internal/config"
	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher is an optional MQTT status publisher. A nil Publisher is valid
// and publishes nothing.
type Publisher struct {
	client    mqtt.Client
	topicBase string
}

// NewPublisher connects to the broker. Connection failure is non-fatal:
// paho reconnects in the background and publishes resume when the broker
// returns.
func NewPublisher(cfg config.MQTTConfig, clientID string) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		logger.Warn("mqtt broker not reachable yet, will keep retrying",
			"broker", cfg.BrokerURL,
			"error", token.Error())
	} else {
		logger.Info("mqtt telemetry connected", "broker", cfg.BrokerURL)
	}

	return &Publisher{
		client:    client,
		topicBase: cfg.TopicBase,
	}, nil
}

// PublishJSON publishes a JSON payload on topicBase/subtopic. Errors are
// logged, never returned: telemetry must not influence the control loop.
func (p *Publisher) PublishJSON(subtopic string, payload any, retained bool) {
	if p == nil || !p.client.IsConnectionOpen() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to marshal telemetry payload", "subtopic", subtopic, "error", err)
		return
	}

	topic := fmt.Sprintf("%s/%s", p.topicBase, subtopic)
	token := p.client.Publish(topic, 0, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		logger.Debug("telemetry publish timed out", "topic", topic)
	} else if token.Error() != nil {
		logger.Warn("telemetry publish failed", "topic", topic, "error", token.Error())
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(uint(publishTimeout.Milliseconds()))
}
