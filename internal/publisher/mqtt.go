// Package publisher pushes each recorded daily total to an MQTT broker so
// home dashboards can chart it.
package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shopspring/decimal"
)

const defaultTopicPrefix = "wallet_telemetry"

// Config selects the broker. An empty Broker disables publishing.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Payload is the retained message published under <prefix>/daily_total.
type Payload struct {
	Date      string          `json:"date"`
	Total     decimal.Decimal `json:"total"`
	Symbol    string          `json:"symbol"`
	Wallets   int             `json:"wallets"`
	RunID     string          `json:"run_id,omitempty"`
	Published time.Time       `json:"published_at"`
}

// Publisher sends daily totals to MQTT.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	publish     func(topic string, payload []byte) error
}

// New connects to the broker.
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	opts := mqtt.NewClientOptions()
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts.AddBroker(broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "wallet-telemetry"
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(15*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	p := &Publisher{client: client, topicPrefix: topicPrefix(cfg.TopicPrefix)}
	p.publish = func(topic string, payload []byte) error {
		token := client.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("publish %s: timed out", topic)
		}
		return token.Error()
	}
	return p, nil
}

func topicPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return defaultTopicPrefix
	}
	return prefix
}

// Topic returns the daily total topic.
func (p *Publisher) Topic() string {
	return p.topicPrefix + "/daily_total"
}

// PublishDailyTotal publishes a retained daily total.
func (p *Publisher) PublishDailyTotal(payload Payload) error {
	if payload.Published.IsZero() {
		payload.Published = time.Now().UTC()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := p.publish(p.Topic(), body); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects from the MQTT broker.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
