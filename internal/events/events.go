// Package events publishes marketplace events to an MQTT broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

// Publisher sends an event payload to a topic relative to the service prefix.
// Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

// TransactionTopic is the topic for a transaction entering status.
func TransactionTopic(status models.TransactionStatus) string {
	return "transactions/" + string(status)
}

// MessageTopic is the topic a recipient listens on for new messages.
func MessageTopic(recipientID string) string {
	return "messages/" + recipientID
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, interface{}) {}

// Client is the subset of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes JSON payloads with QoS 1.
type MQTTPublisher struct {
	client  Client
	prefix  string
	timeout time.Duration
}

// NewMQTTPublisher returns a publisher on client. Topics are joined to prefix.
func NewMQTTPublisher(client Client, prefix string) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.Trim(prefix, "/"),
		timeout: 5 * time.Second,
	}
}

// Topic returns the absolute topic for a relative one.
func (p *MQTTPublisher) Topic(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "/" + topic
}

// Publish implements Publisher. The payload is encoded and handed to the
// client before returning; the broker acknowledgement is awaited in the
// background so callers never block on it. Failures are logged.
func (p *MQTTPublisher) Publish(_ context.Context, topic string, payload interface{}) {
	full := p.Topic(topic)

	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("topic", full).Error("Failed to encode event")
		return
	}

	token := p.client.Publish(full, 1, false, body)
	go p.await(full, token)
}

func (p *MQTTPublisher) await(topic string, token mqtt.Token) {
	logger := log.WithField("topic", topic)
	if !token.WaitTimeout(p.timeout) {
		logger.Warn("Timed out publishing event")
		return
	}
	if err := token.Error(); err != nil {
		logger.WithError(err).Warn("Failed to publish event")
		return
	}
	logger.Debug("Event published")
}

// Connect dials broker and returns a connected client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}
