// Package mqttpub publishes engine events to an MQTT broker as JSON.
package mqttpub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/viant/triage/telemetry"
)

// Config defines broker connection and topic settings.
type Config struct {
	Broker       string        `json:"broker" yaml:"broker"`
	ClientID     string        `json:"clientID" yaml:"clientID"`
	Username     string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty"`
	TopicPrefix  string        `json:"topicPrefix" yaml:"topicPrefix"`
	QoS          byte          `json:"qos" yaml:"qos"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	// Kinds restricts publishing to the listed event kinds; empty means all.
	Kinds []telemetry.Kind `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

// Client is the publishing subset of mqtt.Client.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Listener publishes events on <prefix>/<kind>.
type Listener struct {
	client  Client
	config  Config
	kinds   map[telemetry.Kind]bool
	onError func(error)
}

// Option customises a Listener.
type Option func(l *Listener)

// WithErrorHandler sets the callback receiving publish failures.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Listener) { l.onError = fn }
}

// New creates a listener on an already connected client.
func New(client Client, config Config, options ...Option) *Listener {
	if config.TopicPrefix == "" {
		config.TopicPrefix = "triage/events"
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second
	}
	ret := &Listener{client: client, config: config}
	if len(config.Kinds) > 0 {
		ret.kinds = make(map[telemetry.Kind]bool, len(config.Kinds))
		for _, k := range config.Kinds {
			ret.kinds[k] = true
		}
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Dial connects to the broker and returns a listener plus a disconnect func.
func Dial(config Config, options ...Option) (*Listener, func(), error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return New(client, config, options...), func() { client.Disconnect(250) }, nil
}

// Topic returns the topic an event kind is published on.
func (l *Listener) Topic(kind telemetry.Kind) string {
	return strings.TrimSuffix(l.config.TopicPrefix, "/") + "/" + strings.ReplaceAll(string(kind), ".", "/")
}

// OnEvent publishes the event, reporting failures to the error handler.
func (l *Listener) OnEvent(event *telemetry.Event) {
	if l.kinds != nil && !l.kinds[event.Kind] {
		return
	}
	if err := l.Publish(event); err != nil && l.onError != nil {
		l.onError(err)
	}
}

// Publish sends a single event and waits for the broker acknowledgement.
func (l *Listener) Publish(event *telemetry.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.Kind, err)
	}
	topic := l.Topic(event.Kind)
	token := l.client.Publish(topic, l.config.QoS, false, payload)
	if !token.WaitTimeout(l.config.WriteTimeout) {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, errTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

var errTimeout = errors.New("timeout waiting for broker")

var _ telemetry.Listener = (*Listener)(nil)
