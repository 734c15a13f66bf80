//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config holds MQTT configuration.
type Config struct {
	Broker   string
	Username string
	Password string
	ClientID string
	// TopicPrefix is the root of device state and command topics.
	TopicPrefix string
	// StackPrefix is the root of the Zigbee stack's request and event
	// topics.
	StackPrefix string
	// DiscoveryPrefix enables Home Assistant discovery when non-empty.
	DiscoveryPrefix string
}

// Handler receives messages of a subscription.
type Handler func(topic string, payload []byte)

// Client is the part of a broker connection the bridge and the stack
// transport use.
type Client interface {
	Publish(topic string, payload []byte, retained bool)
	Subscribe(topic string, handler Handler)
}

// Conn is a paho connection. Subscriptions are restored after every
// reconnect.
type Conn struct {
	client pahomqtt.Client
	logger *slog.Logger

	mu        sync.Mutex
	subs      map[string]Handler
	onConnect []func()
}

// Dial connects to the broker. will is published retained as "offline"
// when the connection drops.
func Dial(cfg Config, will string, logger *slog.Logger) (*Conn, error) {
	c := &Conn{
		logger: logger.With("component", "mqtt"),
		subs:   make(map[string]Handler),
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zigbee-converters"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.logger.Info("MQTT connected", "broker", cfg.Broker)
			c.resubscribe()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.logger.Warn("MQTT connection lost", "err", err)
		})
	if will != "" {
		opts.SetWill(will, "offline", 1, true)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	c.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return c, nil
}

// OnConnect registers fn to run after every (re)connect.
func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
	if c.client.IsConnected() {
		fn()
	}
}

func (c *Conn) resubscribe() {
	c.mu.Lock()
	subs := maps.Clone(c.subs)
	hooks := slices.Clone(c.onConnect)
	c.mu.Unlock()

	for topic, h := range subs {
		c.subscribe(topic, h)
	}
	for _, fn := range hooks {
		fn()
	}
}

// Subscribe implements Client.
func (c *Conn) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	if c.client.IsConnected() {
		c.subscribe(topic, handler)
	}
}

func (c *Conn) subscribe(topic string, handler Handler) {
	token := c.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			c.logger.Warn("MQTT subscribe timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			c.logger.Warn("MQTT subscribe error", "topic", topic, "err", err)
		}
	}()
}

// Publish implements Client. Delivery errors are logged.
func (c *Conn) Publish(topic string, payload []byte, retained bool) {
	token := c.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			c.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			c.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// Close disconnects from the broker.
func (c *Conn) Close() {
	c.client.Disconnect(1000)
}
