//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"zigbee-go-converters/internal/hub"
)

// commandTimeout bounds a set or get request received over MQTT.
const commandTimeout = 10 * time.Second

// Bridge publishes device state and Home Assistant discovery and routes
// set/get requests from MQTT to the hub.
type Bridge struct {
	client    Client
	hub       *hub.Hub
	prefix    string
	discovery string
	logger    *slog.Logger
	unsubs    []func()
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.Mutex
	topics map[string][]string // IEEE -> published discovery topics
	names  map[string]string   // IEEE -> state topic name
}

// NewBridge creates a bridge on an established client.
func NewBridge(client Client, h *hub.Hub, cfg Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client:    client,
		hub:       h,
		prefix:    strings.TrimSuffix(cfg.TopicPrefix, "/"),
		discovery: strings.TrimSuffix(cfg.DiscoveryPrefix, "/"),
		logger:    logger.With("component", "mqtt-bridge"),
		ctx:       ctx,
		cancel:    cancel,
		topics:    make(map[string][]string),
		names:     make(map[string]string),
	}
}

// Start subscribes to hub events and device command topics.
func (b *Bridge) Start() {
	events := b.hub.Events()
	b.unsubs = append(b.unsubs,
		events.On(hub.EventState, b.handleState),
		events.On(hub.EventDeviceInterview, b.handleDeviceChanged),
		events.On(hub.EventDefinitionChanged, b.handleDeviceChanged),
		events.On(hub.EventDeviceLeft, b.handleDeviceLeft),
	)
	b.client.Subscribe(b.prefix+"/+/set", b.handleSet)
	b.client.Subscribe(b.prefix+"/+/+/set", b.handleSet)
	b.client.Subscribe(b.prefix+"/+/get", b.handleGet)
	b.Announce()
	b.logger.Info("MQTT bridge started", "prefix", b.prefix, "discovery", b.discovery != "")
}

// Announce publishes the online state, the device list and the discovery
// of every supported device. It runs again after every reconnect.
func (b *Bridge) Announce() {
	b.publishBridgeState("online")
	b.publishDevices()
	if b.discovery == "" {
		return
	}
	devices, err := b.hub.Devices()
	if err != nil {
		b.logger.Error("list devices for discovery", "err", err)
		return
	}
	for _, info := range devices {
		b.publishDeviceDiscovery(info)
	}
}

// Stop publishes offline state and unsubscribes from the hub.
func (b *Bridge) Stop() {
	b.cancel()
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	b.publishBridgeState("offline")
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleState(event hub.Event) {
	evt, ok := event.Data.(hub.StateEvent)
	if !ok {
		return
	}
	name := deviceTopicName(evt.IEEE, evt.FriendlyName)
	b.mu.Lock()
	b.names[evt.IEEE] = name
	b.mu.Unlock()
	b.client.Publish(b.prefix+"/"+name, mustJSON(evt.State), true)
}

func (b *Bridge) handleDeviceChanged(event hub.Event) {
	evt, ok := event.Data.(hub.DeviceEvent)
	if !ok {
		return
	}
	b.publishDevices()
	if b.discovery == "" {
		return
	}
	info, err := b.hub.Device(evt.IEEE)
	if err != nil {
		b.logger.Warn("discovery: get device", "ieee", evt.IEEE, "err", err)
		return
	}
	b.publishDeviceDiscovery(info)
}

func (b *Bridge) handleDeviceLeft(event hub.Event) {
	evt, ok := event.Data.(hub.DeviceEvent)
	if !ok {
		return
	}
	b.mu.Lock()
	topics := b.topics[evt.IEEE]
	name := b.names[evt.IEEE]
	delete(b.topics, evt.IEEE)
	delete(b.names, evt.IEEE)
	b.mu.Unlock()

	for _, topic := range topics {
		b.client.Publish(topic, nil, true)
	}
	if name != "" {
		b.client.Publish(b.prefix+"/"+name, nil, true)
	}
	b.publishDevices()
}

// publishDeviceDiscovery publishes the device's entities and removes the
// ones a previous definition published but this one no longer has.
func (b *Bridge) publishDeviceDiscovery(info hub.DeviceInfo) {
	msgs := buildDiscovery(info, b.prefix, b.discovery)
	ieee := info.IEEEAddress

	published := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		b.client.Publish(msg.Topic, msg.Payload, true)
		published = append(published, msg.Topic)
	}

	b.mu.Lock()
	stale := b.topics[ieee]
	if len(published) > 0 {
		b.topics[ieee] = published
	} else {
		delete(b.topics, ieee)
	}
	b.mu.Unlock()

	for _, topic := range stale {
		if !slices.Contains(published, topic) {
			b.client.Publish(topic, nil, true)
		}
	}
	if len(msgs) > 0 {
		b.logger.Info("published HA discovery", "ieee", ieee, "name", deviceDisplayName(info.Device), "entities", len(msgs))
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.client.Publish(b.prefix+"/bridge/state", []byte(state), true)
}

// bridgeDevice is an entry of the retained bridge/devices list.
type bridgeDevice struct {
	IEEEAddress  string `json:"ieee_address"`
	FriendlyName string `json:"friendly_name"`
	ModelID      string `json:"model_id,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	Supported    bool   `json:"supported"`
	Interviewed  bool   `json:"interview_completed"`
	Exposes      any    `json:"exposes,omitempty"`
}

func (b *Bridge) publishDevices() {
	devices, err := b.hub.Devices()
	if err != nil {
		b.logger.Error("list devices", "err", err)
		return
	}
	list := make([]bridgeDevice, 0, len(devices))
	for _, info := range devices {
		list = append(list, bridgeDevice{
			IEEEAddress:  info.IEEEAddress,
			FriendlyName: deviceTopicName(info.IEEEAddress, info.FriendlyName),
			ModelID:      info.ModelID,
			Manufacturer: info.ManufacturerName,
			Model:        info.Model,
			Vendor:       info.Vendor,
			Supported:    info.Supported,
			Interviewed:  info.Interviewed,
			Exposes:      info.Exposes,
		})
	}
	b.client.Publish(b.prefix+"/bridge/devices", mustJSON(list), true)
}

// parseTopic splits "<prefix>/<device>[/<endpoint>]/<action>".
func (b *Bridge) parseTopic(topic string) (device, endpoint string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 2:
		return parts[0], "", true
	case 3:
		return parts[0], parts[1], true
	}
	return "", "", false
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	device, endpoint, ok := b.parseTopic(topic)
	if !ok || device == "bridge" {
		return
	}
	ieee, err := b.hub.Lookup(device)
	if err != nil {
		b.logger.Warn("set for unknown device", "device", device)
		return
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		b.logger.Warn("invalid set JSON", "device", device, "err", err)
		return
	}
	if endpoint != "" {
		suffixed := make(map[string]any, len(values))
		for k, v := range values {
			suffixed[k+"_"+endpoint] = v
		}
		values = suffixed
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if _, err := b.hub.Set(ctx, ieee, values); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, hub.ErrNoConverter) {
			level = slog.LevelInfo
		}
		b.logger.Log(ctx, level, "set failed", "ieee", ieee, "err", err)
	}
}

func (b *Bridge) handleGet(topic string, payload []byte) {
	device, _, ok := b.parseTopic(topic)
	if !ok || device == "bridge" {
		return
	}
	ieee, err := b.hub.Lookup(device)
	if err != nil {
		b.logger.Warn("get for unknown device", "device", device)
		return
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		b.logger.Warn("invalid get JSON", "device", device, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if err := b.hub.Get(ctx, ieee, slices.Sorted(maps.Keys(values))); err != nil {
		b.logger.Warn("get failed", "ieee", ieee, "err", err)
	}
}
