//go:build !no_mqtt

package main

import (
	"log/slog"
	"time"

	mqttbridge "zigbee-go-converters/internal/mqtt"

	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/stack"
)

type mqttRunner struct {
	cfg    mqttbridge.Config
	conn   *mqttbridge.Conn
	tr     *mqttbridge.Transport
	bridge *mqttbridge.Bridge
	logger *slog.Logger
}

// Start attaches the bridge to the hub and announces the devices, again
// after every reconnect.
func (m *mqttRunner) Start(h *hub.Hub) {
	if m.conn == nil {
		return
	}
	m.bridge = mqttbridge.NewBridge(m.conn, h, m.cfg, m.logger)
	m.bridge.Start()
	m.conn.OnConnect(m.bridge.Announce)
}

func (m *mqttRunner) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
	if m.tr != nil {
		m.tr.Close()
	}
	if m.conn != nil {
		m.conn.Close()
	}
}

// initMQTT connects to the broker and returns the stack transport. The
// stack is nil when MQTT is disabled.
func initMQTT(cfg *Config, logger *slog.Logger) (*mqttRunner, stack.Stack, error) {
	if !cfg.MQTT.Enabled {
		logger.Warn("mqtt disabled, no zigbee stack connected")
		return &mqttRunner{}, nil, nil
	}
	mcfg := mqttbridge.Config{
		Broker:          cfg.MQTT.Broker,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ClientID:        cfg.MQTT.ClientID,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		StackPrefix:     cfg.MQTT.StackPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}
	conn, err := mqttbridge.Dial(mcfg, mcfg.TopicPrefix+"/bridge/state", logger)
	if err != nil {
		return nil, nil, err
	}
	tr := mqttbridge.NewTransport(conn, mcfg.StackPrefix, logger)
	if cfg.MQTT.RequestTimeout != "" {
		d, _ := time.ParseDuration(cfg.MQTT.RequestTimeout)
		tr.SetTimeout(d)
	}
	return &mqttRunner{cfg: mcfg, conn: conn, tr: tr, logger: logger}, tr, nil
}
