//go:build no_mqtt

package main

import (
	"log/slog"

	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/stack"
)

type mqttRunner struct{}

func (m *mqttRunner) Start(_ *hub.Hub) {}

func (m *mqttRunner) Stop() {}

func initMQTT(_ *Config, logger *slog.Logger) (*mqttRunner, stack.Stack, error) {
	logger.Warn("built without mqtt, no zigbee stack connected")
	return &mqttRunner{}, nil, nil
}
