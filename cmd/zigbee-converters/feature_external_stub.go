//go:build no_external

package main

import (
	"log/slog"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/web"
)

type extStopper struct{}

func (e *extStopper) Stop() {}

func initExternal(_ *definition.Registry, _ *hub.Hub, _ *Config, _ *slog.Logger) (*extStopper, []web.ServerOption) {
	return &extStopper{}, nil
}
