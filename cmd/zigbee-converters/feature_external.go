//go:build !no_external

package main

import (
	"context"
	"log/slog"
	"time"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/external"
	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/web"
)

type extStopper struct {
	engine *external.Engine
}

func (e *extStopper) Stop() {
	if e.engine != nil {
		e.engine.Stop()
	}
}

// initExternal loads the Lua converter scripts. Devices are resolved again
// whenever the installed definitions change.
func initExternal(reg *definition.Registry, h *hub.Hub, cfg *Config, logger *slog.Logger) (*extStopper, []web.ServerOption) {
	if !cfg.External.Enabled {
		return &extStopper{}, nil
	}
	mgr, err := external.NewManager(cfg.External.Dir)
	if err != nil {
		logger.Error("create converter manager", "err", err)
		return &extStopper{}, nil
	}

	engine := external.NewEngine(reg, mgr, logger)
	engine.OnChange(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n := h.Reresolve(ctx); n > 0 {
			logger.Info("devices re-resolved", "changed", n)
		}
	})
	engine.Start()

	return &extStopper{engine: engine}, []web.ServerOption{web.WithExternal(engine, mgr)}
}
