package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-go-converters/internal/converters"
	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/devices"
	"zigbee-go-converters/internal/extend"
	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/stack"
	"zigbee-go-converters/internal/store"
	"zigbee-go-converters/internal/web"
	"zigbee-go-converters/internal/zcl"
	"zigbee-go-converters/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Path string `yaml:"path"` // empty keeps devices in memory
	} `yaml:"store"`
	DevicesDir string `yaml:"devices_dir"`
	External   struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"external"`
	Resolver struct {
		GenerateUnknown     bool  `yaml:"generate_unknown"`
		CoordinatorEndpoint uint8 `yaml:"coordinator_endpoint"`
	} `yaml:"resolver"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		ClientID        string `yaml:"client_id"`
		TopicPrefix     string `yaml:"topic_prefix"`
		StackPrefix     string `yaml:"stack_prefix"`
		Discovery       bool   `yaml:"discovery"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
		RequestTimeout  string `yaml:"request_timeout"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
}

func (c *Config) validate() error {
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	for _, p := range []string{c.MQTT.TopicPrefix, c.MQTT.StackPrefix} {
		if strings.ContainsAny(p, "+#") {
			return fmt.Errorf("mqtt prefix %q must not contain wildcards", p)
		}
	}
	if c.MQTT.TopicPrefix == c.MQTT.StackPrefix {
		return fmt.Errorf("mqtt.topic_prefix and mqtt.stack_prefix must differ")
	}
	if c.MQTT.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.MQTT.RequestTimeout); err != nil {
			return fmt.Errorf("mqtt.request_timeout: %w", err)
		}
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-converters starting", "version", version)

	// Cluster names for declarative definition files.
	zclRegistry := zcl.NewRegistry(logger)
	clusters.RegisterAll(zclRegistry)

	opts := []definition.Option{
		definition.WithTail(converters.Tail()...),
		definition.WithLogger(logger),
	}
	if cfg.Resolver.GenerateUnknown {
		opts = append(opts, definition.WithGenerator(extend.Generator{}))
	}
	reg := definition.NewRegistry(opts...)
	if err := devices.Register(reg); err != nil {
		logger.Error("register built-in definitions", "err", err)
		os.Exit(1)
	}
	n, err := devices.LoadDir(cfg.DevicesDir, reg, zclRegistry, logger)
	if err != nil {
		logger.Error("load definition files", "err", err)
		os.Exit(1)
	}
	logger.Info("definitions registered", "total", reg.Len(), "from_files", n)

	db, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// The Zigbee stack is reached over MQTT; without it the hub resolves
	// and decodes but cannot talk to devices.
	mq, zstack, err := initMQTT(cfg, logger)
	if err != nil {
		logger.Error("mqtt", "err", err)
		os.Exit(1)
	}
	if zstack == nil {
		zstack = offlineStack{logger: logger.With("component", "stack")}
	}

	h := hub.New(reg, db, zstack, hub.NewEventBus(logger), hub.Config{
		GenerateUnknown:     cfg.Resolver.GenerateUnknown,
		CoordinatorEndpoint: cfg.Resolver.CoordinatorEndpoint,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := h.Start(ctx); err != nil {
		logger.Error("start hub", "err", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	// Load external converters (no-op when built with no_external tag).
	ext, extWebOpts := initExternal(reg, h, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, extWebOpts...)

	webServer := web.NewServer(h, reg, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	// Start the MQTT bridge after the hub knows its devices.
	mq.Start(h)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	ext.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	h.Stop()
	mq.Stop()

	logger.Info("goodbye")
}

func openStore(cfg *Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Store.Path == "" {
		logger.Warn("store.path not set, devices are kept in memory")
		return store.NewMemStore(), nil
	}
	return store.NewBoltStore(cfg.Store.Path)
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.DevicesDir == "" {
		cfg.DevicesDir = "devices"
	}
	if cfg.External.Dir == "" {
		cfg.External.Dir = "converters"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zigbee2mqtt"
	}
	if cfg.MQTT.StackPrefix == "" {
		cfg.MQTT.StackPrefix = "zigbee-stack"
	}
	if cfg.MQTT.Discovery && cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

var errOffline = errors.New("no zigbee stack connected")

// offlineStack is the stack used without MQTT. Requests fail; indications
// never arrive.
type offlineStack struct {
	logger *slog.Logger
}

func (s offlineStack) fail(op string, t stack.Target) error {
	s.logger.Debug("stack request dropped", "op", op, "ieee", t.IEEE)
	return errOffline
}

func (s offlineStack) Read(_ context.Context, req stack.ReadRequest) (map[string]any, error) {
	return nil, s.fail("read", req.Target)
}

func (s offlineStack) Write(_ context.Context, req stack.WriteRequest) error {
	return s.fail("write", req.Target)
}

func (s offlineStack) Command(_ context.Context, req stack.CommandRequest) error {
	return s.fail("command", req.Target)
}

func (s offlineStack) ConfigureReporting(_ context.Context, req stack.ReportingRequest) error {
	return s.fail("reporting", req.Target)
}

func (s offlineStack) Bind(_ context.Context, req stack.BindRequest) error {
	return s.fail("bind", req.Target)
}

func (offlineStack) OnDeviceInterview(func(stack.DeviceInterviewEvent)) {}
func (offlineStack) OnDeviceAnnounce(func(stack.DeviceAnnounceEvent))   {}
func (offlineStack) OnDeviceLeft(func(stack.DeviceLeftEvent))           {}
func (offlineStack) OnAttributeReport(func(stack.AttributeReportEvent)) {}
func (offlineStack) OnClusterCommand(func(stack.ClusterCommandEvent))   {}
func (offlineStack) Close() error                                       { return nil }
