// Package hub runs definitions against live devices. It resolves
// interviewed devices, drives configure and lifecycle hooks, decodes
// inbound messages into device state and encodes set and get requests.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
	"zigbee-go-converters/internal/stack"
	"zigbee-go-converters/internal/store"
)

var (
	// ErrNoConverter is returned for keys no encoder of the device handles.
	ErrNoConverter = errors.New("no converter available")
	// ErrUnknownDevice is returned for devices the hub has not seen.
	ErrUnknownDevice = errors.New("unknown device")
)

// stopTimeout bounds the stop hooks run by Stop.
const stopTimeout = 5 * time.Second

// Config tunes the hub.
type Config struct {
	// GenerateUnknown synthesizes definitions for devices no definition
	// matches.
	GenerateUnknown bool
	// CoordinatorEndpoint is the bind destination of configure hooks.
	CoordinatorEndpoint uint8
}

// entry is the runtime view of one device.
type entry struct {
	dev *definition.Device
	def *definition.Definition
}

// Hub connects a definition registry to a Zigbee stack.
type Hub struct {
	reg      *definition.Registry
	store    store.Store
	provider *stack.Provider
	events   *EventBus
	side     *definition.SideTable
	cfg      Config
	logger   *slog.Logger

	mu      sync.RWMutex
	devices map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a hub and subscribes it to the stack's indications.
func New(reg *definition.Registry, st store.Store, stk stack.Stack, events *EventBus, cfg Config, logger *slog.Logger) *Hub {
	if cfg.CoordinatorEndpoint == 0 {
		cfg.CoordinatorEndpoint = stack.DefaultCoordinatorEndpoint
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		reg:      reg,
		store:    st,
		provider: &stack.Provider{Stack: stk, CoordinatorEndpoint: cfg.CoordinatorEndpoint},
		events:   events,
		side:     definition.NewSideTable(),
		cfg:      cfg,
		logger:   logger.With("component", "hub"),
		devices:  make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
	h.registerIndicationHandlers(stk)
	return h
}

func (h *Hub) registerIndicationHandlers(stk stack.Stack) {
	stk.OnDeviceInterview(func(evt stack.DeviceInterviewEvent) {
		if err := h.HandleInterview(h.ctx, evt); err != nil {
			h.logger.Warn("handle interview", "ieee", evt.IEEE, "err", err)
		}
	})
	stk.OnDeviceAnnounce(func(evt stack.DeviceAnnounceEvent) {
		if err := h.HandleAnnounce(h.ctx, evt); err != nil {
			h.logger.Warn("handle announce", "ieee", evt.IEEE, "err", err)
		}
	})
	stk.OnDeviceLeft(func(evt stack.DeviceLeftEvent) {
		if err := h.HandleLeave(h.ctx, evt); err != nil {
			h.logger.Warn("handle leave", "ieee", evt.IEEE, "err", err)
		}
	})
	stk.OnAttributeReport(func(evt stack.AttributeReportEvent) {
		if err := h.HandleAttributeReport(h.ctx, evt); err != nil && !errors.Is(err, ErrUnknownDevice) {
			h.logger.Warn("handle attribute report", "ieee", evt.IEEE, "cluster", evt.Cluster, "err", err)
		}
	})
	stk.OnClusterCommand(func(evt stack.ClusterCommandEvent) {
		if err := h.HandleClusterCommand(h.ctx, evt); err != nil && !errors.Is(err, ErrUnknownDevice) {
			h.logger.Warn("handle cluster command", "ieee", evt.IEEE, "cluster", evt.Cluster, "err", err)
		}
	})
}

// Events returns the hub event bus.
func (h *Hub) Events() *EventBus { return h.events }

// SideTable returns the per-device scratch storage shared by converters.
func (h *Hub) SideTable() *definition.SideTable { return h.side }

// Start restores known devices from the store, resolves their definitions
// and fires their start hooks.
func (h *Hub) Start(ctx context.Context) error {
	recs, err := h.store.ListDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	supported := 0
	for _, rec := range recs {
		dev := rec.Identity()
		if dev.IsCoordinator() {
			continue
		}
		dev.SetEndpointProvider(h.provider)
		e := &entry{dev: dev, def: h.resolve(dev)}
		h.mu.Lock()
		h.devices[rec.IEEEAddress] = e
		h.mu.Unlock()
		if e.def != nil {
			supported++
		}
		if rec.Model != modelOf(e.def) {
			h.saveModel(rec, e.def)
		}
		h.fire(ctx, definition.EventStart, e, rec, nil)
	}
	h.logger.Info("hub started", "devices", len(recs), "supported", supported)
	return nil
}

// Stop fires the stop hooks of every device and drops their side table
// entries. Definitions stay assigned so Start can run again.
func (h *Hub) Stop() {
	h.mu.RLock()
	entries := maps.Clone(h.devices)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	for ieee, e := range entries {
		rec, _ := h.store.GetDevice(ieee)
		h.fire(ctx, definition.EventStop, e, rec, nil)
		h.side.Clear(ieee)
	}
	h.cancel()
	h.logger.Info("hub stopped")
}

func (h *Hub) resolve(dev *definition.Device) *definition.Definition {
	def, err := h.reg.FindByDeviceWithWhiteLabel(dev, h.cfg.GenerateUnknown)
	if err != nil {
		h.logger.Warn("resolve definition", "ieee", dev.IEEEAddr, "err", err)
		return nil
	}
	if def == nil {
		h.logger.Debug("no definition", "ieee", dev.IEEEAddr, "model_id", dev.ModelID, "manufacturer", dev.ManufacturerName)
	}
	return def
}

func (h *Hub) lookup(ieee string) *entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[ieee]
}

// HandleInterview resolves a freshly interviewed device, persists it, runs
// the configure hook once per model and fires the interview and start
// hooks.
func (h *Hub) HandleInterview(ctx context.Context, evt stack.DeviceInterviewEvent) error {
	dev := evt.Identity()
	if dev.IsCoordinator() {
		return nil
	}
	dev.SetEndpointProvider(h.provider)
	def := h.resolve(dev)
	ieee := dev.IEEEAddr
	now := time.Now()

	var rec *store.Device
	err := h.store.UpdateDevice(ieee, func(d *store.Device) error {
		d.SetIdentity(dev)
		d.Interviewed = true
		d.LastSeen = now
		setModel(d, def)
		rec = d
		return nil
	})
	joined := errors.Is(err, store.ErrNotFound)
	if joined {
		rec = store.NewDevice(dev)
		rec.Interviewed = true
		rec.JoinedAt = now
		rec.LastSeen = now
		setModel(rec, def)
		err = h.store.SaveDevice(rec)
	}
	if err != nil {
		return fmt.Errorf("save device %s: %w", ieee, err)
	}

	e := &entry{dev: dev, def: def}
	h.mu.Lock()
	old := h.devices[ieee]
	h.devices[ieee] = e
	h.mu.Unlock()
	if old != nil && !sameDefinition(old.def, def) {
		h.fire(ctx, definition.EventStop, old, rec, nil)
	}

	h.logger.Info("device interviewed", "ieee", ieee, "model", rec.Model, "vendor", rec.Vendor, "supported", def != nil)

	cfgErr := h.configure(ctx, e, rec)
	if joined {
		h.fire(ctx, definition.EventDeviceJoined, e, rec, nil)
	}
	h.fire(ctx, definition.EventDeviceInterview, e, rec, nil)
	h.fire(ctx, definition.EventStart, e, rec, nil)
	h.events.Emit(Event{Type: EventDeviceInterview, Data: deviceEvent(ieee, def)})
	return cfgErr
}

// configure runs the definition's configure hook unless it already
// succeeded for the same model.
func (h *Hub) configure(ctx context.Context, e *entry, rec *store.Device) error {
	if e.def == nil || e.def.Configure == nil || rec.Configured == e.def.Model {
		return nil
	}
	ieee := rec.IEEEAddress
	if err := e.def.Configure(ctx, e.dev, h.cfg.CoordinatorEndpoint, e.def); err != nil {
		h.logger.Warn("configure failed", "ieee", ieee, "model", e.def.Model, "err", err)
		return fmt.Errorf("configure %s: %w", ieee, err)
	}
	model := e.def.Model
	rec.Configured = model
	if err := h.store.UpdateDevice(ieee, func(d *store.Device) error {
		d.Configured = model
		return nil
	}); err != nil {
		return fmt.Errorf("save device %s: %w", ieee, err)
	}
	h.logger.Info("device configured", "ieee", ieee, "model", model)
	return nil
}

// HandleAnnounce records the new network address of a known device and
// fires its announce hook.
func (h *Hub) HandleAnnounce(ctx context.Context, evt stack.DeviceAnnounceEvent) error {
	h.mu.Lock()
	e := h.devices[evt.IEEE]
	if e != nil {
		dev := *e.dev
		dev.NetworkAddr = evt.NetworkAddr
		e = &entry{dev: &dev, def: e.def}
		h.devices[evt.IEEE] = e
	}
	h.mu.Unlock()

	var rec *store.Device
	err := h.store.UpdateDevice(evt.IEEE, func(d *store.Device) error {
		d.NetworkAddress = evt.NetworkAddr
		d.LastSeen = time.Now()
		rec = d
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Debug("announce from unknown device", "ieee", evt.IEEE)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save device %s: %w", evt.IEEE, err)
	}
	h.logger.Info("device announce", "ieee", evt.IEEE, "short", fmt.Sprintf("0x%04X", evt.NetworkAddr))

	h.fire(ctx, definition.EventDeviceAnnounce, e, rec, nil)
	h.events.Emit(Event{Type: EventDeviceAnnounce, Data: DeviceEvent{IEEE: evt.IEEE, Model: rec.Model, Vendor: rec.Vendor, Supported: rec.Model != ""}})
	return nil
}

// HandleLeave fires the stop hook of a device that left, clears its side
// table entries and forgets it.
func (h *Hub) HandleLeave(ctx context.Context, evt stack.DeviceLeftEvent) error {
	h.mu.Lock()
	e := h.devices[evt.IEEE]
	delete(h.devices, evt.IEEE)
	h.mu.Unlock()

	rec, _ := h.store.GetDevice(evt.IEEE)
	h.fire(ctx, definition.EventStop, e, rec, nil)
	h.side.Clear(evt.IEEE)
	if err := h.store.DeleteDevice(evt.IEEE); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete device %s: %w", evt.IEEE, err)
	}
	h.logger.Info("device left", "ieee", evt.IEEE)
	h.events.Emit(Event{Type: EventDeviceLeft, Data: DeviceEvent{IEEE: evt.IEEE}})
	return nil
}

// HandleAttributeReport decodes an attribute report or read response.
func (h *Hub) HandleAttributeReport(ctx context.Context, evt stack.AttributeReportEvent) error {
	typ := evt.Type
	if typ == "" {
		typ = "attributeReport"
	}
	return h.handleMessage(ctx, evt.IEEE, &definition.Message{
		Type:             typ,
		Cluster:          evt.Cluster,
		Endpoint:         evt.Endpoint,
		Data:             evt.Attributes,
		LinkQuality:      evt.LinkQuality,
		Sequence:         evt.Sequence,
		ManufacturerCode: evt.ManufacturerCode,
	})
}

// HandleClusterCommand decodes a cluster command. Commands the stack did
// not parse reach decoders as raw bytes.
func (h *Hub) HandleClusterCommand(ctx context.Context, evt stack.ClusterCommandEvent) error {
	var data any = evt.Payload
	if evt.Raw != nil {
		data = evt.Raw
	}
	return h.handleMessage(ctx, evt.IEEE, &definition.Message{
		Type:             CommandType(evt.Command),
		Cluster:          evt.Cluster,
		Endpoint:         evt.Endpoint,
		Data:             data,
		LinkQuality:      evt.LinkQuality,
		Sequence:         evt.Sequence,
		ManufacturerCode: evt.ManufacturerCode,
	})
}

// CommandType returns the message type of a cluster command, e.g.
// "commandDataReport" for "dataReport".
func CommandType(command string) string {
	if command == "" {
		return "command"
	}
	return "command" + strings.ToUpper(command[:1]) + command[1:]
}

func (h *Hub) handleMessage(ctx context.Context, ieee string, msg *definition.Message) error {
	e := h.lookup(ieee)
	if e == nil {
		h.logger.Debug("message from unknown device", "ieee", ieee, "cluster", msg.Cluster, "type", msg.Type)
		return fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	rec, err := h.store.GetDevice(ieee)
	if err != nil {
		return fmt.Errorf("get device %s: %w", ieee, err)
	}

	h.events.Emit(Event{Type: EventMessage, Data: MessageEvent{
		IEEE: ieee, Type: msg.Type, Cluster: msg.Cluster, Endpoint: msg.Endpoint, Data: msg.Data,
	}})
	h.fire(ctx, definition.EventMessage, e, rec, msg)
	if e.def == nil {
		return nil
	}

	state := rec.State
	if state == nil {
		state = map[string]any{}
	}
	meta := &definition.DecodeMeta{
		Device:       e.dev,
		State:        state,
		Options:      rec.Options,
		Store:        h.side,
		Logger:       h.logger,
		Publish:      h.publisher(ieee),
		Calibratable: h.reg.Calibratable(),
	}
	out := map[string]any{}
	matched := false
	for _, d := range e.def.Decoders {
		if !d.Accepts(msg) {
			continue
		}
		matched = true
		values, err := d.Convert(e.def, msg, meta)
		if err != nil {
			h.logger.Warn("decode failed", "ieee", ieee, "model", e.def.Model, "cluster", msg.Cluster, "type", msg.Type, "err", err)
			continue
		}
		maps.Copy(out, values)
	}
	if !matched {
		h.logger.Debug("no decoder", "ieee", ieee, "model", e.def.Model, "cluster", msg.Cluster, "type", msg.Type)
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	if msg.LinkQuality > 0 {
		out["linkquality"] = msg.LinkQuality
	}
	h.publish(ieee, out)
	return nil
}

func (h *Hub) publisher(ieee string) func(map[string]any) {
	return func(payload map[string]any) { h.publish(ieee, payload) }
}

// publish merges values into the device state, persists it and announces
// the change on the bus.
func (h *Hub) publish(ieee string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	var (
		state map[string]any
		name  string
	)
	err := h.store.UpdateDevice(ieee, func(d *store.Device) error {
		d.MergeState(values)
		d.LastSeen = time.Now()
		if lq, ok := values["linkquality"].(uint8); ok {
			d.LinkQuality = lq
		}
		state = maps.Clone(d.State)
		name = d.FriendlyName
		return nil
	})
	if err != nil {
		h.logger.Error("save state", "ieee", ieee, "err", err)
		return
	}
	for _, k := range slices.Sorted(maps.Keys(values)) {
		h.events.Emit(Event{Type: EventPropertyUpdate, Data: PropertyEvent{IEEE: ieee, Property: k, Value: values[k]}})
	}
	h.events.Emit(Event{Type: EventState, Data: StateEvent{IEEE: ieee, FriendlyName: name, State: state}})
}

// fire runs the definition's lifecycle hook. Hook errors are logged.
func (h *Hub) fire(ctx context.Context, typ definition.EventType, e *entry, rec *store.Device, msg *definition.Message) {
	if e == nil || e.def == nil || e.def.OnEvent == nil {
		return
	}
	evt := &definition.Event{
		Type:       typ,
		Device:     e.dev,
		Definition: e.def,
		Message:    msg,
		Store:      h.side,
		Logger:     h.logger,
		Publish:    h.publisher(e.dev.IEEEAddr),
	}
	if rec != nil {
		evt.State = rec.State
		evt.Options = rec.Options
	}
	if err := e.def.OnEvent(ctx, evt); err != nil {
		h.logger.Warn("event hook failed", "ieee", e.dev.IEEEAddr, "model", e.def.Model, "event", typ, "err", err)
	}
}

// target returns the runtime entry and stored record of a device.
func (h *Hub) target(ieee string) (*entry, *store.Device, error) {
	e := h.lookup(ieee)
	if e == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	rec, err := h.store.GetDevice(ieee)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get device %s: %w", ieee, err)
	}
	return e, rec, nil
}

// Set encodes property changes for a device and returns the optimistic
// state it merged. Keys that fail do not stop the others; their errors
// are joined.
func (h *Hub) Set(ctx context.Context, ieee string, values map[string]any) (map[string]any, error) {
	e, rec, err := h.target(ieee)
	if err != nil {
		return nil, err
	}
	applied := map[string]any{}
	var errs []error
	for _, key := range orderKeys(values) {
		state, err := h.set(ctx, e, rec, key, values)
		if err != nil {
			h.logger.Warn("set failed", "ieee", ieee, "key", key, "err", err)
			errs = append(errs, err)
			continue
		}
		maps.Copy(applied, state)
	}
	h.publish(ieee, applied)
	return applied, errors.Join(errs...)
}

func (h *Hub) set(ctx context.Context, e *entry, rec *store.Device, key string, values map[string]any) (map[string]any, error) {
	enc, base, epName := e.encoder(key)
	if enc == nil || enc.ConvertSet == nil {
		return nil, fmt.Errorf("%w for '%s'", ErrNoConverter, key)
	}
	ep := e.endpoint(epName)
	if ep == nil {
		return nil, fmt.Errorf("%s: device %s has no endpoint", key, rec.IEEEAddress)
	}
	res, err := enc.ConvertSet(ctx, ep, base, values[key], h.encodeMeta(e, rec, values, epName))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if res == nil || len(res.State) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(res.State))
	for k, v := range res.State {
		if epName != "" && !strings.HasSuffix(k, "_"+epName) {
			k += "_" + epName
		}
		out[k] = v
	}
	return out, nil
}

// Get asks the device to report the current value of keys. Values arrive
// later as read responses.
func (h *Hub) Get(ctx context.Context, ieee string, keys []string) error {
	e, rec, err := h.target(ieee)
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		enc, base, epName := e.encoder(key)
		if enc == nil || enc.ConvertGet == nil {
			errs = append(errs, fmt.Errorf("%w for '%s'", ErrNoConverter, key))
			continue
		}
		ep := e.endpoint(epName)
		if ep == nil {
			errs = append(errs, fmt.Errorf("%s: device %s has no endpoint", key, ieee))
			continue
		}
		if err := enc.ConvertGet(ctx, ep, base, h.encodeMeta(e, rec, map[string]any{key: nil}, epName)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) encodeMeta(e *entry, rec *store.Device, message map[string]any, epName string) *definition.EncodeMeta {
	return &definition.EncodeMeta{
		Message:      message,
		State:        rec.State,
		Device:       e.dev,
		Definition:   e.def,
		Options:      rec.Options,
		EndpointName: epName,
		Store:        h.side,
		Logger:       h.logger,
	}
}

// encoder finds the encoder for key. A key ending in the name of a
// definition endpoint ("state_l1") is split into the base key and the
// endpoint name; when no encoder handles the base key the full key is
// tried with the endpoint kept.
func (e *entry) encoder(key string) (enc *definition.Encoder, base, epName string) {
	if e.def == nil {
		return nil, key, ""
	}
	if i := strings.LastIndexByte(key, '_'); i > 0 && e.def.Endpoint != nil {
		name := key[i+1:]
		if _, ok := e.def.Endpoint(e.dev)[name]; ok {
			if enc := e.def.FindEncoder(key[:i]); enc != nil {
				return enc, key[:i], name
			}
			return e.def.FindEncoder(key), key, name
		}
	}
	return e.def.FindEncoder(key), key, ""
}

// endpoint returns the transport endpoint for an endpoint name, falling back
// to the "default" endpoint of the definition and then the first one.
func (e *entry) endpoint(name string) definition.Endpoint {
	if e.def != nil && e.def.Endpoint != nil {
		names := e.def.Endpoint(e.dev)
		if id, ok := names[name]; ok && name != "" {
			return e.dev.GetEndpoint(id)
		}
		if id, ok := names["default"]; ok {
			return e.dev.GetEndpoint(id)
		}
	}
	return e.dev.FirstEndpoint()
}

// orderKeys returns the keys of a set request sorted, with state keys
// first so a device is switched on before brightness or color apply.
func orderKeys(values map[string]any) []string {
	var first, rest []string
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if k == "state" || strings.HasPrefix(k, "state_") {
			first = append(first, k)
		} else {
			rest = append(rest, k)
		}
	}
	return append(first, rest...)
}

// SetOptions merges device options; nil values remove an option. The
// definition's hook sees the change as an options event.
func (h *Hub) SetOptions(ctx context.Context, ieee string, options map[string]any) error {
	e := h.lookup(ieee)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	var rec *store.Device
	err := h.store.UpdateDevice(ieee, func(d *store.Device) error {
		if d.Options == nil {
			d.Options = make(map[string]any, len(options))
		}
		for k, v := range options {
			if v == nil {
				delete(d.Options, k)
			} else {
				d.Options[k] = v
			}
		}
		rec = d
		return nil
	})
	if err != nil {
		return fmt.Errorf("save options %s: %w", ieee, err)
	}
	h.fire(ctx, definition.EventOptionsChanged, e, rec, nil)
	return nil
}

// Rename sets the friendly name of a device.
func (h *Hub) Rename(ieee, name string) error {
	err := h.store.UpdateDevice(ieee, func(d *store.Device) error {
		d.FriendlyName = name
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	return err
}

// Reresolve resolves every known device again, after definitions were
// installed or removed. Devices whose definition changed get the stop
// hook of the old definition, then configure and start with the new one.
// It returns the number of devices that changed.
func (h *Hub) Reresolve(ctx context.Context) int {
	h.mu.RLock()
	entries := maps.Clone(h.devices)
	h.mu.RUnlock()

	changed := 0
	for _, ieee := range slices.Sorted(maps.Keys(entries)) {
		old := entries[ieee]
		def := h.resolve(old.dev)
		if sameDefinition(old.def, def) {
			continue
		}
		rec, err := h.store.GetDevice(ieee)
		if err != nil {
			h.logger.Warn("reresolve: get device", "ieee", ieee, "err", err)
			continue
		}
		h.fire(ctx, definition.EventStop, old, rec, nil)

		e := &entry{dev: old.dev, def: def}
		h.mu.Lock()
		if h.devices[ieee] == old {
			h.devices[ieee] = e
		}
		h.mu.Unlock()
		h.saveModel(rec, def)

		if err := h.configure(ctx, e, rec); err != nil {
			h.logger.Warn("reresolve: configure", "ieee", ieee, "err", err)
		}
		h.fire(ctx, definition.EventStart, e, rec, nil)
		h.logger.Info("definition changed", "ieee", ieee, "model", rec.Model)
		h.events.Emit(Event{Type: EventDefinitionChanged, Data: deviceEvent(ieee, def)})
		changed++
	}
	return changed
}

func (h *Hub) saveModel(rec *store.Device, def *definition.Definition) {
	setModel(rec, def)
	err := h.store.UpdateDevice(rec.IEEEAddress, func(d *store.Device) error {
		setModel(d, def)
		return nil
	})
	if err != nil {
		h.logger.Error("save device model", "ieee", rec.IEEEAddress, "err", err)
	}
}

func setModel(d *store.Device, def *definition.Definition) {
	d.Model = modelOf(def)
	d.Vendor = ""
	if def != nil {
		d.Vendor = def.Vendor
	}
}

func modelOf(def *definition.Definition) string {
	if def == nil {
		return ""
	}
	return def.Model
}

func deviceEvent(ieee string, def *definition.Definition) DeviceEvent {
	ev := DeviceEvent{IEEE: ieee, Supported: def != nil}
	if def != nil {
		ev.Model = def.Model
		ev.Vendor = def.Vendor
	}
	return ev
}

// sameDefinition reports whether a and b carry the same converters. White
// label copies of one definition compare equal; a reinstalled external
// definition with the same model does not.
func sameDefinition(a, b *definition.Definition) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	return a.Model == b.Model && a.Vendor == b.Vendor &&
		a.External == b.External && a.Generated == b.Generated &&
		sameHead(a.Decoders, b.Decoders) && sameHead(a.Encoders, b.Encoders)
}

func sameHead[T any](a, b []*T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || a[0] == b[0]
}

// DeviceInfo joins a stored device with its resolved definition.
type DeviceInfo struct {
	*store.Device
	Supported  bool                   `json:"supported"`
	Definition *definition.Definition `json:"-"`
	Exposes    []*exposes.Expose      `json:"exposes,omitempty"`
}

func (h *Hub) info(rec *store.Device) DeviceInfo {
	info := DeviceInfo{Device: rec}
	if e := h.lookup(rec.IEEEAddress); e != nil && e.def != nil {
		info.Supported = true
		info.Definition = e.def
		info.Exposes = e.def.ExposesFor(e.dev, definition.Options(rec.Options))
	}
	return info
}

// Devices lists the stored devices with their definitions.
func (h *Hub) Devices() ([]DeviceInfo, error) {
	recs, err := h.store.ListDevices()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.info(rec))
	}
	return out, nil
}

// Device returns one device by IEEE address or friendly name.
func (h *Hub) Device(id string) (DeviceInfo, error) {
	ieee, err := h.Lookup(id)
	if err != nil {
		return DeviceInfo{}, err
	}
	rec, err := h.store.GetDevice(ieee)
	if errors.Is(err, store.ErrNotFound) {
		return DeviceInfo{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if err != nil {
		return DeviceInfo{}, err
	}
	return h.info(rec), nil
}

// Lookup returns the IEEE address of a device given its address or
// friendly name.
func (h *Hub) Lookup(id string) (string, error) {
	if e := h.lookup(id); e != nil {
		return id, nil
	}
	recs, err := h.store.ListDevices()
	if err != nil {
		return "", err
	}
	for _, rec := range recs {
		if rec.IEEEAddress == id || (rec.FriendlyName != "" && rec.FriendlyName == id) {
			return rec.IEEEAddress, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownDevice, id)
}
