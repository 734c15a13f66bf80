package hub

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/devices"
	"zigbee-go-converters/internal/extend"
	"zigbee-go-converters/internal/stack"
	"zigbee-go-converters/internal/store"
)

// fakeStack records requests and keeps the indication handlers.
type fakeStack struct {
	mu        sync.Mutex
	commands  []stack.CommandRequest
	reads     []stack.ReadRequest
	binds     []stack.BindRequest
	reporting []stack.ReportingRequest

	interview func(stack.DeviceInterviewEvent)
	announce  func(stack.DeviceAnnounceEvent)
	left      func(stack.DeviceLeftEvent)
	report    func(stack.AttributeReportEvent)
	command   func(stack.ClusterCommandEvent)
}

func (f *fakeStack) Read(_ context.Context, req stack.ReadRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, req)
	return map[string]any{}, nil
}

func (f *fakeStack) Write(context.Context, stack.WriteRequest) error { return nil }

func (f *fakeStack) Command(_ context.Context, req stack.CommandRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, req)
	return nil
}

func (f *fakeStack) ConfigureReporting(_ context.Context, req stack.ReportingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reporting = append(f.reporting, req)
	return nil
}

func (f *fakeStack) Bind(_ context.Context, req stack.BindRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, req)
	return nil
}

func (f *fakeStack) OnDeviceInterview(h func(stack.DeviceInterviewEvent)) { f.interview = h }
func (f *fakeStack) OnDeviceAnnounce(h func(stack.DeviceAnnounceEvent))   { f.announce = h }
func (f *fakeStack) OnDeviceLeft(h func(stack.DeviceLeftEvent))           { f.left = h }
func (f *fakeStack) OnAttributeReport(h func(stack.AttributeReportEvent)) { f.report = h }
func (f *fakeStack) OnClusterCommand(h func(stack.ClusterCommandEvent))   { f.command = h }
func (f *fakeStack) Close() error                                         { return nil }

func (f *fakeStack) lastCommand() stack.CommandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[len(f.commands)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	hub   *Hub
	reg   *definition.Registry
	stack *fakeStack
	store *store.MemStore
	seen  []Event
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	reg := definition.NewRegistry(definition.WithLogger(testLogger()), definition.WithGenerator(extend.Generator{}))
	require.NoError(t, devices.Register(reg))
	f := &fixture{reg: reg, stack: &fakeStack{}, store: store.NewMemStore()}
	bus := NewEventBus(testLogger())
	bus.OnAll(func(e Event) { f.seen = append(f.seen, e) })
	f.hub = New(reg, f.store, f.stack, bus, cfg, testLogger())
	t.Cleanup(f.hub.Stop)
	return f
}

func (f *fixture) events(typ string) []Event {
	var out []Event
	for _, e := range f.seen {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func interview(ieee, model, manufacturer string, eps ...stack.EndpointInfo) stack.DeviceInterviewEvent {
	if len(eps) == 0 {
		eps = []stack.EndpointInfo{{ID: 1, ProfileID: 0x0104, InClusters: []uint16{0x0000, 0xEF00}}}
	}
	return stack.DeviceInterviewEvent{
		IEEE:             ieee,
		NetworkAddr:      0x1234,
		Type:             definition.DeviceRouter,
		ModelID:          model,
		ManufacturerName: manufacturer,
		Endpoints:        eps,
	}
}

const (
	switchIEEE = "0x00124b0000000001"
	plugIEEE   = "0x00124b0000000002"
	trvIEEE    = "0x00124b0000000003"
	otherIEEE  = "0x00124b0000000004"
)

func TestInterviewResolvesAndPersists(t *testing.T) {
	f := newFixture(t, Config{})
	f.stack.interview(interview(switchIEEE, "TS0601", "_TZE200_nkjintbl"))

	rec, err := f.store.GetDevice(switchIEEE)
	require.NoError(t, err)
	assert.Equal(t, "TS0601_switch_2_gang", rec.Model)
	assert.Equal(t, "Tuya", rec.Vendor)
	assert.True(t, rec.Interviewed)
	assert.False(t, rec.JoinedAt.IsZero())

	evs := f.events(EventDeviceInterview)
	require.Len(t, evs, 1)
	assert.Equal(t, DeviceEvent{IEEE: switchIEEE, Model: "TS0601_switch_2_gang", Vendor: "Tuya", Supported: true}, evs[0].Data)

	info, err := f.hub.Device(switchIEEE)
	require.NoError(t, err)
	assert.True(t, info.Supported)
	assert.NotEmpty(t, info.Exposes)
}

func TestInterviewWhiteLabel(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(trvIEEE, "TS0601", "_TZE200_e9ba97vf")))

	rec, err := f.store.GetDevice(trvIEEE)
	require.NoError(t, err)
	assert.Equal(t, "TV02-Zigbee", rec.Model)
	assert.Equal(t, "Moes", rec.Vendor)
}

func TestInterviewUnsupported(t *testing.T) {
	f := newFixture(t, Config{})
	ev := interview(otherIEEE, "acme.widget", "Acme", stack.EndpointInfo{ID: 1, InClusters: []uint16{0x0006}})
	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))

	info, err := f.hub.Device(otherIEEE)
	require.NoError(t, err)
	assert.False(t, info.Supported)
	assert.Empty(t, info.Model)

	_, err = f.hub.Set(context.Background(), otherIEEE, map[string]any{"state": "ON"})
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestInterviewGeneratesUnknown(t *testing.T) {
	f := newFixture(t, Config{GenerateUnknown: true})
	ev := interview(otherIEEE, "acme.widget", "Acme", stack.EndpointInfo{ID: 1, InClusters: []uint16{0x0006}})
	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))

	info, err := f.hub.Device(otherIEEE)
	require.NoError(t, err)
	require.True(t, info.Supported)
	assert.True(t, info.Definition.Generated)
	assert.Equal(t, "acme.widget", info.Model)
}

func TestConfigureRunsOncePerModel(t *testing.T) {
	f := newFixture(t, Config{})
	ev := interview(plugIEEE, "TS011F", "_TZ3000_typdpbpg", stack.EndpointInfo{
		ID: 1, InClusters: []uint16{0x0000, 0x0003, 0x0006, 0x0702, 0x0B04},
	})
	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))
	binds := len(f.stack.binds)
	assert.Positive(t, binds)
	for _, b := range f.stack.binds {
		assert.Equal(t, stack.DefaultCoordinatorEndpoint, b.DstEndpoint)
		assert.Equal(t, plugIEEE, b.IEEE)
	}

	rec, err := f.store.GetDevice(plugIEEE)
	require.NoError(t, err)
	assert.Equal(t, "TS011F_plug_1", rec.Configured)

	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))
	assert.Len(t, f.stack.binds, binds)
}

func TestAttributeReportUpdatesState(t *testing.T) {
	f := newFixture(t, Config{})
	ev := interview(plugIEEE, "TS011F", "_TZ3000_typdpbpg", stack.EndpointInfo{ID: 1, InClusters: []uint16{0x0006}})
	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))

	f.stack.report(stack.AttributeReportEvent{
		IEEE: plugIEEE, Endpoint: 1, Cluster: "genOnOff", Attributes: map[string]any{"onOff": 1}, LinkQuality: 120,
	})

	rec, err := f.store.GetDevice(plugIEEE)
	require.NoError(t, err)
	assert.Equal(t, "ON", rec.State["state"])
	assert.Equal(t, uint8(120), rec.LinkQuality)

	props := f.events(EventPropertyUpdate)
	require.Len(t, props, 2)
	assert.Equal(t, PropertyEvent{IEEE: plugIEEE, Property: "linkquality", Value: uint8(120)}, props[0].Data)
	assert.Equal(t, PropertyEvent{IEEE: plugIEEE, Property: "state", Value: "ON"}, props[1].Data)

	states := f.events(EventState)
	require.Len(t, states, 1)
	assert.Equal(t, "ON", states[0].Data.(StateEvent).State["state"])
	assert.Len(t, f.events(EventMessage), 1)
}

func TestDatapointReport(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(switchIEEE, "TS0601", "_TZE200_nkjintbl")))

	// seq 1, dp 2 bool true
	err := f.hub.HandleClusterCommand(context.Background(), stack.ClusterCommandEvent{
		IEEE: switchIEEE, Endpoint: 1, Cluster: "manuSpecificTuya", Command: "dataReport",
		Raw: []byte{0x00, 0x01, 0x02, 0x01, 0x00, 0x01, 0x01},
	})
	require.NoError(t, err)

	rec, err := f.store.GetDevice(switchIEEE)
	require.NoError(t, err)
	assert.Equal(t, "ON", rec.State["state_l2"])
	assert.NotContains(t, rec.State, "state_l1")
}

func TestSetEndpointKey(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(switchIEEE, "TS0601", "_TZE200_nkjintbl")))

	applied, err := f.hub.Set(context.Background(), switchIEEE, map[string]any{"state_l2": "ON"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state_l2": "ON"}, applied)

	cmd := f.stack.lastCommand()
	assert.Equal(t, "manuSpecificTuya", cmd.Cluster)
	assert.Equal(t, "dataRequest", cmd.Command)
	assert.Equal(t, []byte{0x00, 0x00, 0x02, 0x01, 0x00, 0x01, 0x01}, cmd.Payload)
	assert.True(t, cmd.Options.DisableDefaultResponse)

	rec, err := f.store.GetDevice(switchIEEE)
	require.NoError(t, err)
	assert.Equal(t, "ON", rec.State["state_l2"])
}

func TestSetZCLEndpointSuffix(t *testing.T) {
	f := newFixture(t, Config{GenerateUnknown: true})
	ev := interview(otherIEEE, "acme.dual", "Acme",
		stack.EndpointInfo{ID: 1, InClusters: []uint16{0x0006}},
		stack.EndpointInfo{ID: 2, InClusters: []uint16{0x0006}},
	)
	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))

	applied, err := f.hub.Set(context.Background(), otherIEEE, map[string]any{"state_l2": "OFF"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state_l2": "OFF"}, applied)

	cmd := f.stack.lastCommand()
	assert.Equal(t, "genOnOff", cmd.Cluster)
	assert.Equal(t, "off", cmd.Command)
	assert.Equal(t, uint8(2), cmd.Endpoint)
}

func TestSetErrors(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(switchIEEE, "TS0601", "_TZE200_nkjintbl")))

	applied, err := f.hub.Set(context.Background(), switchIEEE, map[string]any{"bogus": 1, "state_l1": "ON"})
	require.ErrorIs(t, err, ErrNoConverter)
	assert.Contains(t, err.Error(), "no converter available for 'bogus'")
	assert.Equal(t, map[string]any{"state_l1": "ON"}, applied)

	_, err = f.hub.Set(context.Background(), "0xdeadbeef", map[string]any{"state": "ON"})
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestGet(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(switchIEEE, "TS0601", "_TZE200_nkjintbl")))

	require.NoError(t, f.hub.Get(context.Background(), switchIEEE, []string{"state_l1"}))
	assert.Equal(t, "dataQuery", f.stack.lastCommand().Command)

	err := f.hub.Get(context.Background(), switchIEEE, []string{"bogus"})
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestLeaveStopsTimers(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(trvIEEE, "TS0601", "_TZE200_hue3yfsn")))
	assert.True(t, f.hub.SideTable().Has(trvIEEE, "tuyaTimeTimer"))

	f.stack.left(stack.DeviceLeftEvent{IEEE: trvIEEE})
	assert.False(t, f.hub.SideTable().Has(trvIEEE, "tuyaTimeTimer"))
	_, err := f.store.GetDevice(trvIEEE)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, f.events(EventDeviceLeft), 1)

	_, err = f.hub.Set(context.Background(), trvIEEE, map[string]any{"child_lock": "LOCK"})
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestMcuSyncTime(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(trvIEEE, "TS0601", "_TZE200_hue3yfsn")))

	require.NoError(t, f.hub.HandleClusterCommand(context.Background(), stack.ClusterCommandEvent{
		IEEE: trvIEEE, Endpoint: 1, Cluster: "manuSpecificTuya", Command: "mcuSyncTime", Raw: []byte{0x00, 0x08},
	}))
	cmd := f.stack.lastCommand()
	assert.Equal(t, "mcuSyncTime", cmd.Command)
	payload, ok := cmd.Payload.([]byte)
	require.True(t, ok)
	assert.Len(t, payload, 10)
}

func TestAnnounceUpdatesAddress(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(switchIEEE, "TS0601", "_TZE200_nkjintbl")))

	f.stack.announce(stack.DeviceAnnounceEvent{IEEE: switchIEEE, NetworkAddr: 0x4321})
	rec, err := f.store.GetDevice(switchIEEE)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4321), rec.NetworkAddress)

	_, err = f.hub.Set(context.Background(), switchIEEE, map[string]any{"state_l1": "OFF"})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4321), f.stack.lastCommand().NetworkAddr)

	require.NoError(t, f.hub.HandleAnnounce(context.Background(), stack.DeviceAnnounceEvent{IEEE: otherIEEE}))
}

func TestStartRestoresDevices(t *testing.T) {
	f := newFixture(t, Config{})
	dev := interview(switchIEEE, "TS0601", "_TZE200_nkjintbl").Identity()
	rec := store.NewDevice(dev)
	rec.State = map[string]any{"state_l1": "ON"}
	require.NoError(t, f.store.SaveDevice(rec))

	require.NoError(t, f.hub.Start(context.Background()))

	info, err := f.hub.Device(switchIEEE)
	require.NoError(t, err)
	assert.True(t, info.Supported)
	assert.Equal(t, "TS0601_switch_2_gang", info.Model)
	assert.Equal(t, "ON", info.State["state_l1"])

	list, err := f.hub.Devices()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReresolveAfterExternalChange(t *testing.T) {
	f := newFixture(t, Config{})
	ev := interview(otherIEEE, "acme.widget", "Acme", stack.EndpointInfo{ID: 1, InClusters: []uint16{0x0006}})
	require.NoError(t, f.hub.HandleInterview(context.Background(), ev))
	assert.Equal(t, 0, f.hub.Reresolve(context.Background()))

	_, err := f.reg.InstallExternal("acme", []*definition.Declaration{{
		Model: "W1", Vendor: "Acme", Description: "Widget",
		ZigbeeModel: []string{"acme.widget"},
		Extend:      []definition.ModernExtend{extend.OnOff(extend.OnOffArgs{})},
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, f.hub.Reresolve(context.Background()))
	rec, err := f.store.GetDevice(otherIEEE)
	require.NoError(t, err)
	assert.Equal(t, "W1", rec.Model)
	assert.Len(t, f.events(EventDefinitionChanged), 1)
	assert.Equal(t, 0, f.hub.Reresolve(context.Background()))

	_, err = f.hub.Set(context.Background(), otherIEEE, map[string]any{"state": "ON"})
	require.NoError(t, err)
	assert.Equal(t, "on", f.stack.lastCommand().Command)

	f.reg.RemoveExternal("acme")
	assert.Equal(t, 1, f.hub.Reresolve(context.Background()))
	rec, err = f.store.GetDevice(otherIEEE)
	require.NoError(t, err)
	assert.Empty(t, rec.Model)
}

func TestOptionsAndRename(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.hub.HandleInterview(context.Background(), interview(switchIEEE, "TS0601", "_TZE200_nkjintbl")))

	require.NoError(t, f.hub.SetOptions(context.Background(), switchIEEE, map[string]any{"temperature_calibration": 1.5}))
	require.NoError(t, f.hub.SetOptions(context.Background(), switchIEEE, map[string]any{"other": true}))
	require.NoError(t, f.hub.SetOptions(context.Background(), switchIEEE, map[string]any{"other": nil}))
	rec, err := f.store.GetDevice(switchIEEE)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"temperature_calibration": 1.5}, rec.Options)

	require.NoError(t, f.hub.Rename(switchIEEE, "kitchen"))
	ieee, err := f.hub.Lookup("kitchen")
	require.NoError(t, err)
	assert.Equal(t, switchIEEE, ieee)

	_, err = f.hub.Lookup("garage")
	assert.ErrorIs(t, err, ErrUnknownDevice)
	assert.ErrorIs(t, f.hub.Rename("0xdeadbeef", "x"), ErrUnknownDevice)
}

func TestCommandType(t *testing.T) {
	tests := map[string]string{
		"dataReport":  "commandDataReport",
		"mcuSyncTime": "commandMcuSyncTime",
		"on":          "commandOn",
		"":            "command",
	}
	for in, want := range tests {
		if got := CommandType(in); got != want {
			t.Errorf("CommandType(%q) = %q, want %q", in, got, want)
		}
	}
}
