package extend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
)

type op struct {
	Endpoint uint8
	Kind     string
	Cluster  string
	Items    int
}

type recorder struct {
	ops     []op
	bindErr error
}

type fakeEndpoint struct {
	id  uint8
	rec *recorder
}

func (f *fakeEndpoint) ID() uint8 { return f.id }

func (f *fakeEndpoint) Read(context.Context, string, []string, *definition.CommandOptions) (map[string]any, error) {
	return nil, nil
}

func (f *fakeEndpoint) Write(context.Context, string, map[string]any, *definition.CommandOptions) error {
	return nil
}

func (f *fakeEndpoint) Command(context.Context, string, string, any, *definition.CommandOptions) error {
	return nil
}

func (f *fakeEndpoint) Bind(_ context.Context, cluster string, _ uint8) error {
	f.rec.ops = append(f.rec.ops, op{Endpoint: f.id, Kind: "bind", Cluster: cluster})
	return f.rec.bindErr
}

func (f *fakeEndpoint) ConfigureReporting(_ context.Context, cluster string, items []definition.ReportingItem, _ *definition.CommandOptions) error {
	f.rec.ops = append(f.rec.ops, op{Endpoint: f.id, Kind: "reporting", Cluster: cluster, Items: len(items)})
	return nil
}

func (r *recorder) Endpoint(_ *definition.Device, id uint8) definition.Endpoint {
	return &fakeEndpoint{id: id, rec: r}
}

func device(eps ...*definition.DeviceEndpoint) *definition.Device {
	return &definition.Device{
		IEEEAddr:         "0x00124b0001020304",
		Type:             definition.DeviceRouter,
		ModelID:          "unknown.model",
		ManufacturerName: "Acme",
		Endpoints:        eps,
	}
}

func TestGeneratorSingleEndpoint(t *testing.T) {
	reg := definition.NewRegistry(definition.WithGenerator(Generator{}))
	dev := device(&definition.DeviceEndpoint{
		ID:             1,
		InputClusters:  []uint16{ClusterBasic, ClusterOnOff, ClusterTemperature, ClusterIdentify},
		OutputClusters: []uint16{ClusterOnOff},
	})

	def, err := reg.FindByDevice(dev, true)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.True(t, def.Generated)
	assert.Equal(t, "unknown.model", def.Model)
	assert.Equal(t, "Acme", def.Vendor)

	list := def.ExposesFor(dev, nil)
	for _, name := range []string{"switch", "temperature", "action", "identify", "linkquality"} {
		assert.NotNil(t, exposes.Find(list, name), name)
	}
	assert.NotNil(t, def.FindEncoder("state"))
	assert.NotNil(t, def.FindEncoder("identify"))

	// not cached
	assert.Equal(t, 0, reg.Len())
	again, err := reg.FindByDevice(dev, false)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestGeneratorMultiEndpoint(t *testing.T) {
	dev := device(
		&definition.DeviceEndpoint{ID: 1, InputClusters: []uint16{ClusterOnOff}},
		&definition.DeviceEndpoint{ID: 2, InputClusters: []uint16{ClusterOnOff}},
	)
	decl, err := Generator{}.Generate(dev)
	require.NoError(t, err)
	require.NotNil(t, decl)

	def, err := definition.NewRegistry().Compose(decl)
	require.NoError(t, err)
	require.NotNil(t, def.Endpoint)
	assert.Equal(t, map[string]uint8{"l1": 1, "l2": 2}, def.Endpoint(dev))
	assert.True(t, def.Meta.Bool("multiEndpoint"))

	var props []string
	for _, e := range exposes.Flatten(def.Exposes) {
		if e.Name == "state" {
			props = append(props, e.Property)
		}
	}
	assert.Equal(t, []string{"state_l1", "state_l2"}, props)
}

func TestGeneratorNothingToExpose(t *testing.T) {
	dev := device(&definition.DeviceEndpoint{ID: 1, InputClusters: []uint16{ClusterBasic}})
	decl, err := Generator{}.Generate(dev)
	require.NoError(t, err)
	assert.Nil(t, decl)
}

func TestGeneratorNoModel(t *testing.T) {
	dev := device(&definition.DeviceEndpoint{ID: 1, InputClusters: []uint16{ClusterHumidity}})
	dev.ModelID = ""
	dev.ManufacturerName = ""
	decl, err := Generator{}.Generate(dev)
	require.NoError(t, err)
	assert.Equal(t, dev.IEEEAddr, decl.Model)
	assert.Equal(t, "Unknown", decl.Vendor)
	assert.Empty(t, decl.ZigbeeModel)
}

func TestLightConfigure(t *testing.T) {
	rec := &recorder{}
	dev := device(
		&definition.DeviceEndpoint{ID: 1, InputClusters: []uint16{ClusterOnOff, ClusterLevelCtrl}},
		&definition.DeviceEndpoint{ID: 242},
	)
	dev.SetEndpointProvider(rec)

	def, err := definition.NewRegistry().Compose(&definition.Declaration{
		Model: "L1", Vendor: "Acme", Description: "Bulb",
		Extend: []definition.ModernExtend{Light(true)},
	})
	require.NoError(t, err)
	require.NoError(t, def.Configure(context.Background(), dev, 1, def))

	assert.Equal(t, []op{
		{Endpoint: 1, Kind: "bind", Cluster: "genOnOff"},
		{Endpoint: 1, Kind: "reporting", Cluster: "genOnOff", Items: 1},
		{Endpoint: 1, Kind: "bind", Cluster: "genLevelCtrl"},
		{Endpoint: 1, Kind: "reporting", Cluster: "genLevelCtrl", Items: 1},
	}, rec.ops)

	light := exposes.Find(def.Exposes, "light")
	require.NotNil(t, light)
	assert.NotNil(t, exposes.Find(light.Features, "brightness"))
}

func TestConfigureBenignErrors(t *testing.T) {
	dev := device(&definition.DeviceEndpoint{ID: 1, InputClusters: []uint16{ClusterTemperature}})

	rec := &recorder{bindErr: errors.New("status UNSUPPORTED_ATTRIBUTE")}
	dev.SetEndpointProvider(rec)
	ext := Temperature()
	require.NoError(t, ext.Configure[0](context.Background(), dev, 1, nil))
	assert.Len(t, rec.ops, 2)

	boom := errors.New("timeout")
	rec = &recorder{bindErr: boom}
	dev.SetEndpointProvider(rec)
	err := ext.Configure[0](context.Background(), dev, 1, nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.ops, 1)
}

func TestCommandsOnOffBindsOutput(t *testing.T) {
	rec := &recorder{}
	dev := device(&definition.DeviceEndpoint{ID: 1, OutputClusters: []uint16{ClusterOnOff}})
	dev.SetEndpointProvider(rec)
	ext := CommandsOnOff()
	require.NoError(t, ext.Configure[0](context.Background(), dev, 1, nil))
	assert.Equal(t, []op{{Endpoint: 1, Kind: "bind", Cluster: "genOnOff"}}, rec.ops)

	msg := &definition.Message{Type: "commandToggle", Cluster: "genOnOff", Endpoint: 1}
	out, err := ext.Decoders[0].Convert(nil, msg, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"action": "toggle"}, out)
}

func TestBatteryFragment(t *testing.T) {
	ext := Battery(BatteryArgs{Voltage: true, DontDividePercentage: true})
	assert.Len(t, ext.Exposes, 1)
	assert.Equal(t, "voltage", ext.Exposes[0].Name)
	assert.True(t, ext.Meta.Bool("batteryDontDividePercentage"))

	ext = Battery(BatteryArgs{})
	assert.Equal(t, "battery", ext.Exposes[0].Name)
}

func TestIASZoneExpose(t *testing.T) {
	ext := IASZone("contact")
	assert.Equal(t, exposes.TypeBinary, ext.Exposes[0].Type)
	assert.Equal(t, false, ext.Exposes[0].ValueOn)

	ext = IASZone("alarm")
	assert.Equal(t, "alarm", ext.Exposes[0].Name)
	assert.Equal(t, true, ext.Exposes[0].ValueOn)
}
