package definition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-converters/internal/exposes"
)

var (
	testDecoder = &Decoder{
		Cluster: "genOnOff",
		Types:   []string{"attributeReport"},
		Convert: func(*Definition, *Message, *DecodeMeta) (map[string]any, error) { return nil, nil },
	}
	testEncoder = &Encoder{Key: []string{"state"}}
	tailEncoder = &Encoder{Key: []string{"read", "write"}}
)

func actionFragment(values ...string) ModernExtend {
	return ModernExtend{
		IsModernExtend: true,
		Exposes:        []*exposes.Expose{exposes.Action(values)},
	}
}

func TestComposeConcatenation(t *testing.T) {
	r := NewRegistry(WithTail(tailEncoder))
	d := decl("composed")
	d.Decoders = []*Decoder{testDecoder}
	d.Extend = []ModernExtend{{
		IsModernExtend: true,
		Decoders:       []*Decoder{testDecoder},
		Encoders:       []*Encoder{testEncoder},
		Exposes:        []*exposes.Expose{exposes.Switch()},
	}}
	def, err := r.Compose(d)
	require.NoError(t, err)

	assert.Len(t, def.Decoders, 2)
	assert.Equal(t, []*Encoder{testEncoder, tailEncoder}, def.Encoders)
	require.Len(t, def.Exposes, 3)
	assert.Equal(t, "battery", def.Exposes[0].Name)
	assert.Equal(t, exposes.TypeSwitch, def.Exposes[1].Type)
	assert.Equal(t, "linkquality", def.Exposes[2].Name)
	assert.Same(t, tailEncoder, def.FindEncoder("write"))
}

func TestComposeIdempotent(t *testing.T) {
	r := NewRegistry(WithTail(tailEncoder))
	build := func() *Declaration {
		d := decl("same")
		d.Meta = Meta{"multiEndpoint": true}
		d.Extend = []ModernExtend{actionFragment("single"), {
			IsModernExtend: true,
			Decoders:       []*Decoder{testDecoder},
			Exposes:        []*exposes.Expose{exposes.Temperature()},
			Meta:           Meta{"battery": map[string]any{"voltageToPercentage": "3V_2100"}},
		}}
		return d
	}
	a, err := r.Compose(build())
	require.NoError(t, err)
	b, err := r.Compose(build())
	require.NoError(t, err)

	assert.Equal(t, a.Decoders, b.Decoders)
	assert.Equal(t, a.Encoders, b.Encoders)
	assert.Equal(t, a.Exposes, b.Exposes)
	assert.Equal(t, a.Meta, b.Meta)
	assert.Equal(t, a.Options, b.Options)
}

func TestComposeActionMerge(t *testing.T) {
	d := decl("remote")
	d.Extend = []ModernExtend{
		actionFragment("single", "double"),
		{IsModernExtend: true, Exposes: []*exposes.Expose{exposes.Occupancy()}},
		actionFragment("double", "hold"),
	}
	def, err := NewRegistry().Compose(d)
	require.NoError(t, err)

	var actions []*exposes.Expose
	for _, e := range def.Exposes {
		if e.Name == "action" {
			actions = append(actions, e)
		}
	}
	require.Len(t, actions, 1)
	assert.Equal(t, []string{"single", "double", "hold"}, actions[0].Values)
}

func TestComposeDynamicExposes(t *testing.T) {
	d := decl("dynamic")
	d.Exposes = nil
	d.ExposesFn = func(dev *Device, _ Options) []*exposes.Expose {
		if dev != nil && len(dev.Endpoints) > 1 {
			return []*exposes.Expose{exposes.Switch().WithEndpoint("l1"), exposes.Switch().WithEndpoint("l2")}
		}
		return []*exposes.Expose{exposes.Switch()}
	}
	d.Extend = []ModernExtend{actionFragment("a"), actionFragment("b")}
	def, err := NewRegistry().Compose(d)
	require.NoError(t, err)
	require.Nil(t, def.Exposes)
	require.NotNil(t, def.ExposesFn)

	got := def.ExposesFor(&Device{Endpoints: []*DeviceEndpoint{{ID: 1}, {ID: 2}}}, nil)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"a", "b"}, got[2].Values)
	assert.Equal(t, "linkquality", got[3].Name)

	assert.Len(t, def.ExposesFor(nil, nil), 3)
}

func TestComposeMetaDeclarationWins(t *testing.T) {
	d := decl("meta")
	d.Meta = Meta{"key": "declaration"}
	d.Extend = []ModernExtend{
		{IsModernExtend: true, Meta: Meta{"key": "fragment", "first": 1}},
		{IsModernExtend: true, Meta: Meta{"first": 2, "second": 2}},
	}
	def, err := NewRegistry().Compose(d)
	require.NoError(t, err)
	assert.Equal(t, Meta{"key": "declaration", "first": 1, "second": 2}, def.Meta)
}

func TestComposeErrors(t *testing.T) {
	ep := func(*Device) map[string]uint8 { return map[string]uint8{"l1": 1} }
	tests := []struct {
		name   string
		modify func(d *Declaration)
		want   error
	}{
		{"missing vendor", func(d *Declaration) { d.Vendor = "" }, ErrInvalidDeclaration},
		{"missing description", func(d *Declaration) { d.Description = "" }, ErrInvalidDeclaration},
		{"exposes list and function", func(d *Declaration) {
			d.ExposesFn = func(*Device, Options) []*exposes.Expose { return nil }
		}, ErrInvalidDeclaration},
		{"decoder without convert", func(d *Declaration) { d.Decoders = []*Decoder{{Cluster: "genOnOff"}} }, ErrInvalidDeclaration},
		{"legacy fragment", func(d *Declaration) { d.Extend = []ModernExtend{{}} }, ErrComposition},
		{"two endpoint contributors", func(d *Declaration) {
			d.Endpoint = ep
			d.Extend = []ModernExtend{{IsModernExtend: true, Endpoint: ep}}
		}, ErrComposition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decl("broken")
			tt.modify(d)
			_, err := NewRegistry().Compose(d)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestComposeOnEventStopsAtError(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	d := decl("events")
	d.OnEvent = func(context.Context, *Event) error { calls++; return nil }
	d.Extend = []ModernExtend{{
		IsModernExtend: true,
		OnEvent:        func(context.Context, *Event) error { calls++; return boom },
	}}
	def, err := NewRegistry().Compose(d)
	require.NoError(t, err)
	assert.ErrorIs(t, def.OnEvent(context.Background(), &Event{Type: EventStart}), boom)
	assert.Equal(t, 1, calls)
}

func TestComposeCalibrationOptions(t *testing.T) {
	d := decl("climate")
	d.Exposes = []*exposes.Expose{exposes.Temperature(), exposes.Humidity(), exposes.BatteryVoltage()}
	d.Options = []*exposes.Expose{exposes.Numeric("temperature_calibration", exposes.AccessSet)}
	d.Decoders = []*Decoder{{
		Cluster: "msTemperatureMeasurement",
		Types:   []string{"attributeReport"},
		Options: []*exposes.Expose{exposes.Numeric("humidity_precision", exposes.AccessSet), exposes.Binary("legacy", exposes.AccessSet, true, false)},
		Convert: testDecoder.Convert,
	}}
	def, err := NewRegistry().Compose(d)
	require.NoError(t, err)

	var names []string
	for _, o := range def.Options {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{
		"temperature_calibration",
		"temperature_precision",
		"humidity_calibration",
		"humidity_precision",
		"legacy",
	}, names)
}

func TestComposeCalibrationOptionsFromFunction(t *testing.T) {
	d := decl("dynamic climate")
	d.Exposes = nil
	d.ExposesFn = func(dev *Device, _ Options) []*exposes.Expose {
		list := []*exposes.Expose{exposes.Temperature(), exposes.Illuminance()}
		if dev != nil {
			list = append(list, exposes.Humidity())
		}
		return list
	}
	def, err := NewRegistry().Compose(d)
	require.NoError(t, err)

	var names []string
	for _, o := range def.Options {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{
		"temperature_calibration",
		"temperature_precision",
		"illuminance_calibration",
	}, names)
}

func TestCalibrate(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		value float64
		want  float64
	}{
		{"temperature", Options{"temperature_calibration": -1.5}, 21.456, 19.96},
		{"temperature", Options{"temperature_precision": 0}, 21.5, 22},
		{"illuminance", Options{"illuminance_calibration": 10}, 100, 110},
		{"unknown", Options{"unknown_calibration": 5}, 1.23456, 1.23456},
	}
	for _, tt := range tests {
		if got := Calibrate(tt.opts, DefaultCalibratable, tt.name, tt.value); got != tt.want {
			t.Errorf("Calibrate(%s, %v) = %v, want %v", tt.name, tt.value, got, tt.want)
		}
	}
}

type fakeTimer struct{ stopped bool }

func (f *fakeTimer) Stop() bool { f.stopped = true; return true }

func TestSideTable(t *testing.T) {
	s := NewSideTable()
	first := &fakeTimer{}
	s.Put("0x01", "timer", first)
	s.Put("0x01", "timer", &fakeTimer{})
	assert.True(t, first.stopped, "replaced timer is stopped")

	seq := s.Update("0x01", "seq", func(old any, ok bool) any {
		if !ok {
			return 1
		}
		return old.(int) + 1
	})
	assert.Equal(t, 1, seq)

	second, _ := s.Get("0x01", "timer")
	s.Clear("0x01")
	assert.True(t, second.(*fakeTimer).stopped)
	assert.False(t, s.Has("0x01", "seq"))
}

func TestIgnoreBenign(t *testing.T) {
	assert.NoError(t, IgnoreBenign(errors.New("read genBasic: zcl status UNSUPPORTED_ATTRIBUTE (0x86)")))
	err := errors.New("timeout")
	assert.Equal(t, err, IgnoreBenign(err))
	assert.NoError(t, IgnoreBenign(nil))
}
