package tuya

import (
	"context"
	"slices"
	"time"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
)

// BaseOptions tunes the Base fragment.
type BaseOptions struct {
	// Datapoints is stored as the definition's datapoint table.
	Datapoints Table
	// SendCommand overrides the command used for writes (sendData for some
	// devices).
	SendCommand string
	// QueryOnConfigure sends dataQuery after configuring.
	QueryOnConfigure bool
	// MagicPacket reads the basic attributes some firmware needs before it
	// starts reporting.
	MagicPacket bool
	// Events configures the lifecycle hook.
	Events EventOptions
}

// Base wires the datapoint table of a Tuya MCU device: table decoder and
// encoder, time sync and optional periodic queries. Without a table the
// datapoints are left to the single-datapoint fragments.
func Base(opts BaseOptions) definition.ModernExtend {
	ext := definition.ModernExtend{
		IsModernExtend: true,
		OnEvent:        OnEvent(opts.Events),
		Meta:           definition.Meta{},
	}
	if len(opts.Datapoints) > 0 {
		ext.Decoders = []*definition.Decoder{TableDecoder()}
		ext.Meta[MetaDatapoints] = opts.Datapoints
		if keys := opts.Datapoints.Keys(); len(keys) > 0 {
			ext.Encoders = append(ext.Encoders, TableEncoder(keys))
		}
	}
	if opts.SendCommand != "" {
		ext.Meta[MetaSendCommand] = opts.SendCommand
	}
	if opts.MagicPacket || opts.QueryOnConfigure {
		ext.Configure = append(ext.Configure, configure(opts.MagicPacket, opts.QueryOnConfigure))
	}
	return ext
}

func configure(magic, query bool) definition.ConfigureFunc {
	return func(ctx context.Context, dev *definition.Device, _ uint8, _ *definition.Definition) error {
		ep := dev.FirstEndpoint()
		if ep == nil {
			return nil
		}
		if magic {
			_, err := ep.Read(ctx, "genBasic", []string{
				"manufacturerName", "zclVersion", "appVersion", "modelId", "powerSource", "0xfffe",
			}, nil)
			if err := definition.IgnoreBenign(err); err != nil {
				return err
			}
		}
		if query {
			return Query(ctx, ep)
		}
		return nil
	}
}

// single builds a fragment around one datapoint entry exposed as e. The
// entry decodes on its own so several fragments may share a definition;
// the encoder key is the full datapoint name.
func single(dp Datapoint, e *exposes.Expose) definition.ModernExtend {
	table := Table{dp}
	ext := definition.ModernExtend{
		IsModernExtend: true,
		Exposes:        []*exposes.Expose{e},
		Decoders: []*definition.Decoder{{
			Cluster: Cluster,
			Types:   reportTypes,
			Convert: func(_ *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
				cmd, err := commandOf(msg)
				if err != nil {
					return nil, err
				}
				return table.decode(cmd, meta, false)
			},
		}},
	}
	if e.Access.Has(exposes.AccessSet) && dp.Converter.Encode != nil {
		ext.Encoders = []*definition.Encoder{{
			Key: []string{dp.Name},
			ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
				return table.Encode(ctx, ep, key, value, meta)
			},
			ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
				return Query(ctx, ep)
			},
		}}
	}
	return ext
}

// DPNumeric exposes a number datapoint, divided by scale when scale > 1.
func DPNumeric(dp uint8, e *exposes.Expose, scale float64) definition.ModernExtend {
	conv := Raw
	if scale > 1 {
		conv = DivideBy(scale)
	}
	return single(Datapoint{DP: dp, Name: e.Property, Converter: conv}, e)
}

// DPBinary exposes a bool datapoint using the expose's on/off values.
func DPBinary(dp uint8, e *exposes.Expose) definition.ModernExtend {
	conv := &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			if sameRaw(true, v) {
				return e.ValueOn, nil
			}
			return e.ValueOff, nil
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			switch v {
			case e.ValueOn:
				return true, nil
			case e.ValueOff:
				return false, nil
			}
			return nil, valueError("%s: %v is not %v or %v", e.Name, v, e.ValueOn, e.ValueOff)
		},
	}
	return single(Datapoint{DP: dp, Name: e.Property, Converter: conv}, e)
}

// DPEnumLookup exposes an enum datapoint through a lookup.
func DPEnumLookup(dp uint8, name string, access exposes.Access, lookup map[string]any) definition.ModernExtend {
	conv := Lookup(lookup)
	values := make([]string, 0, len(lookup))
	for k := range lookup {
		values = append(values, k)
	}
	slices.Sort(values)
	return single(Datapoint{DP: dp, Name: name, Converter: conv}, exposes.Enum(name, access, values))
}

// DPOnOff exposes a switch state datapoint, optionally per endpoint name.
func DPOnOff(dp uint8, endpoint string) definition.ModernExtend {
	e := exposes.Switch()
	name := "state"
	if endpoint != "" {
		e = e.WithEndpoint(endpoint)
		name += "_" + endpoint
	}
	return single(Datapoint{DP: dp, Name: name, Converter: OnOff}, e)
}

// DPChildLock exposes the child lock datapoint.
func DPChildLock(dp uint8) definition.ModernExtend {
	return single(Datapoint{DP: dp, Name: "child_lock", Converter: LockUnlock}, exposes.ChildLock())
}

// DPBattery exposes a battery percentage datapoint.
func DPBattery(dp uint8) definition.ModernExtend {
	return single(Datapoint{DP: dp, Name: "battery", Converter: Raw}, exposes.Battery())
}

// DPTemperature exposes a calibrated temperature datapoint.
func DPTemperature(dp uint8, scale float64) definition.ModernExtend {
	return single(Datapoint{DP: dp, Name: "temperature", Converter: Calibrated(DivideByFromOnly(scale), "temperature")}, exposes.Temperature())
}

// DPHumidity exposes a calibrated humidity datapoint.
func DPHumidity(dp uint8, scale float64) definition.ModernExtend {
	return single(Datapoint{DP: dp, Name: "humidity", Converter: Calibrated(DivideByFromOnly(scale), "humidity")}, exposes.Humidity())
}

// ForceTimeUpdate returns a fragment that keeps the device clock in sync
// even when the MCU never asks.
func ForceTimeUpdate(every time.Duration) definition.ModernExtend {
	return definition.ModernExtend{
		IsModernExtend: true,
		OnEvent:        OnEvent(EventOptions{TimeSyncInterval: every}),
	}
}
