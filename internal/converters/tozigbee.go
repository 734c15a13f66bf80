package converters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"zigbee-go-converters/internal/definition"
)

// ErrValue marks a set request whose value the encoder cannot send.
var ErrValue = errors.New("invalid value")

func valueError(key string, v any, want string) error {
	return fmt.Errorf("%w for %s: %v (want %s)", ErrValue, key, v, want)
}

// OnOffSet switches genOnOff with on, off and toggle.
var OnOffSet = &definition.Encoder{
	Key: []string{"state"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
		s, _ := value.(string)
		cmd := strings.ToLower(s)
		switch cmd {
		case "on", "off", "toggle":
		default:
			return nil, valueError(key, value, "ON, OFF or TOGGLE")
		}
		if err := ep.Command(ctx, "genOnOff", cmd, nil, &definition.CommandOptions{DisableDefaultResponse: true}); err != nil {
			return nil, err
		}
		if cmd == "toggle" {
			// State follows from the device report.
			return &definition.EncodeResult{}, nil
		}
		return &definition.EncodeResult{State: map[string]any{"state": strings.ToUpper(cmd)}}, nil
	},
	ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
		_, err := ep.Read(ctx, "genOnOff", []string{"onOff"}, nil)
		return err
	},
}

// BrightnessSet moves genLevelCtrl to a level, switching on as needed.
var BrightnessSet = &definition.Encoder{
	Key: []string{"brightness"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
		v, ok := number(value)
		if !ok || v < 0 || v > 254 {
			return nil, valueError(key, value, "0-254")
		}
		transition := 0.0
		if meta != nil {
			if t, ok := number(meta.Message["transition"]); ok {
				transition = t
			}
		}
		level := uint8(math.Round(v))
		err := ep.Command(ctx, "genLevelCtrl", "moveToLevelWithOnOff", map[string]any{
			"level":     level,
			"transtime": uint16(transition * 10),
		}, &definition.CommandOptions{DisableDefaultResponse: true})
		if err != nil {
			return nil, err
		}
		state := "ON"
		if level == 0 {
			state = "OFF"
		}
		return &definition.EncodeResult{State: map[string]any{"brightness": level, "state": state}}, nil
	},
	ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
		_, err := ep.Read(ctx, "genLevelCtrl", []string{"currentLevel"}, nil)
		return err
	},
}

// ThermostatSetpoint writes occupiedHeatingSetpoint in 0.01 °C.
var ThermostatSetpoint = &definition.Encoder{
	Key: []string{"occupied_heating_setpoint"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		v, ok := number(value)
		if !ok {
			return nil, valueError(key, value, "a number")
		}
		raw := int16(math.Round(v * 100))
		if err := ep.Write(ctx, "hvacThermostat", map[string]any{"occupiedHeatingSetpoint": raw}, nil); err != nil {
			return nil, err
		}
		return &definition.EncodeResult{State: map[string]any{key: v}}, nil
	},
	ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
		_, err := ep.Read(ctx, "hvacThermostat", []string{"occupiedHeatingSetpoint"}, nil)
		return err
	},
}

// ThermostatSystemMode writes systemMode by name.
var ThermostatSystemMode = &definition.Encoder{
	Key: []string{"system_mode"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		s, _ := value.(string)
		mode, ok := systemModes[strings.ToLower(s)]
		if !ok {
			return nil, valueError(key, value, "off, auto, cool or heat")
		}
		if err := ep.Write(ctx, "hvacThermostat", map[string]any{"systemMode": mode}, nil); err != nil {
			return nil, err
		}
		return &definition.EncodeResult{State: map[string]any{key: strings.ToLower(s)}}, nil
	},
	ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
		_, err := ep.Read(ctx, "hvacThermostat", []string{"systemMode"}, nil)
		return err
	},
}

// LocalTemperatureGet reads the thermostat temperature on demand.
var LocalTemperatureGet = &definition.Encoder{
	Key: []string{"local_temperature"},
	ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
		_, err := ep.Read(ctx, "hvacThermostat", []string{"localTemp"}, nil)
		return err
	},
}

// BatteryGet reads battery percentage and voltage on demand.
var BatteryGet = &definition.Encoder{
	Key: []string{"battery", "voltage"},
	ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
		_, err := ep.Read(ctx, "genPowerCfg", []string{"batteryPercentageRemaining", "batteryVoltage"}, nil)
		return err
	},
}

// Identify starts identify mode for the given number of seconds.
var Identify = &definition.Encoder{
	Key: []string{"identify"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		secs := 3.0
		if v, ok := number(value); ok {
			secs = v
		} else if s, _ := value.(string); s != "identify" {
			return nil, valueError(key, value, "a number of seconds")
		}
		return &definition.EncodeResult{}, ep.Command(ctx, "genIdentify", "identify",
			map[string]any{"identifytime": uint16(secs)}, &definition.CommandOptions{DisableDefaultResponse: true})
	},
}
