// Package converters holds generic decoders and encoders for standard ZCL
// clusters and the encoder tail appended to every definition.
package converters

import (
	"math"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
)

// Message types produced by the hub.
const (
	TypeAttributeReport = "attributeReport"
	TypeReadResponse    = "readResponse"
)

var attributeTypes = []string{TypeAttributeReport, TypeReadResponse}

// attrs returns the attribute map of a report or read response.
func attrs(msg *definition.Message) map[string]any {
	m, _ := msg.Data.(map[string]any)
	return m
}

// postfix returns "_<name>" when the definition is multi-endpoint and the
// message endpoint has a name.
func postfix(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) string {
	if def == nil || def.Endpoint == nil || !def.Meta.Bool("multiEndpoint") || meta == nil {
		return ""
	}
	for name, id := range def.Endpoint(meta.Device) {
		if id == msg.Endpoint {
			return "_" + name
		}
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// OnOff decodes genOnOff onOff into state.
var OnOff = &definition.Decoder{
	Cluster: "genOnOff",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		v, ok := number(attrs(msg)["onOff"])
		if !ok {
			return nil, nil
		}
		state := "OFF"
		if v == 1 {
			state = "ON"
		}
		return map[string]any{"state" + postfix(def, msg, meta): state}, nil
	},
}

// Brightness decodes genLevelCtrl currentLevel.
var Brightness = &definition.Decoder{
	Cluster: "genLevelCtrl",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		v, ok := number(attrs(msg)["currentLevel"])
		if !ok {
			return nil, nil
		}
		return map[string]any{"brightness" + postfix(def, msg, meta): v}, nil
	},
}

// Battery decodes genPowerCfg percentage, voltage and alarm state.
var Battery = &definition.Decoder{
	Cluster: "genPowerCfg",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, _ *definition.DecodeMeta) (map[string]any, error) {
		a := attrs(msg)
		out := map[string]any{}
		if v, ok := number(a["batteryPercentageRemaining"]); ok && v != 0xFF {
			pct := math.Round(v / 2)
			if def != nil && def.Meta.Bool("batteryDontDividePercentage") {
				pct = v
			}
			out["battery"] = math.Min(100, pct)
		}
		if v, ok := number(a["batteryVoltage"]); ok && v != 0xFF {
			out["voltage"] = v * 100
		}
		if v, ok := number(a["batteryAlarmState"]); ok {
			out["battery_low"] = uint32(v)&0x1 != 0
		}
		return out, nil
	},
}

func measurement(cluster, attribute, name string, divisor float64) *definition.Decoder {
	return &definition.Decoder{
		Cluster: cluster,
		Types:   attributeTypes,
		Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
			v, ok := number(attrs(msg)[attribute])
			if !ok {
				return nil, nil
			}
			value := v / divisor
			if meta != nil {
				value = meta.Calibrate(name, value)
			}
			return map[string]any{name + postfix(def, msg, meta): value}, nil
		},
	}
}

// Temperature decodes msTemperatureMeasurement in °C.
var Temperature = measurement("msTemperatureMeasurement", "measuredValue", "temperature", 100)

// Humidity decodes msRelativeHumidity in %.
var Humidity = measurement("msRelativeHumidity", "measuredValue", "humidity", 100)

// Pressure decodes msPressureMeasurement in hPa.
var Pressure = measurement("msPressureMeasurement", "measuredValue", "pressure", 1)

// Illuminance decodes msIlluminanceMeasurement into lux.
var Illuminance = &definition.Decoder{
	Cluster: "msIlluminanceMeasurement",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		v, ok := number(attrs(msg)["measuredValue"])
		if !ok {
			return nil, nil
		}
		lux := 0.0
		if v > 0 {
			lux = math.Pow(10, (v-1)/10000)
		}
		if meta != nil {
			lux = meta.Calibrate("illuminance", lux)
		}
		return map[string]any{"illuminance" + postfix(def, msg, meta): lux}, nil
	},
}

// Occupancy decodes msOccupancySensing bit 0.
var Occupancy = &definition.Decoder{
	Cluster: "msOccupancySensing",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		v, ok := number(attrs(msg)["occupancy"])
		if !ok {
			return nil, nil
		}
		return map[string]any{"occupancy" + postfix(def, msg, meta): uint8(v)&1 == 1}, nil
	},
}

// IASZone decodes zone status change notifications. alarm names the
// property for alarm1 (contact is reported inverted).
func IASZone(alarm string) *definition.Decoder {
	return &definition.Decoder{
		Cluster: "ssIasZone",
		Types:   []string{"commandStatusChangeNotification", TypeAttributeReport, TypeReadResponse},
		Convert: func(_ *definition.Definition, msg *definition.Message, _ *definition.DecodeMeta) (map[string]any, error) {
			data, _ := msg.Data.(map[string]any)
			raw, ok := data["zonestatus"]
			if !ok {
				raw, ok = data["zoneStatus"]
			}
			v, ok2 := number(raw)
			if !ok || !ok2 {
				return nil, nil
			}
			status := uint16(v)
			alarmed := status&0x1 != 0
			if alarm == "contact" {
				alarmed = !alarmed
			}
			return map[string]any{
				alarm:         alarmed,
				"tamper":      status&0x4 != 0,
				"battery_low": status&0x8 != 0,
			}, nil
		},
	}
}

// Thermostat decodes hvacThermostat attributes.
var Thermostat = &definition.Decoder{
	Cluster: "hvacThermostat",
	Types:   attributeTypes,
	Convert: func(_ *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		a := attrs(msg)
		out := map[string]any{}
		if v, ok := number(a["localTemp"]); ok {
			t := v / 100
			if meta != nil {
				t = meta.Calibrate("local_temperature", t)
			}
			out["local_temperature"] = t
		}
		if v, ok := number(a["occupiedHeatingSetpoint"]); ok {
			out["occupied_heating_setpoint"] = v / 100
		}
		if v, ok := number(a["localTemperatureCalibration"]); ok {
			out["local_temperature_calibration"] = v / 10
		}
		if v, ok := number(a["systemMode"]); ok {
			for name, id := range systemModes {
				if float64(id) == v {
					out["system_mode"] = name
				}
			}
		}
		return out, nil
	},
}

var systemModes = map[string]uint8{"off": 0, "auto": 1, "cool": 3, "heat": 4}

// Electrical decodes haElectricalMeasurement assuming the common
// W / V / mA units.
var Electrical = &definition.Decoder{
	Cluster: "haElectricalMeasurement",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		a := attrs(msg)
		out := map[string]any{}
		p := postfix(def, msg, meta)
		put := func(attr, name string, divisor float64) {
			if v, ok := number(a[attr]); ok {
				value := v / divisor
				if meta != nil {
					value = meta.Calibrate(name, value)
				}
				out[name+p] = value
			}
		}
		put("activePower", "power", 1)
		put("rmsVoltage", "voltage", 1)
		put("rmsCurrent", "current", 1000)
		return out, nil
	},
}

// Metering decodes seMetering energy in kWh.
var Metering = &definition.Decoder{
	Cluster: "seMetering",
	Types:   attributeTypes,
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		v, ok := number(attrs(msg)["currentSummDelivered"])
		if !ok {
			return nil, nil
		}
		energy := v / 1000
		if meta != nil {
			energy = meta.Calibrate("energy", energy)
		}
		return map[string]any{"energy" + postfix(def, msg, meta): energy}, nil
	},
}

// CommandOnOff turns genOnOff commands sent by remotes into actions.
var CommandOnOff = &definition.Decoder{
	Cluster: "genOnOff",
	Types:   []string{"commandOn", "commandOff", "commandToggle"},
	Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		action := map[string]string{"commandOn": "on", "commandOff": "off", "commandToggle": "toggle"}[msg.Type]
		return map[string]any{"action": action + postfix(def, msg, meta)}, nil
	},
}

// OccupancyTimeoutOption tunes OccupancyTimeout.
var OccupancyTimeoutOption = exposes.Numeric("occupancy_timeout", exposes.AccessSet).
	WithValueMin(0).WithUnit("s").
	WithDescription("Time in seconds after which occupancy is cleared after detecting it (default 90 seconds).")
