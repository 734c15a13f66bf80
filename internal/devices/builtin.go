// Package devices holds the built-in device definitions and loads
// declarative definition files.
package devices

import (
	"fmt"
	"time"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
	"zigbee-go-converters/internal/extend"
	"zigbee-go-converters/internal/tuya"
)

var fp = definition.ModelFingerprints

// Builtin returns the built-in declarations in registration order.
func Builtin() []*definition.Declaration {
	return []*definition.Declaration{
		tuyaPIR(),
		tuyaThermostat(),
		tuyaTempHumidity(),
		tuyaTwoGang(),
		tuyaEnergyMeter(),
		tuyaPlug(),
		lumiMotion(),
		lumiContact(),
	}
}

// Register composes and adds every built-in declaration.
func Register(reg *definition.Registry) error {
	for _, decl := range Builtin() {
		if _, err := reg.Add(decl); err != nil {
			return fmt.Errorf("built-in %s: %w", decl.Model, err)
		}
	}
	return nil
}

func tuyaPIR() *definition.Declaration {
	sensitivity := map[string]any{"low": 0, "medium": 1, "high": 2}
	keepTime := map[string]any{"10": 0, "30": 1, "60": 2, "120": 3}
	return &definition.Declaration{
		Model:       "ZG-204Z",
		Vendor:      "Tuya",
		Description: "PIR motion sensor",
		Fingerprint: fp("TS0601", "_TZE200_gjldowol"),
		Exposes: []*exposes.Expose{
			exposes.Occupancy(),
			exposes.Battery(),
			exposes.Enum("sensitivity", exposes.AccessStateSet, []string{"low", "medium", "high"}).
				WithDescription("PIR sensor sensitivity"),
			exposes.Enum("keep_time", exposes.AccessStateSet, []string{"10", "30", "60", "120"}).
				WithUnit("s").WithDescription("PIR keep time in seconds"),
		},
		Extend: []definition.ModernExtend{tuya.Base(tuya.BaseOptions{
			Datapoints: tuya.Table{
				{DP: 1, Name: "occupancy", Converter: tuya.TrueFalse(0)},
				{DP: 4, Name: "battery", Converter: tuya.Raw},
				{DP: 9, Name: "sensitivity", Converter: tuya.Lookup(sensitivity)},
				{DP: 10, Name: "keep_time", Converter: tuya.Lookup(keepTime)},
			},
		})},
	}
}

func tuyaThermostat() *definition.Declaration {
	setpoint := exposes.Numeric("current_heating_setpoint", exposes.AccessStateSet).WithUnit("°C").
		WithValueMin(5).WithValueMax(35).WithValueStep(0.5).
		WithDescription("Temperature setpoint")
	mode := exposes.Enum("system_mode", exposes.AccessStateSet, []string{"auto", "heat", "off"}).
		WithDescription("Mode of this device")
	calibration := exposes.Numeric("local_temperature_calibration", exposes.AccessStateSet).WithUnit("°C").
		WithValueMin(-9).WithValueMax(9).WithValueStep(1).
		WithDescription("Offset to add to the measured temperature")
	return &definition.Declaration{
		Model:       "TV02-Zigbee",
		Vendor:      "Tuya",
		Description: "Thermostatic radiator valve",
		Fingerprint: fp("TS0601", "_TZE200_hue3yfsn", "_TZE200_e9ba97vf", "_TZE200_husqqvux"),
		WhiteLabel: []definition.WhiteLabel{{
			Model: "TV02-Zigbee", Vendor: "Moes", Description: "Thermostatic radiator valve",
			Fingerprint: fp("TS0601", "_TZE200_e9ba97vf"),
		}},
		Exposes: []*exposes.Expose{
			exposes.Climate(exposes.LocalTemperature(), setpoint, mode, calibration),
			exposes.ChildLock(),
			exposes.BatteryLow(),
			exposes.Text("schedule_monday", exposes.AccessStateSet).
				WithDescription("Schedule as up to four HH:MM/TEMP periods"),
		},
		Extend: []definition.ModernExtend{tuya.Base(tuya.BaseOptions{
			QueryOnConfigure: true,
			MagicPacket:      true,
			Events:           tuya.EventOptions{TimeSyncInterval: time.Hour},
			Datapoints: tuya.Table{
				{DP: 2, Name: "system_mode", Converter: tuya.Lookup(map[string]any{"auto": 0, "heat": 1, "off": 2})},
				{DP: 16, Name: "current_heating_setpoint", Converter: tuya.DivideBy(10)},
				{DP: 24, Name: "local_temperature", Converter: tuya.Calibrated(tuya.DivideBy(10), "local_temperature")},
				{DP: 35, Name: "battery_low", Converter: tuya.TrueFalse(1)},
				{DP: 40, Name: "child_lock", Converter: tuya.LockUnlock},
				{DP: 104, Name: "local_temperature_calibration", Converter: tuya.LocalTemperatureCalibration},
				{DP: 110, Name: "schedule_monday", Converter: tuya.ScheduleDay(4, 5, 35)},
			},
		})},
	}
}

func tuyaTempHumidity() *definition.Declaration {
	return &definition.Declaration{
		Model:       "TS0601_temperature_humidity_sensor",
		Vendor:      "Tuya",
		Description: "Temperature and humidity sensor",
		Fingerprint: fp("TS0601", "_TZE200_bjawzodf", "_TZE200_zl1kmjqx"),
		Extend: []definition.ModernExtend{
			tuya.Base(tuya.BaseOptions{}),
			tuya.DPTemperature(1, 10),
			tuya.DPHumidity(2, 10),
			tuya.DPBattery(4),
		},
	}
}

func tuyaTwoGang() *definition.Declaration {
	return &definition.Declaration{
		Model:       "TS0601_switch_2_gang",
		Vendor:      "Tuya",
		Description: "2 gang switch",
		Fingerprint: fp("TS0601", "_TZE200_nkjintbl", "_TZE200_g1ib5ldv"),
		Extend: []definition.ModernExtend{
			extend.DeviceEndpoints(map[string]uint8{"l1": 1, "l2": 1}),
			tuya.Base(tuya.BaseOptions{}),
			tuya.DPOnOff(1, "l1"),
			tuya.DPOnOff(2, "l2"),
		},
	}
}

func tuyaEnergyMeter() *definition.Declaration {
	return &definition.Declaration{
		Model:       "DDS238-1Z",
		Vendor:      "Tuya",
		Description: "Single phase DIN rail energy meter",
		Fingerprint: fp("TS0601", "_TZE200_byzdayie"),
		Exposes: []*exposes.Expose{
			exposes.Switch(), exposes.Energy(), exposes.Voltage(), exposes.Current(), exposes.Power(),
		},
		Extend: []definition.ModernExtend{tuya.Base(tuya.BaseOptions{
			Datapoints: tuya.Table{
				{DP: 1, Name: "energy", Converter: tuya.DivideBy(100)},
				{DP: 6, Converter: tuya.PhaseVariant1},
				{DP: 16, Name: "state", Converter: tuya.OnOff},
			},
		})},
	}
}

func tuyaPlug() *definition.Declaration {
	return &definition.Declaration{
		Model:       "TS011F_plug_1",
		Vendor:      "Tuya",
		Description: "Smart plug (with power monitoring)",
		Fingerprint: fp("TS011F", "_TZ3000_typdpbpg", "_TZ3000_w0qqde0g", "_TZ3000_gjnozsaz"),
		Extend: []definition.ModernExtend{
			extend.OnOff(extend.OnOffArgs{}),
			extend.ElectricityMeter(),
			extend.Identify(),
		},
	}
}

func lumiMotion() *definition.Declaration {
	return &definition.Declaration{
		Model:       "RTCGQ01LM",
		Vendor:      "Xiaomi",
		Description: "MiJia human body movement sensor",
		ZigbeeModel: []string{"lumi.sensor_motion"},
		Extend: []definition.ModernExtend{
			extend.LumiBasic(false),
			extend.Occupancy(true),
		},
	}
}

func lumiContact() *definition.Declaration {
	return &definition.Declaration{
		Model:       "MCCGQ11LM",
		Vendor:      "Aqara",
		Description: "Door and window sensor",
		ZigbeeModel: []string{"lumi.sensor_magnet.aq2"},
		Exposes:     []*exposes.Expose{exposes.Contact()},
		Extend:      []definition.ModernExtend{extend.LumiBasic(true)},
	}
}
