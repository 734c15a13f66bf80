// Package extend provides modern-extend fragments for standard ZCL
// clusters. Each fragment bundles decoders, encoders, exposes and the
// bind/reporting setup for one feature.
package extend

import (
	"context"
	"fmt"
	"slices"

	"zigbee-go-converters/internal/converters"
	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
)

// Cluster IDs used for binding and by the generator.
const (
	ClusterBasic       uint16 = 0x0000
	ClusterPowerCfg    uint16 = 0x0001
	ClusterIdentify    uint16 = 0x0003
	ClusterOnOff       uint16 = 0x0006
	ClusterLevelCtrl   uint16 = 0x0008
	ClusterThermostat  uint16 = 0x0201
	ClusterIlluminance uint16 = 0x0400
	ClusterTemperature uint16 = 0x0402
	ClusterPressure    uint16 = 0x0403
	ClusterHumidity    uint16 = 0x0405
	ClusterOccupancy   uint16 = 0x0406
	ClusterIASZone     uint16 = 0x0500
	ClusterMetering    uint16 = 0x0702
	ClusterElectrical  uint16 = 0x0B04
	ClusterTuya        uint16 = 0xEF00
)

// Reporting is the bind and reporting setup for one cluster.
type Reporting struct {
	ClusterID uint16
	Cluster   string
	Items     []definition.ReportingItem
}

// configureReporting binds each reporting cluster on every endpoint that
// serves it and configures attribute reporting. Benign vendor errors are
// ignored.
func configureReporting(reports ...Reporting) definition.ConfigureFunc {
	return func(ctx context.Context, dev *definition.Device, coordinatorEndpoint uint8, _ *definition.Definition) error {
		for _, rep := range reports {
			for _, desc := range dev.Endpoints {
				if !desc.SupportsInput(rep.ClusterID) {
					continue
				}
				ep := dev.GetEndpoint(desc.ID)
				if ep == nil {
					continue
				}
				if err := definition.IgnoreBenign(ep.Bind(ctx, rep.Cluster, coordinatorEndpoint)); err != nil {
					return fmt.Errorf("bind %s on endpoint %d: %w", rep.Cluster, desc.ID, err)
				}
				if len(rep.Items) == 0 {
					continue
				}
				if err := definition.IgnoreBenign(ep.ConfigureReporting(ctx, rep.Cluster, rep.Items, nil)); err != nil {
					return fmt.Errorf("configure reporting %s on endpoint %d: %w", rep.Cluster, desc.ID, err)
				}
			}
		}
		return nil
	}
}

// bindOutput binds a client cluster so remote commands reach the hub.
func bindOutput(clusterID uint16, cluster string) definition.ConfigureFunc {
	return func(ctx context.Context, dev *definition.Device, coordinatorEndpoint uint8, _ *definition.Definition) error {
		for _, desc := range dev.Endpoints {
			if !desc.SupportsOutput(clusterID) {
				continue
			}
			if ep := dev.GetEndpoint(desc.ID); ep != nil {
				if err := definition.IgnoreBenign(ep.Bind(ctx, cluster, coordinatorEndpoint)); err != nil {
					return fmt.Errorf("bind %s on endpoint %d: %w", cluster, desc.ID, err)
				}
			}
		}
		return nil
	}
}

func item(attr string, lo, hi uint16, change any) definition.ReportingItem {
	return definition.ReportingItem{Attribute: attr, MinInterval: lo, MaxInterval: hi, ReportableChange: change}
}

// DeviceEndpoints names the endpoints of a multi-endpoint device. Decoders
// then suffix properties with the endpoint name.
func DeviceEndpoints(endpoints map[string]uint8) definition.ModernExtend {
	return definition.ModernExtend{
		IsModernExtend: true,
		Endpoint: func(*definition.Device) map[string]uint8 {
			return endpoints
		},
		Meta: definition.Meta{"multiEndpoint": true},
	}
}

// OnOffArgs tunes OnOff.
type OnOffArgs struct {
	// Endpoints lists endpoint names getting their own switch expose.
	Endpoints []string
	// SkipReporting leaves reporting unconfigured for devices that report
	// on their own.
	SkipReporting bool
}

// OnOff exposes switch state on genOnOff.
func OnOff(args OnOffArgs) definition.ModernExtend {
	ext := definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.OnOff},
		Encoders:       []*definition.Encoder{converters.OnOffSet},
	}
	if len(args.Endpoints) == 0 {
		ext.Exposes = []*exposes.Expose{exposes.Switch()}
	}
	for _, name := range args.Endpoints {
		ext.Exposes = append(ext.Exposes, exposes.Switch().WithEndpoint(name))
	}
	if !args.SkipReporting {
		ext.Configure = []definition.ConfigureFunc{configureReporting(Reporting{
			ClusterID: ClusterOnOff, Cluster: "genOnOff",
			Items: []definition.ReportingItem{item("onOff", 0, 3600, nil)},
		})}
	}
	return ext
}

// Light exposes a dimmable or plain light.
func Light(brightness bool) definition.ModernExtend {
	ext := definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.OnOff},
		Encoders:       []*definition.Encoder{converters.OnOffSet},
		Exposes:        []*exposes.Expose{exposes.Light(brightness)},
	}
	reports := []Reporting{{
		ClusterID: ClusterOnOff, Cluster: "genOnOff",
		Items: []definition.ReportingItem{item("onOff", 0, 3600, nil)},
	}}
	if brightness {
		ext.Decoders = append(ext.Decoders, converters.Brightness)
		ext.Encoders = append(ext.Encoders, converters.BrightnessSet)
		reports = append(reports, Reporting{
			ClusterID: ClusterLevelCtrl, Cluster: "genLevelCtrl",
			Items: []definition.ReportingItem{item("currentLevel", 5, 3600, 1)},
		})
	}
	ext.Configure = []definition.ConfigureFunc{configureReporting(reports...)}
	return ext
}

// BatteryArgs tunes Battery.
type BatteryArgs struct {
	Percentage bool
	Voltage    bool
	Low        bool
	// DontDividePercentage marks firmware reporting 0-100 instead of 0-200.
	DontDividePercentage bool
}

// Battery exposes genPowerCfg battery state.
func Battery(args BatteryArgs) definition.ModernExtend {
	if !args.Percentage && !args.Voltage && !args.Low {
		args.Percentage = true
	}
	ext := definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.Battery},
		Encoders:       []*definition.Encoder{converters.BatteryGet},
	}
	var items []definition.ReportingItem
	if args.Percentage {
		ext.Exposes = append(ext.Exposes, exposes.Battery())
		items = append(items, item("batteryPercentageRemaining", 3600, 65000, 10))
	}
	if args.Voltage {
		ext.Exposes = append(ext.Exposes, exposes.BatteryVoltage())
		items = append(items, item("batteryVoltage", 3600, 65000, 1))
	}
	if args.Low {
		ext.Exposes = append(ext.Exposes, exposes.BatteryLow())
	}
	if args.DontDividePercentage {
		ext.Meta = definition.Meta{"batteryDontDividePercentage": true}
	}
	ext.Configure = []definition.ConfigureFunc{configureReporting(Reporting{
		ClusterID: ClusterPowerCfg, Cluster: "genPowerCfg", Items: items,
	})}
	return ext
}

func measurement(clusterID uint16, cluster string, dec *definition.Decoder, e *exposes.Expose, change any) definition.ModernExtend {
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{dec},
		Exposes:        []*exposes.Expose{e},
		Configure: []definition.ConfigureFunc{configureReporting(Reporting{
			ClusterID: clusterID, Cluster: cluster,
			Items: []definition.ReportingItem{item("measuredValue", 10, 3600, change)},
		})},
	}
}

// Temperature exposes msTemperatureMeasurement.
func Temperature() definition.ModernExtend {
	return measurement(ClusterTemperature, "msTemperatureMeasurement", converters.Temperature, exposes.Temperature(), 100)
}

// Humidity exposes msRelativeHumidity.
func Humidity() definition.ModernExtend {
	return measurement(ClusterHumidity, "msRelativeHumidity", converters.Humidity, exposes.Humidity(), 100)
}

// Pressure exposes msPressureMeasurement.
func Pressure() definition.ModernExtend {
	e := exposes.Numeric("pressure", exposes.AccessStateGet).WithUnit("hPa").
		WithDescription("The measured atmospheric pressure")
	return measurement(ClusterPressure, "msPressureMeasurement", converters.Pressure, e, 1)
}

// Illuminance exposes msIlluminanceMeasurement.
func Illuminance() definition.ModernExtend {
	return measurement(ClusterIlluminance, "msIlluminanceMeasurement", converters.Illuminance, exposes.Illuminance(), 5)
}

// Occupancy exposes msOccupancySensing. With timeout set, occupancy is
// cleared after occupancy_timeout for sensors that never report false.
func Occupancy(timeout bool) definition.ModernExtend {
	dec := converters.Occupancy
	if timeout {
		dec = converters.OccupancyTimeout
	}
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{dec},
		Exposes:        []*exposes.Expose{exposes.Occupancy()},
		Configure: []definition.ConfigureFunc{configureReporting(Reporting{
			ClusterID: ClusterOccupancy, Cluster: "msOccupancySensing",
			Items: []definition.ReportingItem{item("occupancy", 0, 3600, nil)},
		})},
	}
}

// IASZone exposes an IAS zone alarm under the given property name
// (contact, occupancy, water_leak, ...), plus tamper and battery_low.
func IASZone(alarm string) definition.ModernExtend {
	var e *exposes.Expose
	if p, ok := exposes.Preset(alarm); ok && p.Type == exposes.TypeBinary {
		e = p
	} else {
		e = exposes.Binary(alarm, exposes.AccessState, true, false).
			WithDescription("Indicates whether the zone is alarmed")
	}
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.IASZone(alarm)},
		Exposes:        []*exposes.Expose{e, exposes.Tamper(), exposes.BatteryLow()},
		Configure: []definition.ConfigureFunc{configureReporting(Reporting{
			ClusterID: ClusterIASZone, Cluster: "ssIasZone",
		})},
	}
}

// Identify exposes the identify trigger.
func Identify() definition.ModernExtend {
	return definition.ModernExtend{
		IsModernExtend: true,
		Encoders:       []*definition.Encoder{converters.Identify},
		Exposes: []*exposes.Expose{
			exposes.Enum("identify", exposes.AccessSet, []string{"identify"}).
				WithDescription("Initiate device identification").
				WithCategory(exposes.CategoryConfig),
		},
	}
}

// CommandsOnOff exposes genOnOff commands sent by a remote as actions.
func CommandsOnOff() definition.ModernExtend {
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.CommandOnOff},
		Exposes:        []*exposes.Expose{exposes.Action([]string{"on", "off", "toggle"})},
		Configure:      []definition.ConfigureFunc{bindOutput(ClusterOnOff, "genOnOff")},
	}
}

// ElectricityMeter exposes power, voltage, current and energy.
func ElectricityMeter() definition.ModernExtend {
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.Electrical, converters.Metering},
		Exposes: []*exposes.Expose{
			exposes.Power(), exposes.Voltage(), exposes.Current(), exposes.Energy(),
		},
		Configure: []definition.ConfigureFunc{configureReporting(
			Reporting{ClusterID: ClusterElectrical, Cluster: "haElectricalMeasurement", Items: []definition.ReportingItem{
				item("activePower", 10, 3600, 5),
				item("rmsVoltage", 10, 3600, 5),
				item("rmsCurrent", 10, 3600, 50),
			}},
			Reporting{ClusterID: ClusterMetering, Cluster: "seMetering", Items: []definition.ReportingItem{
				item("currentSummDelivered", 10, 3600, 100),
			}},
		)},
	}
}

// Thermostat exposes a heating thermostat.
func Thermostat() definition.ModernExtend {
	setpoint := exposes.Numeric("occupied_heating_setpoint", exposes.AccessAll).WithUnit("°C").
		WithValueMin(5).WithValueMax(30).WithValueStep(0.5).
		WithDescription("Temperature setpoint")
	mode := exposes.Enum("system_mode", exposes.AccessAll, []string{"off", "auto", "heat"}).
		WithDescription("Mode of this device")
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.Thermostat},
		Encoders: []*definition.Encoder{
			converters.ThermostatSetpoint, converters.ThermostatSystemMode, converters.LocalTemperatureGet,
		},
		Exposes: []*exposes.Expose{exposes.Climate(exposes.LocalTemperature(), setpoint, mode)},
		Configure: []definition.ConfigureFunc{configureReporting(Reporting{
			ClusterID: ClusterThermostat, Cluster: "hvacThermostat", Items: []definition.ReportingItem{
				item("localTemp", 10, 3600, 10),
				item("occupiedHeatingSetpoint", 0, 3600, 10),
			},
		})},
	}
}

// LumiBasic decodes the Xiaomi/Aqara heartbeat in genBasic.
func LumiBasic(contact bool) definition.ModernExtend {
	deviceTemp := exposes.Numeric("device_temperature", exposes.AccessState).WithUnit("°C").
		WithDescription("Temperature of the device").WithCategory(exposes.CategoryDiagnostic)
	outages := exposes.Numeric("power_outage_count", exposes.AccessState).
		WithDescription("Number of power outages").WithCategory(exposes.CategoryDiagnostic)
	return definition.ModernExtend{
		IsModernExtend: true,
		Decoders:       []*definition.Decoder{converters.LumiSpecific(contact)},
		Exposes:        []*exposes.Expose{exposes.Battery(), exposes.BatteryVoltage(), deviceTemp, outages},
	}
}

// ClusterNames maps the cluster IDs above to names.
var ClusterNames = map[uint16]string{
	ClusterBasic:       "genBasic",
	ClusterPowerCfg:    "genPowerCfg",
	ClusterIdentify:    "genIdentify",
	ClusterOnOff:       "genOnOff",
	ClusterLevelCtrl:   "genLevelCtrl",
	ClusterThermostat:  "hvacThermostat",
	ClusterIlluminance: "msIlluminanceMeasurement",
	ClusterTemperature: "msTemperatureMeasurement",
	ClusterPressure:    "msPressureMeasurement",
	ClusterHumidity:    "msRelativeHumidity",
	ClusterOccupancy:   "msOccupancySensing",
	ClusterIASZone:     "ssIasZone",
	ClusterMetering:    "seMetering",
	ClusterElectrical:  "haElectricalMeasurement",
	ClusterTuya:        "manuSpecificTuya",
}

func sortedNames(m map[string]uint8) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
