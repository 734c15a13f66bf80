// Package clusters holds the ZCL cluster catalogue used for name lookups
// and attribute typing.
package clusters

import "zigbee-go-converters/internal/zcl"

// All lists every built-in cluster definition.
var All = []zcl.ClusterDef{
	Basic,                  // 0x0000
	PowerConfiguration,     // 0x0001
	Identify,               // 0x0003
	Scenes,                 // 0x0005
	OnOff,                  // 0x0006
	LevelControl,           // 0x0008
	Time,                   // 0x000A
	Thermostat,             // 0x0201
	IlluminanceMeasurement, // 0x0400
	TemperatureMeasurement, // 0x0402
	PressureMeasurement,    // 0x0403
	RelativeHumidity,       // 0x0405
	OccupancySensing,       // 0x0406
	IASZone,                // 0x0500
	Metering,               // 0x0702
	ElectricalMeasurement,  // 0x0B04
	TuyaCluster,            // 0xEF00
}

// RegisterAll registers the built-in catalogue into r.
func RegisterAll(r *zcl.Registry) {
	for _, c := range All {
		r.Register(c)
	}
}
