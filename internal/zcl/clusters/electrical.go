package clusters

import "zigbee-go-converters/internal/zcl"

var Thermostat = zcl.ClusterDef{
	ID:   0x0201,
	Name: "hvacThermostat",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "localTemp", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0010, Name: "localTemperatureCalibration", Type: zcl.TypeInt8, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0012, Name: "occupiedHeatingSetpoint", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessWrite | zcl.AccessReport},
		{ID: 0x001C, Name: "systemMode", Type: zcl.TypeEnum8, Access: zcl.AccessRead | zcl.AccessWrite},
	},
}

var ElectricalMeasurement = zcl.ClusterDef{
	ID:   0x0B04,
	Name: "haElectricalMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0505, Name: "rmsVoltage", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0508, Name: "rmsCurrent", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x050B, Name: "activePower", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0600, Name: "acVoltageMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0601, Name: "acVoltageDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
	},
}

var Metering = zcl.ClusterDef{
	ID:   0x0702,
	Name: "seMetering",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentSummDelivered", Type: zcl.TypeUint48, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0301, Name: "multiplier", Type: zcl.TypeUint24, Access: zcl.AccessRead},
		{ID: 0x0302, Name: "divisor", Type: zcl.TypeUint24, Access: zcl.AccessRead},
	},
}
