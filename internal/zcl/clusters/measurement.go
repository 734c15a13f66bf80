package clusters

import "zigbee-go-converters/internal/zcl"

var TemperatureMeasurement = zcl.ClusterDef{
	ID:   0x0402,
	Name: "msTemperatureMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0001, Name: "minMeasuredValue", Type: zcl.TypeInt16, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "maxMeasuredValue", Type: zcl.TypeInt16, Access: zcl.AccessRead},
	},
}

var PressureMeasurement = zcl.ClusterDef{
	ID:   0x0403,
	Name: "msPressureMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessReport},
	},
}

var RelativeHumidity = zcl.ClusterDef{
	ID:   0x0405,
	Name: "msRelativeHumidity",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
	},
}

var IlluminanceMeasurement = zcl.ClusterDef{
	ID:   0x0400,
	Name: "msIlluminanceMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
	},
}

var OccupancySensing = zcl.ClusterDef{
	ID:   0x0406,
	Name: "msOccupancySensing",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "occupancy", Type: zcl.TypeBitmap8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0010, Name: "pirOToUDelay", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite},
	},
}

var IASZone = zcl.ClusterDef{
	ID:   0x0500,
	Name: "ssIasZone",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zoneState", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "zoneType", Type: zcl.TypeEnum16, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "zoneStatus", Type: zcl.TypeBitmap16, Access: zcl.AccessRead},
		{ID: 0x0010, Name: "iasCieAddr", Type: zcl.TypeEUI64, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "enrollRsp", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "enrollrspcode", Type: zcl.TypeUint8}, {Name: "zoneid", Type: zcl.TypeUint8},
		}},
		{ID: 0x00, Name: "statusChangeNotification", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "zonestatus", Type: zcl.TypeBitmap16}, {Name: "extendedstatus", Type: zcl.TypeBitmap8},
		}},
	},
}
