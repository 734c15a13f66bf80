package clusters

import "zigbee-go-converters/internal/zcl"

var Basic = zcl.ClusterDef{
	ID:   0x0000,
	Name: "genBasic",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zclVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "appVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "stackVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "hwVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0004, Name: "manufacturerName", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0005, Name: "modelId", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0006, Name: "dateCode", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0007, Name: "powerSource", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x4000, Name: "swBuildId", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0xFF01, Name: "lumiSpecific", Type: zcl.TypeCharStr, Access: zcl.AccessReport},
		{ID: 0xFFFE, Name: "tuyaAttributeReportingStatus", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "resetFactDefault", Direction: zcl.DirectionToServer},
	},
}

var PowerConfiguration = zcl.ClusterDef{
	ID:   0x0001,
	Name: "genPowerCfg",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0020, Name: "batteryVoltage", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0021, Name: "batteryPercentageRemaining", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0035, Name: "batteryAlarmMask", Type: zcl.TypeBitmap8, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x003E, Name: "batteryAlarmState", Type: zcl.TypeBitmap32, Access: zcl.AccessRead | zcl.AccessReport},
	},
}

var Identify = zcl.ClusterDef{
	ID:   0x0003,
	Name: "genIdentify",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "identifyTime", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "identify", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "identifytime", Type: zcl.TypeUint16},
		}},
	},
}

var Scenes = zcl.ClusterDef{
	ID:   0x0005,
	Name: "genScenes",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "count", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "currentScene", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0002, Name: "currentGroup", Type: zcl.TypeUint16, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x02, Name: "remove", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "groupid", Type: zcl.TypeUint16}, {Name: "sceneid", Type: zcl.TypeUint8},
		}},
		{ID: 0x03, Name: "removeAll", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "groupid", Type: zcl.TypeUint16},
		}},
		{ID: 0x04, Name: "store", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "groupid", Type: zcl.TypeUint16}, {Name: "sceneid", Type: zcl.TypeUint8},
		}},
		{ID: 0x05, Name: "recall", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "groupid", Type: zcl.TypeUint16}, {Name: "sceneid", Type: zcl.TypeUint8},
		}},
	},
}

var OnOff = zcl.ClusterDef{
	ID:   0x0006,
	Name: "genOnOff",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "onOff", Type: zcl.TypeBool, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x4003, Name: "startUpOnOff", Type: zcl.TypeEnum8, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x8001, Name: "tuyaBacklightMode", Type: zcl.TypeEnum8, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x8002, Name: "moesStartUpOnOff", Type: zcl.TypeEnum8, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "off", Direction: zcl.DirectionToServer},
		{ID: 0x01, Name: "on", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "toggle", Direction: zcl.DirectionToServer},
	},
}

var LevelControl = zcl.ClusterDef{
	ID:   0x0008,
	Name: "genLevelCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0010, Name: "onOffTransitionTime", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x4000, Name: "startUpCurrentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "moveToLevel", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "level", Type: zcl.TypeUint8}, {Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x04, Name: "moveToLevelWithOnOff", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "level", Type: zcl.TypeUint8}, {Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x07, Name: "stop", Direction: zcl.DirectionToServer},
	},
}

var Time = zcl.ClusterDef{
	ID:   0x000A,
	Name: "genTime",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "time", Type: zcl.TypeUTC, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0001, Name: "timeStatus", Type: zcl.TypeBitmap8, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0002, Name: "timeZone", Type: zcl.TypeInt32, Access: zcl.AccessRead | zcl.AccessWrite},
		{ID: 0x0007, Name: "localTime", Type: zcl.TypeUint32, Access: zcl.AccessRead},
	},
}
