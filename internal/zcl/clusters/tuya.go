package clusters

import "zigbee-go-converters/internal/zcl"

// TuyaCluster carries the Tuya datapoint sub-protocol. Payloads are
// vendor-framed and sent as raw bytes.
var TuyaCluster = zcl.ClusterDef{
	ID:   0xEF00,
	Name: "manuSpecificTuya",
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "dataRequest", Direction: zcl.DirectionToServer},
		{ID: 0x03, Name: "dataQuery", Direction: zcl.DirectionToServer},
		{ID: 0x04, Name: "sendData", Direction: zcl.DirectionToServer},
		{ID: 0x10, Name: "mcuVersionRequest", Direction: zcl.DirectionToServer},
		{ID: 0x24, Name: "mcuSyncTime", Direction: zcl.DirectionToServer},
		{ID: 0x25, Name: "mcuGatewayConnectionStatus", Direction: zcl.DirectionToServer},

		{ID: 0x01, Name: "dataResponse", Direction: zcl.DirectionToClient},
		{ID: 0x02, Name: "dataReport", Direction: zcl.DirectionToClient},
		{ID: 0x05, Name: "activeStatusReportAlt", Direction: zcl.DirectionToClient},
		{ID: 0x06, Name: "activeStatusReport", Direction: zcl.DirectionToClient},
		{ID: 0x11, Name: "mcuVersionResponse", Direction: zcl.DirectionToClient},
		{ID: 0x24, Name: "mcuSyncTime", Direction: zcl.DirectionToClient},
		{ID: 0x25, Name: "mcuGatewayConnectionStatus", Direction: zcl.DirectionToClient},
	},
}
