package converters

import (
	"fmt"
	"time"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
	"zigbee-go-converters/internal/zcl"
)

// DecodeLumiTLV parses the Xiaomi/Aqara structure reported in genBasic
// 0xFF01: repeated [tag:uint8][zcl_type:uint8][value].
func DecodeLumiTLV(data []byte) (map[int]any, error) {
	result := make(map[int]any)
	pos := 0
	for pos+2 <= len(data) {
		tag := int(data[pos])
		typeID := data[pos+1]
		pos += 2

		val, consumed, err := zcl.DecodeValue(typeID, data[pos:])
		if err != nil {
			return result, fmt.Errorf("tag %d type 0x%02X at offset %d: %w", tag, typeID, pos, err)
		}
		result[tag] = val
		pos += consumed
	}
	return result, nil
}

// LumiBatteryPercentage converts a millivolt reading to percent:
// 2850 mV is 0 %, 3000 mV is 100 %, linear and clamped.
func LumiBatteryPercentage(mv float64) float64 {
	const minMV, maxMV = 2850, 3000
	pct := (mv - minMV) / (maxMV - minMV) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return float64(int(pct))
}

// LumiSpecific decodes the genBasic lumiSpecific structure: battery
// voltage (tag 1), device temperature (tag 3), power outages (tag 5) and
// the contact/state tag 100 when contact is set.
func LumiSpecific(contact bool) *definition.Decoder {
	return &definition.Decoder{
		Cluster: "genBasic",
		Types:   attributeTypes,
		Convert: func(_ *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
			var data []byte
			switch v := attrs(msg)["lumiSpecific"].(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				return nil, nil
			}
			tlv, err := DecodeLumiTLV(data)
			if err != nil && len(tlv) == 0 {
				return nil, err
			}
			out := map[string]any{}
			if mv, ok := number(tlv[1]); ok {
				out["voltage"] = mv
				out["battery"] = LumiBatteryPercentage(mv)
			}
			if t, ok := number(tlv[3]); ok {
				out["device_temperature"] = t
			}
			if n, ok := number(tlv[5]); ok {
				out["power_outage_count"] = n - 1
			}
			if contact {
				if b, ok := tlv[100].(bool); ok {
					out["contact"] = !b
				}
			}
			if err != nil && meta != nil && meta.Logger != nil {
				meta.Logger.Debug("lumi structure truncated", "err", err)
			}
			return out, nil
		},
	}
}

const occupancyTimerKey = "occupancyTimer"

// OccupancyTimeout decodes occupancy for sensors that only report
// detection and clears it after occupancy_timeout seconds (default 90)
// via the publish callback.
var OccupancyTimeout = &definition.Decoder{
	Cluster: "msOccupancySensing",
	Types:   attributeTypes,
	Options: []*exposes.Expose{OccupancyTimeoutOption},
	Convert: func(_ *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
		v, ok := number(attrs(msg)["occupancy"])
		if !ok || uint8(v)&1 == 0 {
			return nil, nil
		}
		timeout := 90.0
		if meta != nil {
			if t, ok := meta.Options.Float("occupancy_timeout"); ok {
				timeout = t
			}
		}
		if timeout > 0 && meta != nil && meta.Store != nil && meta.Device != nil && meta.Publish != nil {
			publish := meta.Publish
			meta.Store.Put(meta.Device.IEEEAddr, occupancyTimerKey, time.AfterFunc(time.Duration(timeout*float64(time.Second)), func() {
				publish(map[string]any{"occupancy": false})
			}))
		}
		return map[string]any{"occupancy": true}, nil
	},
}
