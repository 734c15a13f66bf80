package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs
const (
	TypeNoData     uint8 = 0x00
	TypeData8      uint8 = 0x08
	TypeBool       uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap24   uint8 = 0x1A
	TypeBitmap32   uint8 = 0x1B
	TypeUint8      uint8 = 0x20
	TypeUint16     uint8 = 0x21
	TypeUint24     uint8 = 0x22
	TypeUint32     uint8 = 0x23
	TypeUint40     uint8 = 0x24
	TypeUint48     uint8 = 0x25
	TypeInt8       uint8 = 0x28
	TypeInt16      uint8 = 0x29
	TypeInt24      uint8 = 0x2A
	TypeInt32      uint8 = 0x2B
	TypeEnum8      uint8 = 0x30
	TypeEnum16     uint8 = 0x31
	TypeFloat16    uint8 = 0x38
	TypeFloat32    uint8 = 0x39
	TypeFloat64    uint8 = 0x3A
	TypeOctetStr   uint8 = 0x41
	TypeCharStr    uint8 = 0x42
	TypeOctetStr16 uint8 = 0x43
	TypeCharStr16  uint8 = 0x44
	TypeArray      uint8 = 0x48
	TypeStruct     uint8 = 0x4C
	TypeToD        uint8 = 0xE0
	TypeDate       uint8 = 0xE1
	TypeUTC        uint8 = 0xE2
	TypeClusterID  uint8 = 0xE8
	TypeAttrID     uint8 = 0xE9
	TypeEUI64      uint8 = 0xF0
)

type valueKind uint8

const (
	kindUnsigned valueKind = iota
	kindSigned
	kindBool
	kindFloat
	kindString
	kindOctets
	kindEUI64
	kindOpaque
)

// typeInfo describes how a type is laid out on the wire. size is the fixed
// width, or the length-prefix width (1 or 2) for strings.
type typeInfo struct {
	name   string
	kind   valueKind
	size   int
	prefix bool
}

var types = map[uint8]typeInfo{
	TypeNoData:     {"nodata", kindOpaque, 0, false},
	TypeBool:       {"bool", kindBool, 1, false},
	TypeBitmap8:    {"map8", kindUnsigned, 1, false},
	TypeBitmap16:   {"map16", kindUnsigned, 2, false},
	TypeBitmap24:   {"map24", kindUnsigned, 3, false},
	TypeBitmap32:   {"map32", kindUnsigned, 4, false},
	TypeUint8:      {"uint8", kindUnsigned, 1, false},
	TypeUint16:     {"uint16", kindUnsigned, 2, false},
	TypeUint24:     {"uint24", kindUnsigned, 3, false},
	TypeUint32:     {"uint32", kindUnsigned, 4, false},
	TypeUint40:     {"uint40", kindUnsigned, 5, false},
	TypeUint48:     {"uint48", kindUnsigned, 6, false},
	TypeInt8:       {"int8", kindSigned, 1, false},
	TypeInt16:      {"int16", kindSigned, 2, false},
	TypeInt24:      {"int24", kindSigned, 3, false},
	TypeInt32:      {"int32", kindSigned, 4, false},
	TypeEnum8:      {"enum8", kindUnsigned, 1, false},
	TypeEnum16:     {"enum16", kindUnsigned, 2, false},
	TypeFloat32:    {"float32", kindFloat, 4, false},
	TypeFloat64:    {"float64", kindFloat, 8, false},
	TypeOctetStr:   {"octstr", kindOctets, 1, true},
	TypeCharStr:    {"string", kindString, 1, true},
	TypeOctetStr16: {"octstr16", kindOctets, 2, true},
	TypeCharStr16:  {"string16", kindString, 2, true},
	TypeToD:        {"tod", kindUnsigned, 4, false},
	TypeDate:       {"date", kindUnsigned, 4, false},
	TypeUTC:        {"UTC", kindUnsigned, 4, false},
	TypeClusterID:  {"clusterId", kindUnsigned, 2, false},
	TypeAttrID:     {"attrId", kindUnsigned, 2, false},
	TypeEUI64:      {"EUI64", kindEUI64, 8, false},
	TypeFloat16:    {"float16", kindUnsigned, 2, false},
}

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for
// variable-length and unknown types.
func TypeSize(typeID uint8) int {
	if typeID >= 0x08 && typeID <= 0x0F {
		return int(typeID-0x08) + 1
	}
	ti, ok := types[typeID]
	if !ok || ti.prefix {
		return -1
	}
	return ti.size
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if ti, ok := types[typeID]; ok {
		return ti.name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

func readUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putUint(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// DecodeValue decodes a little-endian ZCL value and returns it together with
// the number of bytes consumed. Unsigned integers come back as the narrowest
// fitting Go type (uint8/16/32/64), signed as int8/16/32.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	if typeID >= 0x08 && typeID <= 0x0F {
		n := int(typeID-0x08) + 1
		if len(data) < n {
			return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, n, len(data))
		}
		return append([]byte(nil), data[:n]...), n, nil
	}
	ti, ok := types[typeID]
	if !ok {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if ti.prefix {
		return decodePrefixed(typeID, ti, data)
	}
	if ti.size == 0 {
		return nil, 0, nil
	}
	if len(data) < ti.size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, ti.size, len(data))
	}
	raw := data[:ti.size]

	switch ti.kind {
	case kindBool:
		return raw[0] != 0, 1, nil
	case kindUnsigned:
		v := readUint(raw)
		switch {
		case ti.size == 1:
			return uint8(v), 1, nil
		case ti.size == 2:
			return uint16(v), 2, nil
		case ti.size <= 4:
			return uint32(v), ti.size, nil
		default:
			return v, ti.size, nil
		}
	case kindSigned:
		v := readUint(raw)
		shift := 64 - 8*uint(ti.size)
		s := int64(v<<shift) >> shift
		switch ti.size {
		case 1:
			return int8(s), 1, nil
		case 2:
			return int16(s), 2, nil
		default:
			return int32(s), ti.size, nil
		}
	case kindFloat:
		if ti.size == 4 {
			return math.Float32frombits(binary.LittleEndian.Uint32(raw)), 4, nil
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), 8, nil
	case kindEUI64:
		var addr [8]byte
		copy(addr[:], raw)
		return addr, 8, nil
	}
	return append([]byte(nil), raw...), ti.size, nil
}

func decodePrefixed(typeID uint8, ti typeInfo, data []byte) (any, int, error) {
	if len(data) < ti.size {
		return nil, 0, fmt.Errorf("zcl: no length prefix for %s", ti.name)
	}
	length := int(readUint(data[:ti.size]))
	invalid := 0xFF
	if ti.size == 2 {
		invalid = 0xFFFF
	}
	if length == invalid {
		return nil, ti.size, nil
	}
	end := ti.size + length
	if len(data) < end {
		return nil, 0, fmt.Errorf("zcl: %s truncated: need %d, have %d", ti.name, length, len(data)-ti.size)
	}
	if ti.kind == kindString {
		return string(data[ti.size:end]), end, nil
	}
	return append([]byte(nil), data[ti.size:end]...), end, nil
}

// EncodeValue encodes a Go value into ZCL wire format.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	ti, ok := types[typeID]
	if !ok || typeID == TypeNoData {
		return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
	}

	switch ti.kind {
	case kindBool:
		v, ok := toBool(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case kindUnsigned:
		v, ok := toUint64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, ti.name)
		}
		if limit := uint64(1)<<(8*uint(ti.size)) - 1; v > limit {
			return nil, fmt.Errorf("zcl: value %d overflows %s (max %d)", v, ti.name, limit)
		}
		return putUint(v, ti.size), nil

	case kindSigned:
		v, ok := toInt64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, ti.name)
		}
		bits := 8 * uint(ti.size)
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if v < lo || v > hi {
			return nil, fmt.Errorf("zcl: value %d overflows %s (range %d..%d)", v, ti.name, lo, hi)
		}
		return putUint(uint64(v), ti.size), nil

	case kindFloat:
		v, ok := toFloat64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, ti.name)
		}
		if ti.size == 4 {
			return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)), nil

	case kindEUI64:
		switch a := val.(type) {
		case [8]byte:
			return append([]byte(nil), a[:]...), nil
		case []byte:
			if len(a) != 8 {
				return nil, fmt.Errorf("zcl: EUI64 requires 8 bytes, got %d", len(a))
			}
			return append([]byte(nil), a...), nil
		}
		return nil, fmt.Errorf("zcl: cannot convert %T to EUI64", val)

	case kindString, kindOctets:
		var body []byte
		switch v := val.(type) {
		case string:
			body = []byte(v)
		case []byte:
			body = v
		default:
			return nil, fmt.Errorf("zcl: cannot convert %T to %s", val, ti.name)
		}
		limit := 254
		if ti.size == 2 {
			limit = 65534
		}
		if len(body) > limit {
			return nil, fmt.Errorf("zcl: data too long for %s: %d (max %d)", ti.name, len(body), limit)
		}
		return append(putUint(uint64(len(body)), ti.size), body...), nil
	}

	return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	case int64:
		return val != 0, true
	}
	return false, false
}

func toUint64(v any) (uint64, bool) {
	if i, ok := toInt64(v); ok {
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	if u, ok := v.(uint64); ok {
		return u, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return int64(math.Round(float64(val))), true
	case float64:
		if val > math.MaxInt64 || val < math.MinInt64 {
			return 0, false
		}
		return int64(math.Round(val)), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
