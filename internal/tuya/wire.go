// Package tuya implements the Tuya datapoint sub-protocol carried on the
// manuSpecificTuya (0xEF00) cluster: wire records, value converters,
// datapoint tables and the fragments that wire them into definitions.
package tuya

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Cluster is the ZCL cluster name carrying datapoints.
const Cluster = "manuSpecificTuya"

var (
	// ErrValue marks a value that cannot be converted.
	ErrValue = errors.New("invalid value")
	// ErrNoDatapoint marks a property without a datapoint entry.
	ErrNoDatapoint = errors.New("no datapoint")
)

func valueError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValue, fmt.Sprintf(format, args...))
}

// DataType is the wire type of a datapoint record.
type DataType uint8

const (
	TypeRaw    DataType = 0x00
	TypeBool   DataType = 0x01
	TypeNumber DataType = 0x02 // 4 bytes big-endian
	TypeString DataType = 0x03
	TypeEnum   DataType = 0x04 // 1 byte
	TypeBitmap DataType = 0x05 // 1, 2 or 4 bytes big-endian
)

func (t DataType) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	case TypeBitmap:
		return "bitmap"
	}
	return fmt.Sprintf("type(0x%02X)", uint8(t))
}

// Enum is an integer sent with the enum wire type.
type Enum int

// Bitmap is an integer sent with the bitmap wire type.
type Bitmap uint32

// DPValue is one tagged datapoint record.
type DPValue struct {
	DP   uint8
	Type DataType
	Data []byte
}

// Value decodes the record data into a scalar: []byte for raw, bool,
// int64 for number/enum/bitmap and string.
func (v DPValue) Value() (any, error) {
	switch v.Type {
	case TypeRaw:
		return append([]byte(nil), v.Data...), nil
	case TypeBool:
		if len(v.Data) < 1 {
			return nil, valueError("datapoint %d: empty bool", v.DP)
		}
		return v.Data[0] != 0, nil
	case TypeNumber:
		if len(v.Data) != 4 {
			return nil, valueError("datapoint %d: number needs 4 bytes, have %d", v.DP, len(v.Data))
		}
		return int64(binary.BigEndian.Uint32(v.Data)), nil
	case TypeString:
		return string(v.Data), nil
	case TypeEnum:
		if len(v.Data) < 1 {
			return nil, valueError("datapoint %d: empty enum", v.DP)
		}
		return int64(v.Data[0]), nil
	case TypeBitmap:
		if len(v.Data) == 0 || len(v.Data) > 4 {
			return nil, valueError("datapoint %d: bitmap needs 1 to 4 bytes, have %d", v.DP, len(v.Data))
		}
		var n uint32
		for _, b := range v.Data {
			n = n<<8 | uint32(b)
		}
		return int64(n), nil
	}
	return nil, valueError("datapoint %d: unknown data type 0x%02X", v.DP, uint8(v.Type))
}

// NewDPValue serializes a host value into a record. The wire type follows
// the host type: bool, Enum, Bitmap, string, []byte or a number.
func NewDPValue(dp uint8, v any) (DPValue, error) {
	switch t := v.(type) {
	case bool:
		b := byte(0)
		if t {
			b = 1
		}
		return DPValue{DP: dp, Type: TypeBool, Data: []byte{b}}, nil
	case Enum:
		if t < 0 || t > 0xFF {
			return DPValue{}, valueError("datapoint %d: enum %d out of range", dp, int(t))
		}
		return DPValue{DP: dp, Type: TypeEnum, Data: []byte{byte(t)}}, nil
	case Bitmap:
		var data []byte
		switch {
		case t <= 0xFF:
			data = []byte{byte(t)}
		case t <= 0xFFFF:
			data = binary.BigEndian.AppendUint16(nil, uint16(t))
		default:
			data = binary.BigEndian.AppendUint32(nil, uint32(t))
		}
		return DPValue{DP: dp, Type: TypeBitmap, Data: data}, nil
	case string:
		return DPValue{DP: dp, Type: TypeString, Data: []byte(t)}, nil
	case []byte:
		return DPValue{DP: dp, Type: TypeRaw, Data: append([]byte(nil), t...)}, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return DPValue{}, valueError("datapoint %d: unsupported value %v (%T)", dp, v, v)
	}
	n := math.Round(f)
	if n < 0 || n > math.MaxUint32 {
		return DPValue{}, valueError("datapoint %d: number %v out of range", dp, v)
	}
	return DPValue{DP: dp, Type: TypeNumber, Data: binary.BigEndian.AppendUint32(nil, uint32(n))}, nil
}

// Command is the payload of dataRequest, dataResponse, dataReport and
// related commands: a big-endian sequence number followed by records.
type Command struct {
	Seq      uint16
	DPValues []DPValue
}

// ParseCommand decodes a datapoint command payload.
// Record layout: dp(1) type(1) len(2 BE) data(len).
func ParseCommand(data []byte) (*Command, error) {
	if len(data) < 2 {
		return nil, valueError("datapoint payload too short: %d bytes", len(data))
	}
	cmd := &Command{Seq: binary.BigEndian.Uint16(data)}
	pos := 2
	for pos < len(data) {
		if pos+4 > len(data) {
			return cmd, valueError("truncated datapoint header at offset %d", pos)
		}
		dp := data[pos]
		typ := DataType(data[pos+1])
		n := int(binary.BigEndian.Uint16(data[pos+2:]))
		pos += 4
		if pos+n > len(data) {
			return cmd, valueError("datapoint %d: need %d bytes at offset %d, have %d", dp, n, pos, len(data)-pos)
		}
		cmd.DPValues = append(cmd.DPValues, DPValue{
			DP:   dp,
			Type: typ,
			Data: append([]byte(nil), data[pos:pos+n]...),
		})
		pos += n
	}
	return cmd, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Command) MarshalBinary() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, c.Seq)
	for _, v := range c.DPValues {
		if len(v.Data) > 0xFFFF {
			return nil, valueError("datapoint %d: data too long", v.DP)
		}
		out = append(out, v.DP, byte(v.Type))
		out = binary.BigEndian.AppendUint16(out, uint16(len(v.Data)))
		out = append(out, v.Data...)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
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
	case uint:
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
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case Enum:
		return int64(n), true
	case Bitmap:
		return int64(n), true
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int64(math.Round(f)), true
}
