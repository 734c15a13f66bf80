package tuya

import (
	"encoding/base64"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"zigbee-go-converters/internal/definition"
)

// Converter translates between a datapoint scalar and a property value.
// Either direction may be nil.
type Converter struct {
	Decode func(v any, meta *definition.DecodeMeta) (any, error)
	Encode func(v any, meta *definition.EncodeMeta) (any, error)
}

// Raw passes values through unchanged.
var Raw = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) { return v, nil },
	Encode: func(v any, _ *definition.EncodeMeta) (any, error) { return v, nil },
}

// Lookup maps property names to raw values. Plain integers are sent as Enum;
// booleans and Bitmap values are sent as is. Decoding an unmapped raw value
// fails unless a fallback is given.
func Lookup(values map[string]any, fallback ...any) *Converter {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			for _, k := range keys {
				if sameRaw(values[k], v) {
					return k, nil
				}
			}
			if len(fallback) > 0 {
				return fallback[0], nil
			}
			return nil, valueError("value %v is not in lookup %v", v, keys)
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			s := fmt.Sprint(v)
			raw, ok := values[s]
			if !ok {
				for _, k := range keys {
					if strings.EqualFold(k, s) {
						raw, ok = values[k], true
						break
					}
				}
			}
			if !ok {
				return nil, valueError("value %q is not allowed, expected one of %v", s, keys)
			}
			return wireLookupValue(raw), nil
		},
	}
}

func wireLookupValue(raw any) any {
	switch raw.(type) {
	case bool, Enum, Bitmap, string, []byte:
		return raw
	}
	if n, ok := toInt(raw); ok {
		return Enum(n)
	}
	return raw
}

func sameRaw(want, have any) bool {
	if wb, ok := want.(bool); ok {
		hb, ok := have.(bool)
		return ok && wb == hb
	}
	if ws, ok := want.(string); ok {
		hs, ok := have.(string)
		return ok && ws == hs
	}
	w, ok1 := toInt(want)
	h, ok2 := toInt(have)
	return ok1 && ok2 && w == h
}

// Scale maps the property range [min1, max1] onto the device range
// [min2, max2], rounding to whole device units.
func Scale(min1, max1, min2, max2 float64) *Converter {
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			f, ok := toFloat(v)
			if !ok {
				return nil, valueError("scale: %v is not a number", v)
			}
			return math.Round(mapRange(f, min2, max2, min1, max1)), nil
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			f, err := number("scale", v)
			if err != nil {
				return nil, err
			}
			return int64(math.Round(mapRange(f, min1, max1, min2, max2))), nil
		},
	}
}

func mapRange(v, fromLow, fromHigh, toLow, toHigh float64) float64 {
	if fromHigh == fromLow {
		return toLow
	}
	return toLow + (v-fromLow)*(toHigh-toLow)/(fromHigh-fromLow)
}

// DivideBy divides on decode and multiplies on encode.
func DivideBy(n float64) *Converter {
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			f, ok := toFloat(v)
			if !ok {
				return nil, valueError("divide by %v: %v is not a number", n, v)
			}
			return f / n, nil
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			f, err := number(fmt.Sprintf("divide by %v", n), v)
			if err != nil {
				return nil, err
			}
			return int64(math.Round(f * n)), nil
		},
	}
}

// DivideByFromOnly divides on decode and has no encode direction.
func DivideByFromOnly(n float64) *Converter {
	return &Converter{Decode: DivideBy(n).Decode}
}

// Calibrated applies the temperature/humidity/... calibration options of
// name after decoding with c.
func Calibrated(c *Converter, name string) *Converter {
	return &Converter{
		Decode: func(v any, meta *definition.DecodeMeta) (any, error) {
			out, err := c.Decode(v, meta)
			if err != nil || meta == nil {
				return out, err
			}
			if f, ok := toFloat(out); ok {
				return meta.Calibrate(name, f), nil
			}
			return out, nil
		},
		Encode: c.Encode,
	}
}

// TrueFalse decodes raw == trueValue as true. Encoding sends trueValue for
// true and the other enum value for false.
func TrueFalse(trueValue int) *Converter {
	falseValue := 0
	if trueValue == 0 {
		falseValue = 1
	}
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			return sameRaw(trueValue, v), nil
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			b, ok := v.(bool)
			if !ok {
				return nil, valueError("true/false: %v is not a boolean", v)
			}
			if b {
				return Enum(trueValue), nil
			}
			return Enum(falseValue), nil
		},
	}
}

// OnOff maps a bool datapoint to "ON"/"OFF". "TOGGLE" inverts the current
// state of the property being set.
var OnOff = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		b, ok := v.(bool)
		if !ok {
			return nil, valueError("on/off: %v is not a boolean", v)
		}
		if b {
			return "ON", nil
		}
		return "OFF", nil
	},
	Encode: func(v any, meta *definition.EncodeMeta) (any, error) {
		switch s := strings.ToUpper(fmt.Sprint(v)); s {
		case "ON":
			return true, nil
		case "OFF":
			return false, nil
		case "TOGGLE":
			if meta == nil {
				return nil, valueError("on/off: toggle needs current state")
			}
			return !isOn(meta.State, meta.EndpointName), nil
		default:
			return nil, valueError("on/off: %q is not ON, OFF or TOGGLE", s)
		}
	},
}

func isOn(state map[string]any, endpointName string) bool {
	key := "state"
	if endpointName != "" {
		key += "_" + endpointName
	}
	return state[key] == "ON"
}

// LockUnlock maps a bool datapoint to "LOCK"/"UNLOCK".
var LockUnlock = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		if b, _ := v.(bool); b {
			return "LOCK", nil
		}
		return "UNLOCK", nil
	},
	Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
		switch strings.ToUpper(fmt.Sprint(v)) {
		case "LOCK":
			return true, nil
		case "UNLOCK":
			return false, nil
		}
		return nil, valueError("lock: %v is not LOCK or UNLOCK", v)
	},
}

// TemperatureCalibration carries signed values in an unsigned 32-bit number
// by adding 2^32 to negatives.
var TemperatureCalibration = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		n, ok := toInt(v)
		if !ok {
			return nil, valueError("temperature calibration: %v is not a number", v)
		}
		if n > 0x7FFFFFFF {
			n -= 0x100000000
		}
		return n, nil
	},
	Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
		f, err := number("temperature calibration", v)
		if err != nil {
			return nil, err
		}
		n := int64(math.Round(f))
		if n < 0 {
			n += 0x100000000
		}
		return n, nil
	},
}

// LocalTemperatureCalibration is TemperatureCalibration with a factor of 10
// on the wire.
var LocalTemperatureCalibration = &Converter{
	Decode: func(v any, meta *definition.DecodeMeta) (any, error) {
		n, err := TemperatureCalibration.Decode(v, meta)
		if err != nil {
			return nil, err
		}
		return float64(n.(int64)) / 10, nil
	},
	Encode: func(v any, meta *definition.EncodeMeta) (any, error) {
		f, err := number("local temperature calibration", v)
		if err != nil {
			return nil, err
		}
		return TemperatureCalibration.Encode(f*10, meta)
	},
}

// Power decodes signed power readings that wrap below 0x1999999C.
var Power = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		n, ok := toInt(v)
		if !ok {
			return nil, valueError("power: %v is not a number", v)
		}
		if n > 0x0FFFFFFF {
			return (0x1999999C - n) * -1, nil
		}
		return n, nil
	},
}

// InvertedPosition reports 100-v, clamped to [0, 100], in both directions.
var InvertedPosition = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		f, ok := toFloat(v)
		if !ok {
			return nil, valueError("position: %v is not a number", v)
		}
		return invertPosition(f), nil
	},
	Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
		f, err := number("position", v)
		if err != nil {
			return nil, err
		}
		return int64(invertPosition(f)), nil
	},
}

func invertPosition(v float64) float64 {
	return math.Max(0, math.Min(100, 100-math.Round(v)))
}

// PhaseVariant1 decodes a 15 byte phase buffer into voltage and current.
// The buffer arrives raw or, from some gateways, base64 encoded.
var PhaseVariant1 = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		if s, ok := v.(string); ok {
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, valueError("phase variant 1: %v", err)
			}
			v = decoded
		}
		b, err := rawBytes("phase variant 1", v, 15)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"voltage": float64(be16(b[13:])) / 10,
			"current": float64(be16(b[11:])) / 1000,
		}, nil
	},
}

// PhaseVariant2 decodes voltage/current/power from an 8 byte buffer.
var PhaseVariant2 = PhaseVariant2WithPhase("")

// PhaseVariant2WithPhase decodes like PhaseVariant2 and suffixes the
// property names with _<phase>.
func PhaseVariant2WithPhase(phase string) *Converter {
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			b, err := rawBytes("phase variant 2", v, 8)
			if err != nil {
				return nil, err
			}
			return phaseMap(phase,
				float64(be16(b[0:]))/10,
				float64(be16(b[3:]))/1000,
				float64(be16(b[6:]))), nil
		},
	}
}

// PhaseVariant3 decodes voltage/current/power using 2/3/3 byte fields.
var PhaseVariant3 = &Converter{
	Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
		b, err := rawBytes("phase variant 3", v, 8)
		if err != nil {
			return nil, err
		}
		return phaseMap("",
			float64(be16(b[0:]))/10,
			float64(be24(b[2:]))/1000,
			float64(be24(b[5:]))), nil
	},
}

func phaseMap(phase string, voltage, current, power float64) map[string]any {
	suffix := ""
	if phase != "" {
		suffix = "_" + phase
	}
	return map[string]any{
		"voltage" + suffix: voltage,
		"current" + suffix: current,
		"power" + suffix:   power,
	}
}

func be16(b []byte) uint32 { return uint32(b[0])<<8 | uint32(b[1]) }

func be24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }

func rawBytes(what string, v any, size int) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, valueError("%s: %v is not a byte buffer", what, v)
	}
	if len(b) < size {
		return nil, valueError("%s: need %d bytes, have %d", what, size, len(b))
	}
	return b, nil
}

// Bitfield splits a bitmap into named boolean properties. Encoding takes a
// map of names to booleans; names not present are sent as 0.
func Bitfield(bits map[string]uint) *Converter {
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			n, ok := toInt(v)
			if !ok {
				return nil, valueError("bitfield: %v is not a number", v)
			}
			out := make(map[string]any, len(bits))
			for name, bit := range bits {
				out[name] = n&(1<<bit) != 0
			}
			return out, nil
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, valueError("bitfield: %v is not an object", v)
			}
			var n Bitmap
			for name, set := range m {
				bit, ok := bits[name]
				if !ok {
					return nil, valueError("bitfield: unknown flag %q", name)
				}
				if b, _ := set.(bool); b {
					n |= 1 << bit
				}
			}
			return n, nil
		},
	}
}

// ScheduleDay packs up to periods "HH:MM/TEMP" entries, separated by
// spaces, as hour(1) minute(1) temperature*10(2 BE). Times must be
// strictly increasing and temperatures within [minTemp, maxTemp].
func ScheduleDay(periods int, minTemp, maxTemp float64) *Converter {
	return &Converter{
		Decode: func(v any, _ *definition.DecodeMeta) (any, error) {
			b, ok := v.([]byte)
			if !ok || len(b)%4 != 0 {
				return nil, valueError("schedule: malformed buffer %v", v)
			}
			parts := make([]string, 0, len(b)/4)
			for i := 0; i+4 <= len(b); i += 4 {
				temp := float64(be16(b[i+2:])) / 10
				parts = append(parts, fmt.Sprintf("%02d:%02d/%s", b[i], b[i+1], strconv.FormatFloat(temp, 'f', -1, 64)))
			}
			return strings.Join(parts, " "), nil
		},
		Encode: func(v any, _ *definition.EncodeMeta) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, valueError("schedule: %v is not a string", v)
			}
			fields := strings.Fields(s)
			if len(fields) == 0 || len(fields) > periods {
				return nil, valueError("schedule: need 1 to %d periods, have %d", periods, len(fields))
			}
			out := make([]byte, 0, len(fields)*4)
			last := -1
			for i, f := range fields {
				h, m, temp, err := parsePeriod(f)
				if err != nil {
					return nil, valueError("schedule period %d %q: %v", i+1, f, err)
				}
				minutes := h*60 + m
				if minutes <= last {
					return nil, valueError("schedule period %d %q: time must be after the previous period", i+1, f)
				}
				if temp < minTemp || temp > maxTemp {
					return nil, valueError("schedule period %d %q: temperature must be between %v and %v", i+1, f, minTemp, maxTemp)
				}
				last = minutes
				t := uint16(math.Round(temp * 10))
				out = append(out, byte(h), byte(m), byte(t>>8), byte(t))
			}
			return out, nil
		},
	}
}

func parsePeriod(s string) (h, m int, temp float64, err error) {
	clock, t, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("expected HH:MM/TEMP")
	}
	hs, ms, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, 0, 0, fmt.Errorf("expected HH:MM")
	}
	if h, err = strconv.Atoi(hs); err != nil || h < 0 || h > 24 {
		return 0, 0, 0, fmt.Errorf("hour must be 0-24")
	}
	if m, err = strconv.Atoi(ms); err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, 0, fmt.Errorf("minute must be 0-59")
	}
	if temp, err = strconv.ParseFloat(strings.TrimSuffix(t, "°C"), 64); err != nil {
		return 0, 0, 0, fmt.Errorf("temperature is not a number")
	}
	return h, m, temp, nil
}

func number(what string, v any) (float64, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
	}
	return 0, valueError("%s: %v is not a number", what, v)
}
