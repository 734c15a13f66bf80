package definition

import (
	"math"
	"strings"

	"zigbee-go-converters/internal/exposes"
)

// DefaultCalibratable lists properties that get calibration and precision
// options, with their default precision.
var DefaultCalibratable = map[string]int{
	"temperature":       2,
	"local_temperature": 1,
	"humidity":          2,
	"pressure":          1,
	"illuminance":       0,
	"soil_moisture":     2,
	"co2":               0,
	"pm25":              0,
	"power":             2,
	"current":           2,
	"voltage":           2,
	"energy":            2,
}

func isBatteryVoltage(e *exposes.Expose) bool {
	return e.Name == "voltage" && e.Unit == "mV"
}

// calibrationOptions derives <property>_calibration and <property>_precision
// options for calibratable numeric exposes.
func calibrationOptions(list []*exposes.Expose, calibratable map[string]int) []*exposes.Expose {
	var out []*exposes.Expose
	for _, e := range exposes.Flatten(list) {
		if e.Type != exposes.TypeNumeric || isBatteryVoltage(e) {
			continue
		}
		precision, ok := calibratable[e.Name]
		if !ok {
			continue
		}
		prop := e.Property
		if prop == "" {
			prop = e.Name
		}
		kind := "absolute offset"
		if e.Name == "illuminance" {
			kind = "percentual offset"
		}
		label := strings.ReplaceAll(e.Name, "_", " ")
		out = append(out, exposes.Numeric(prop+"_calibration", exposes.AccessSet).
			WithDescription("Calibrates the "+label+" value ("+kind+"), takes into effect on next report of device.").
			WithValueStep(0.1))
		// Integer-only measurements have no precision option.
		if precision > 0 {
			out = append(out, exposes.Numeric(prop+"_precision", exposes.AccessSet).
				WithDescription("Number of digits after decimal point for "+label+", takes into effect on next report of device.").
				WithValueMin(0).WithValueMax(3))
		}
	}
	return out
}

// Calibrate applies the user calibration and precision options for a
// property. Properties missing from calibratable are returned unchanged.
func Calibrate(opts Options, calibratable map[string]int, name string, value float64) float64 {
	defPrecision, ok := calibratable[name]
	if !ok {
		return value
	}
	if cal, ok := opts.Float(name + "_calibration"); ok {
		if name == "illuminance" {
			value += value * cal / 100
		} else {
			value += cal
		}
	}
	precision := float64(defPrecision)
	if p, ok := opts.Float(name + "_precision"); ok {
		precision = p
	}
	scale := math.Pow(10, precision)
	return math.Round(value*scale) / scale
}

// Calibrate applies calibration options from the decode context.
func (m *DecodeMeta) Calibrate(name string, value float64) float64 {
	cal := m.Calibratable
	if cal == nil {
		cal = DefaultCalibratable
	}
	return Calibrate(m.Options, cal, name, value)
}
