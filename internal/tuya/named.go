package tuya

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// named lists converters that take no arguments.
var named = map[string]*Converter{
	"raw":                           Raw,
	"on_off":                        OnOff,
	"lock_unlock":                   LockUnlock,
	"true_false_0":                  TrueFalse(0),
	"true_false_1":                  TrueFalse(1),
	"temperature_calibration":       TemperatureCalibration,
	"local_temperature_calibration": LocalTemperatureCalibration,
	"power":                         Power,
	"inverse_position":              InvertedPosition,
	"phase_variant_1":               PhaseVariant1,
	"phase_variant_2":               PhaseVariant2,
	"phase_variant_3":               PhaseVariant3,
	"divide_by_10":                  DivideBy(10),
	"divide_by_100":                 DivideBy(100),
	"divide_by_1000":                DivideBy(1000),
	"divide_by_10_from_only":        DivideByFromOnly(10),
}

// Named returns a built-in argument-free converter.
func Named(name string) (*Converter, bool) {
	c, ok := named[strings.ToLower(name)]
	return c, ok
}

// Names lists the argument-free converter names.
func Names() []string {
	out := make([]string, 0, len(named))
	for k := range named {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ConverterSpec is the declarative form of a converter in definition files.
// A plain string names an argument-free converter; a mapping selects a
// parameterized one:
//
//	converter: divide_by_10
//	converter: {name: lookup, values: {low: 0, medium: 1, high: 2}}
//	converter: {name: scale, range: [0, 100, 0, 1000]}
//	converter: {name: schedule_day, periods: 4, min: 5, max: 35}
type ConverterSpec struct {
	Name     string          `yaml:"name" json:"name"`
	Values   map[string]any  `yaml:"values,omitempty" json:"values,omitempty"`
	Fallback any             `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Divisor  float64         `yaml:"divisor,omitempty" json:"divisor,omitempty"`
	Range    []float64       `yaml:"range,omitempty" json:"range,omitempty"`
	Bits     map[string]uint `yaml:"bits,omitempty" json:"bits,omitempty"`
	Periods  int             `yaml:"periods,omitempty" json:"periods,omitempty"`
	Min      float64         `yaml:"min,omitempty" json:"min,omitempty"`
	Max      float64         `yaml:"max,omitempty" json:"max,omitempty"`
	Phase    string          `yaml:"phase,omitempty" json:"phase,omitempty"`
}

// UnmarshalYAML accepts a scalar name or a mapping.
func (s *ConverterSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Name = node.Value
		return nil
	}
	type plain ConverterSpec
	return node.Decode((*plain)(s))
}

// Build returns the converter described by s.
func (s ConverterSpec) Build() (*Converter, error) {
	name := strings.ToLower(s.Name)
	switch name {
	case "lookup":
		if len(s.Values) == 0 {
			return nil, fmt.Errorf("converter lookup: values are required")
		}
		values := make(map[string]any, len(s.Values))
		for k, v := range s.Values {
			values[k] = v
		}
		if s.Fallback != nil {
			return Lookup(values, s.Fallback), nil
		}
		return Lookup(values), nil
	case "divide_by":
		if s.Divisor == 0 {
			return nil, fmt.Errorf("converter divide_by: divisor is required")
		}
		return DivideBy(s.Divisor), nil
	case "scale":
		if len(s.Range) != 4 {
			return nil, fmt.Errorf("converter scale: range needs 4 numbers, have %d", len(s.Range))
		}
		return Scale(s.Range[0], s.Range[1], s.Range[2], s.Range[3]), nil
	case "bitfield":
		if len(s.Bits) == 0 {
			return nil, fmt.Errorf("converter bitfield: bits are required")
		}
		return Bitfield(s.Bits), nil
	case "schedule_day":
		periods := s.Periods
		if periods == 0 {
			periods = 4
		}
		lo, hi := s.Min, s.Max
		if hi == 0 {
			lo, hi = 5, 35
		}
		return ScheduleDay(periods, lo, hi), nil
	case "phase_variant_2_with_phase":
		return PhaseVariant2WithPhase(s.Phase), nil
	case "temperature", "humidity":
		div := s.Divisor
		if div == 0 {
			div = 10
		}
		return Calibrated(DivideByFromOnly(div), name), nil
	}
	if c, ok := Named(name); ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown converter %q", s.Name)
}
