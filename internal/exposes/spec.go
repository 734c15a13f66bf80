package exposes

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var presets = map[string]func() *Expose{
	"linkquality":       Linkquality,
	"battery":           Battery,
	"battery_low":       BatteryLow,
	"battery_voltage":   BatteryVoltage,
	"temperature":       Temperature,
	"local_temperature": LocalTemperature,
	"humidity":          Humidity,
	"illuminance":       Illuminance,
	"occupancy":         Occupancy,
	"contact":           Contact,
	"water_leak":        WaterLeak,
	"tamper":            Tamper,
	"child_lock":        ChildLock,
	"power":             Power,
	"voltage":           Voltage,
	"current":           Current,
	"energy":            Energy,
	"switch":            Switch,
	"light":             func() *Expose { return Light(false) },
	"light_brightness":  func() *Expose { return Light(true) },
}

// Preset returns a fresh copy of a named common expose.
func Preset(name string) (*Expose, bool) {
	fn, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// PresetNames lists the known preset names.
func PresetNames() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Spec is the declarative form of an expose in definition files: either a
// preset name or a full mapping.
//
//	exposes:
//	  - battery
//	  - {preset: switch, endpoint: l1}
//	  - {type: enum, name: sensitivity, access: state_set, values: [low, medium, high]}
type Spec struct {
	Expose *Expose
}

// UnmarshalYAML accepts a preset name, a preset with an endpoint, or a full
// expose mapping.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e, ok := Preset(node.Value)
		if !ok {
			return fmt.Errorf("exposes: line %d: unknown preset %q", node.Line, node.Value)
		}
		s.Expose = e
		return nil
	}
	var ref struct {
		Preset   string `yaml:"preset"`
		Endpoint string `yaml:"endpoint"`
	}
	if err := node.Decode(&ref); err != nil {
		return err
	}
	if ref.Preset != "" {
		e, ok := Preset(ref.Preset)
		if !ok {
			return fmt.Errorf("exposes: line %d: unknown preset %q", node.Line, ref.Preset)
		}
		if ref.Endpoint != "" {
			e = e.WithEndpoint(ref.Endpoint)
		}
		s.Expose = e
		return nil
	}
	e := &Expose{}
	if err := node.Decode(e); err != nil {
		return err
	}
	if e.Property == "" && e.Type != TypeComposite {
		e.Property = e.Name
	}
	if e.Label == "" {
		e.Label = labelFor(e.Name)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("exposes: line %d: %w", node.Line, err)
	}
	s.Expose = e
	return nil
}

// Build returns the exposes of a spec list.
func Build(specs []Spec) []*Expose {
	out := make([]*Expose, 0, len(specs))
	for _, s := range specs {
		if s.Expose != nil {
			out = append(out, s.Expose)
		}
	}
	return out
}
