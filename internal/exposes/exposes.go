// Package exposes describes the properties a device definition surfaces to
// the rest of the hub (UI, MQTT discovery, automation).
package exposes

import (
	"fmt"
	"strings"
)

// Expose types.
const (
	TypeNumeric   = "numeric"
	TypeBinary    = "binary"
	TypeEnum      = "enum"
	TypeText      = "text"
	TypeList      = "list"
	TypeComposite = "composite"
	TypeSwitch    = "switch"
	TypeLight     = "light"
	TypeLock      = "lock"
	TypeClimate   = "climate"
	TypeCover     = "cover"
)

// Categories.
const (
	CategoryConfig     = "config"
	CategoryDiagnostic = "diagnostic"
)

// Access is a bitmask of what a property supports.
type Access uint8

const (
	AccessState Access = 1 << iota // published in state
	AccessSet                      // can be set
	AccessGet                      // can be read on demand

	AccessStateSet = AccessState | AccessSet
	AccessStateGet = AccessState | AccessGet
	AccessAll      = AccessState | AccessSet | AccessGet
)

var accessNames = map[string]Access{
	"state":         AccessState,
	"set":           AccessSet,
	"get":           AccessGet,
	"state_set":     AccessStateSet,
	"state_get":     AccessStateGet,
	"set_get":       AccessSet | AccessGet,
	"all":           AccessAll,
	"state_set_get": AccessAll,
}

// Has reports whether all bits in f are set.
func (a Access) Has(f Access) bool { return a&f == f }

// MarshalText implements encoding.TextMarshaler.
func (a Access) MarshalText() ([]byte, error) {
	var parts []string
	if a.Has(AccessState) {
		parts = append(parts, "state")
	}
	if a.Has(AccessSet) {
		parts = append(parts, "set")
	}
	if a.Has(AccessGet) {
		parts = append(parts, "get")
	}
	return []byte(strings.Join(parts, "_")), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts names like
// "state", "state_set" or "all".
func (a *Access) UnmarshalText(b []byte) error {
	v, ok := accessNames[strings.ToLower(strings.TrimSpace(string(b)))]
	if !ok {
		return fmt.Errorf("exposes: unknown access %q", string(b))
	}
	*a = v
	return nil
}

// Expose describes a single exposed property or a group of them.
type Expose struct {
	Type        string    `json:"type" yaml:"type"`
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	Property    string    `json:"property,omitempty" yaml:"property,omitempty"`
	Access      Access    `json:"access,omitempty" yaml:"access,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Unit        string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ValueMin    *float64  `json:"value_min,omitempty" yaml:"value_min,omitempty"`
	ValueMax    *float64  `json:"value_max,omitempty" yaml:"value_max,omitempty"`
	ValueStep   *float64  `json:"value_step,omitempty" yaml:"value_step,omitempty"`
	Values      []string  `json:"values,omitempty" yaml:"values,omitempty"`
	ValueOn     any       `json:"value_on,omitempty" yaml:"value_on,omitempty"`
	ValueOff    any       `json:"value_off,omitempty" yaml:"value_off,omitempty"`
	ValueToggle any       `json:"value_toggle,omitempty" yaml:"value_toggle,omitempty"`
	Features    []*Expose `json:"features,omitempty" yaml:"features,omitempty"`
}

func newExpose(typ, name string, access Access) *Expose {
	return &Expose{
		Type:     typ,
		Name:     name,
		Label:    labelFor(name),
		Property: name,
		Access:   access,
	}
}

// Numeric creates a numeric expose.
func Numeric(name string, access Access) *Expose { return newExpose(TypeNumeric, name, access) }

// Binary creates a binary expose with the given on/off values.
func Binary(name string, access Access, on, off any) *Expose {
	e := newExpose(TypeBinary, name, access)
	e.ValueOn = on
	e.ValueOff = off
	return e
}

// Enum creates an enum expose.
func Enum(name string, access Access, values []string) *Expose {
	e := newExpose(TypeEnum, name, access)
	e.Values = append([]string(nil), values...)
	return e
}

// Text creates a text expose.
func Text(name string, access Access) *Expose { return newExpose(TypeText, name, access) }

// Composite groups features under a single property.
func Composite(name, property string, access Access, features ...*Expose) *Expose {
	e := newExpose(TypeComposite, name, access)
	e.Property = property
	e.Features = features
	return e
}

// WithUnit sets the unit.
func (e *Expose) WithUnit(u string) *Expose { e.Unit = u; return e }

// WithDescription sets the description.
func (e *Expose) WithDescription(d string) *Expose { e.Description = d; return e }

// WithLabel overrides the generated label.
func (e *Expose) WithLabel(l string) *Expose { e.Label = l; return e }

// WithCategory sets the category (config or diagnostic).
func (e *Expose) WithCategory(c string) *Expose { e.Category = c; return e }

// WithValueMin sets the minimum value.
func (e *Expose) WithValueMin(v float64) *Expose { e.ValueMin = &v; return e }

// WithValueMax sets the maximum value.
func (e *Expose) WithValueMax(v float64) *Expose { e.ValueMax = &v; return e }

// WithValueStep sets the step.
func (e *Expose) WithValueStep(v float64) *Expose { e.ValueStep = &v; return e }

// WithValueToggle sets the toggle value of a binary expose.
func (e *Expose) WithValueToggle(v any) *Expose { e.ValueToggle = v; return e }

// WithEndpoint binds the expose and its features to an endpoint name. The
// property becomes name_endpoint.
func (e *Expose) WithEndpoint(ep string) *Expose {
	e.Endpoint = ep
	if e.Property != "" {
		e.Property = e.Property + "_" + ep
	}
	for _, f := range e.Features {
		f.WithEndpoint(ep)
	}
	return e
}

// Clone returns a deep copy.
func (e *Expose) Clone() *Expose {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Values = append([]string(nil), e.Values...)
	if e.ValueMin != nil {
		v := *e.ValueMin
		cp.ValueMin = &v
	}
	if e.ValueMax != nil {
		v := *e.ValueMax
		cp.ValueMax = &v
	}
	if e.ValueStep != nil {
		v := *e.ValueStep
		cp.ValueStep = &v
	}
	if e.Features != nil {
		cp.Features = make([]*Expose, len(e.Features))
		for i, f := range e.Features {
			cp.Features[i] = f.Clone()
		}
	}
	return &cp
}

// Validate checks the structural requirements of an expose.
func (e *Expose) Validate() error {
	switch e.Type {
	case TypeNumeric, TypeBinary, TypeText, TypeList:
		if e.Name == "" {
			return fmt.Errorf("exposes: %s expose without name", e.Type)
		}
	case TypeEnum:
		if e.Name == "" {
			return fmt.Errorf("exposes: enum expose without name")
		}
		if len(e.Values) == 0 {
			return fmt.Errorf("exposes: enum %q without values", e.Name)
		}
	case TypeComposite, TypeSwitch, TypeLight, TypeLock, TypeClimate, TypeCover:
		for _, f := range e.Features {
			if err := f.Validate(); err != nil {
				return fmt.Errorf("%s: %w", e.Type, err)
			}
		}
	default:
		return fmt.Errorf("exposes: unknown type %q", e.Type)
	}
	return nil
}

// Flatten returns the expose and all nested features, depth first.
func Flatten(list []*Expose) []*Expose {
	var out []*Expose
	for _, e := range list {
		out = append(out, e)
		if len(e.Features) > 0 {
			out = append(out, Flatten(e.Features)...)
		}
	}
	return out
}

// Find returns the first expose (nested features included) with the given name.
func Find(list []*Expose, name string) *Expose {
	for _, e := range Flatten(list) {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func labelFor(name string) string {
	if name == "" {
		return ""
	}
	label := strings.ReplaceAll(name, "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}
