// Package definition models device definitions and resolves the definition
// that describes an observed device.
package definition

import (
	"context"
	"log/slog"

	"zigbee-go-converters/internal/exposes"
)

// ExposesFunc computes exposes for a concrete device and its options. dev
// may be nil when exposes are listed without a device.
type ExposesFunc func(dev *Device, opts Options) []*exposes.Expose

// ConfigureFunc runs once after a device has been interviewed.
type ConfigureFunc func(ctx context.Context, dev *Device, coordinatorEndpoint uint8, def *Definition) error

// OnEventFunc receives lifecycle events for devices using the definition.
type OnEventFunc func(ctx context.Context, evt *Event) error

// EndpointFunc maps endpoint names (l1, l2, ...) to endpoint IDs.
type EndpointFunc func(dev *Device) map[string]uint8

// Event types delivered to OnEventFunc.
type EventType string

const (
	EventStart           EventType = "start"
	EventStop            EventType = "stop"
	EventMessage         EventType = "message"
	EventDeviceJoined    EventType = "deviceJoined"
	EventDeviceInterview EventType = "deviceInterview"
	EventDeviceAnnounce  EventType = "deviceAnnounce"
	EventOptionsChanged  EventType = "deviceOptionsChanged"
)

// Event is passed to lifecycle hooks.
type Event struct {
	Type       EventType
	Device     *Device
	Definition *Definition
	State      map[string]any
	Options    Options
	Message    *Message // set for EventMessage
	Store      *SideTable
	Logger     *slog.Logger
	Publish    func(payload map[string]any)
}

// Message is an inbound ZCL message after frame decoding.
type Message struct {
	Type             string // attributeReport, readResponse, command<Name>
	Cluster          string
	Endpoint         uint8
	Data             any // map[string]any for attributes, command payload otherwise
	LinkQuality      uint8
	Sequence         uint8
	ManufacturerCode uint16
}

// DecodeMeta is the ambient context handed to decoders.
type DecodeMeta struct {
	Device       *Device
	State        map[string]any
	Options      Options
	Store        *SideTable
	Logger       *slog.Logger
	Publish      func(payload map[string]any)
	Calibratable map[string]int
}

// Decoder converts inbound messages of a cluster into properties.
type Decoder struct {
	Cluster string
	Types   []string
	Options []*exposes.Expose
	Convert func(def *Definition, msg *Message, meta *DecodeMeta) (map[string]any, error)
}

// Accepts reports whether the decoder handles msg.
func (d *Decoder) Accepts(msg *Message) bool {
	if d.Cluster != msg.Cluster {
		return false
	}
	for _, t := range d.Types {
		if t == msg.Type {
			return true
		}
	}
	return false
}

// EncodeMeta is the ambient context handed to encoders.
type EncodeMeta struct {
	Message      map[string]any // the complete set request
	State        map[string]any
	Device       *Device
	Definition   *Definition
	Options      Options
	EndpointName string
	Store        *SideTable
	Logger       *slog.Logger
}

// EncodeResult is returned by a set converter.
type EncodeResult struct {
	State map[string]any // optimistic state to merge
}

// Encoder converts outbound property changes into device commands.
type Encoder struct {
	Key        []string
	Options    []*exposes.Expose
	ConvertSet func(ctx context.Context, ep Endpoint, key string, value any, meta *EncodeMeta) (*EncodeResult, error)
	ConvertGet func(ctx context.Context, ep Endpoint, key string, meta *EncodeMeta) error
}

// Handles reports whether the encoder covers key.
func (e *Encoder) Handles(key string) bool {
	for _, k := range e.Key {
		if k == key {
			return true
		}
	}
	return false
}

// WhiteLabel is an alternate identity for a definition.
type WhiteLabel struct {
	Model       string
	Vendor      string
	Description string
	Fingerprint []Fingerprint
}

// ModernExtend is a reusable feature fragment merged into a definition.
type ModernExtend struct {
	IsModernExtend bool
	Decoders       []*Decoder
	Encoders       []*Encoder
	Exposes        []*exposes.Expose
	ExposesFn      ExposesFunc
	Configure      []ConfigureFunc
	OnEvent        OnEventFunc
	Endpoint       EndpointFunc
	Meta           Meta
	Options        []*exposes.Expose
}

// Declaration is a raw, uncomposed definition.
type Declaration struct {
	Model       string
	Vendor      string
	Description string
	ZigbeeModel []string
	Fingerprint []Fingerprint
	WhiteLabel  []WhiteLabel
	Decoders    []*Decoder
	Encoders    []*Encoder
	Exposes     []*exposes.Expose
	ExposesFn   ExposesFunc
	Extend      []ModernExtend
	Configure   ConfigureFunc
	OnEvent     OnEventFunc
	Endpoint    EndpointFunc
	Meta        Meta
	Options     []*exposes.Expose
}

// Definition is a composed device definition. It is not modified after
// registration.
type Definition struct {
	Model       string
	Vendor      string
	Description string
	ZigbeeModel []string
	Fingerprint []Fingerprint
	WhiteLabel  []WhiteLabel
	Decoders    []*Decoder
	Encoders    []*Encoder
	Exposes     []*exposes.Expose
	ExposesFn   ExposesFunc
	Configure   ConfigureFunc
	OnEvent     OnEventFunc
	Endpoint    EndpointFunc
	Meta        Meta
	Options     []*exposes.Expose

	// External is the name of the external source that installed the
	// definition; empty for built-ins.
	External string
	// Generated is set for definitions synthesized for unknown devices.
	Generated bool
}

// ExposesFor returns the exposes for dev, evaluating ExposesFn when set.
func (d *Definition) ExposesFor(dev *Device, opts Options) []*exposes.Expose {
	if d.ExposesFn != nil {
		return d.ExposesFn(dev, opts)
	}
	return d.Exposes
}

// FindEncoder returns the first encoder handling key.
func (d *Definition) FindEncoder(key string) *Encoder {
	for _, e := range d.Encoders {
		if e.Handles(key) {
			return e
		}
	}
	return nil
}

// withIdentity returns a shallow copy carrying another model/vendor identity.
func (d *Definition) withIdentity(wl WhiteLabel) *Definition {
	cp := *d
	cp.Model = wl.Model
	cp.Vendor = wl.Vendor
	if wl.Description != "" {
		cp.Description = wl.Description
	}
	return &cp
}

// Meta holds free-form per-definition behavior flags.
type Meta map[string]any

// Bool returns a boolean flag; missing keys are false.
func (m Meta) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// String returns a string flag; missing keys are "".
func (m Meta) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Options are user-tunable per-device settings.
type Options map[string]any

// Float returns a numeric option.
func (o Options) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns a boolean option and whether it was present.
func (o Options) Bool(key string) (bool, bool) {
	b, ok := o[key].(bool)
	return b, ok
}
