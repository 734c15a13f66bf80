//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"zigbee-go-converters/internal/exposes"
	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/zigbee_0x00158d.../temperature/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	ObjectID            string   `json:"object_id,omitempty"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	CommandTemplate     string   `json:"command_template,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	EntityCategory      string   `json:"entity_category,omitempty"`
	PayloadOn           string   `json:"payload_on,omitempty"`
	PayloadOff          string   `json:"payload_off,omitempty"`
	Options             []string `json:"options,omitempty"`
	Min                 *float64 `json:"min,omitempty"`
	Max                 *float64 `json:"max,omitempty"`
	Step                *float64 `json:"step,omitempty"`
	Brightness          bool     `json:"brightness,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// sensorClasses maps numeric property names to HA device and state classes.
var sensorClasses = map[string][2]string{
	"temperature":       {"temperature", "measurement"},
	"local_temperature": {"temperature", "measurement"},
	"humidity":          {"humidity", "measurement"},
	"pressure":          {"pressure", "measurement"},
	"illuminance":       {"illuminance", "measurement"},
	"battery":           {"battery", "measurement"},
	"voltage":           {"voltage", "measurement"},
	"current":           {"current", "measurement"},
	"power":             {"power", "measurement"},
	"energy":            {"energy", "total_increasing"},
	"co2":               {"carbon_dioxide", "measurement"},
	"linkquality":       {"", "measurement"},
}

// binaryClasses maps binary property names to HA binary_sensor classes.
var binaryClasses = map[string]string{
	"occupancy":   "occupancy",
	"presence":    "occupancy",
	"contact":     "door",
	"water_leak":  "moisture",
	"smoke":       "smoke",
	"tamper":      "tamper",
	"battery_low": "battery",
	"vibration":   "vibration",
}

// deviceDisplayName returns a display name for the device.
func deviceDisplayName(dev *store.Device) string {
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	if dev.Vendor != "" && dev.Model != "" {
		return dev.Vendor + " " + dev.Model
	}
	if dev.Model != "" {
		return dev.Model
	}
	return dev.IEEEAddress
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(dev *store.Device) string {
	return "zigbee_" + dev.IEEEAddress
}

// deviceTopicName returns the topic name for a device. Friendly names
// that would break topic matching fall back to the IEEE address.
func deviceTopicName(ieee, friendlyName string) string {
	if friendlyName == "" || strings.ContainsAny(friendlyName, "/+#") {
		return ieee
	}
	return friendlyName
}

// discoveryBuilder accumulates the discovery messages of one device.
type discoveryBuilder struct {
	prefix     string // HA discovery prefix
	nodeID     string
	name       string
	stateTopic string
	setTopic   string
	avail      string
	device     haDevice
	msgs       []discoveryMsg
}

// buildDiscovery generates HA discovery messages for a device from the
// exposes of its definition.
func buildDiscovery(info hub.DeviceInfo, topicPrefix, discoveryPrefix string) []discoveryMsg {
	if !info.Supported || info.Device == nil {
		return nil
	}
	dev := info.Device
	base := topicPrefix + "/" + deviceTopicName(dev.IEEEAddress, dev.FriendlyName)
	b := &discoveryBuilder{
		prefix:     discoveryPrefix,
		nodeID:     deviceIdentifier(dev),
		name:       deviceDisplayName(dev),
		stateTopic: base,
		setTopic:   base + "/set",
		avail:      topicPrefix + "/bridge/state",
		device: haDevice{
			Identifiers:  []string{deviceIdentifier(dev)},
			Manufacturer: dev.Vendor,
			Model:        dev.Model,
			Name:         deviceDisplayName(dev),
			SWVersion:    dev.SoftwareBuildID,
		},
	}
	for _, e := range info.Exposes {
		b.add(e, "")
	}
	if exposes.Find(info.Exposes, "linkquality") == nil {
		b.add(exposes.Linkquality(), "")
	}
	return b.msgs
}

// add emits the entities of an expose. path is the JSON path of the
// enclosing composite property.
func (b *discoveryBuilder) add(e *exposes.Expose, path string) {
	switch e.Type {
	case exposes.TypeSwitch:
		if state := featureNamed(e, "state"); state != nil && path == "" {
			b.binary(state, "", "switch")
			rest(e, state, b.add)
			return
		}
	case exposes.TypeLight:
		if state := featureNamed(e, "state"); state != nil && e.Endpoint == "" && path == "" {
			b.light(e)
			return
		}
	case exposes.TypeComposite:
		sub := path
		if e.Property != "" {
			sub = joinPath(path, e.Property)
		}
		for _, f := range e.Features {
			b.add(f, sub)
		}
		return
	case exposes.TypeNumeric:
		b.numeric(e, path)
		return
	case exposes.TypeBinary:
		comp := "binary_sensor"
		if e.Access.Has(exposes.AccessSet) && path == "" {
			comp = "switch"
		}
		b.binary(e, path, comp)
		return
	case exposes.TypeEnum:
		b.enum(e, path)
		return
	case exposes.TypeText:
		b.text(e, path)
		return
	case exposes.TypeList:
		return
	}
	for _, f := range e.Features {
		b.add(f, path)
	}
}

func featureNamed(e *exposes.Expose, name string) *exposes.Expose {
	for _, f := range e.Features {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func rest(e, skip *exposes.Expose, fn func(*exposes.Expose, string)) {
	for _, f := range e.Features {
		if f != skip {
			fn(f, "")
		}
	}
}

func joinPath(path, prop string) string {
	if path == "" {
		return prop
	}
	return path + "." + prop
}

func (b *discoveryBuilder) entity(comp string, e *exposes.Expose, path string) haDiscovery {
	label := e.Label
	if label == "" {
		label = e.Name
	}
	if e.Endpoint != "" {
		label += " " + e.Endpoint
	}
	d := haDiscovery{
		Name:              b.name + " " + label,
		UniqueID:          b.nodeID + "_" + objectID(e, path) + "_" + comp,
		ObjectID:          strings.TrimPrefix(b.nodeID, "zigbee_") + "_" + objectID(e, path),
		StateTopic:        b.stateTopic,
		AvailabilityTopic: b.avail,
		ValueTemplate:     "{{ value_json." + joinPath(path, e.Property) + " }}",
		Device:            b.device,
	}
	if e.Category != "" {
		d.EntityCategory = e.Category
	}
	if path == "" && e.Access.Has(exposes.AccessSet) {
		d.CommandTopic = b.setTopic
	}
	return d
}

func objectID(e *exposes.Expose, path string) string {
	return strings.ReplaceAll(joinPath(path, e.Property), ".", "_")
}

func (b *discoveryBuilder) emit(comp string, e *exposes.Expose, path string, d haDiscovery) {
	topic := fmt.Sprintf("%s/%s/%s/%s/config", b.prefix, comp, b.nodeID, objectID(e, path))
	b.msgs = append(b.msgs, discoveryMsg{Topic: topic, Payload: mustJSON(d)})
}

func (b *discoveryBuilder) numeric(e *exposes.Expose, path string) {
	if e.Access.Has(exposes.AccessSet) && path == "" {
		d := b.entity("number", e, path)
		d.UnitOfMeasurement = e.Unit
		d.Min, d.Max, d.Step = e.ValueMin, e.ValueMax, e.ValueStep
		d.CommandTemplate = fmt.Sprintf(`{"%s": {{ value }}}`, e.Property)
		b.emit("number", e, path, d)
		return
	}
	d := b.entity("sensor", e, path)
	d.UnitOfMeasurement = e.Unit
	if cls, ok := sensorClasses[e.Name]; ok {
		d.DeviceClass, d.StateClass = cls[0], cls[1]
	} else if e.Unit != "" {
		d.StateClass = "measurement"
	}
	if e.Name == "linkquality" {
		d.UnitOfMeasurement = "lqi"
		d.EntityCategory = exposes.CategoryDiagnostic
	}
	b.emit("sensor", e, path, d)
}

// binary normalizes the expose's on/off values to ON/OFF payloads.
func (b *discoveryBuilder) binary(e *exposes.Expose, path, comp string) {
	d := b.entity(comp, e, path)
	on, off := string(mustJSON(e.ValueOn)), string(mustJSON(e.ValueOff))
	d.ValueTemplate = fmt.Sprintf("{%% if value_json.%s == %s %%}ON{%% else %%}OFF{%% endif %%}", joinPath(path, e.Property), on)
	d.PayloadOn, d.PayloadOff = "ON", "OFF"
	if comp == "switch" {
		d.CommandTemplate = fmt.Sprintf(`{"%s": {%% if value == 'ON' %%}%s{%% else %%}%s{%% endif %%}}`, e.Property, on, off)
	} else {
		d.CommandTopic = ""
		d.DeviceClass = binaryClasses[e.Name]
	}
	b.emit(comp, e, path, d)
}

func (b *discoveryBuilder) enum(e *exposes.Expose, path string) {
	if e.Access.Has(exposes.AccessSet) && path == "" {
		d := b.entity("select", e, path)
		d.Options = e.Values
		d.CommandTemplate = fmt.Sprintf(`{"%s": "{{ value }}"}`, e.Property)
		b.emit("select", e, path, d)
		return
	}
	d := b.entity("sensor", e, path)
	d.CommandTopic = ""
	b.emit("sensor", e, path, d)
}

func (b *discoveryBuilder) text(e *exposes.Expose, path string) {
	if e.Access.Has(exposes.AccessSet) && path == "" {
		d := b.entity("text", e, path)
		d.CommandTemplate = fmt.Sprintf(`{"%s": "{{ value }}"}`, e.Property)
		b.emit("text", e, path, d)
		return
	}
	d := b.entity("sensor", e, path)
	d.CommandTopic = ""
	b.emit("sensor", e, path, d)
}

// light publishes a JSON schema light for the top-level state and
// brightness features.
func (b *discoveryBuilder) light(e *exposes.Expose) {
	d := haDiscovery{
		Name:              b.name,
		UniqueID:          b.nodeID + "_light",
		StateTopic:        b.stateTopic,
		CommandTopic:      b.setTopic,
		AvailabilityTopic: b.avail,
		Schema:            "json",
		Device:            b.device,
	}
	if featureNamed(e, "brightness") != nil {
		d.Brightness = true
		d.BrightnessScale = 254
		d.SupportedColorModes = []string{"brightness"}
	} else {
		d.SupportedColorModes = []string{"onoff"}
	}
	topic := fmt.Sprintf("%s/light/%s/light/config", b.prefix, b.nodeID)
	b.msgs = append(b.msgs, discoveryMsg{Topic: topic, Payload: mustJSON(d)})
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
