package devices

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
	"zigbee-go-converters/internal/extend"
	"zigbee-go-converters/internal/tuya"
	"zigbee-go-converters/internal/zcl"
)

// FingerprintSpec is the declarative form of definition.Fingerprint.
type FingerprintSpec struct {
	Type             string `yaml:"type,omitempty"`
	ModelID          string `yaml:"model_id,omitempty"`
	ManufacturerName string `yaml:"manufacturer_name,omitempty"`
	ManufacturerID   uint16 `yaml:"manufacturer_id,omitempty"`
	PowerSource      string `yaml:"power_source,omitempty"`
	SoftwareBuildID  string `yaml:"software_build_id,omitempty"`
	IEEEAddr         string `yaml:"ieee_address,omitempty"`
	Priority         int    `yaml:"priority,omitempty"`
}

// WhiteLabelSpec is the declarative form of definition.WhiteLabel.
type WhiteLabelSpec struct {
	Model       string            `yaml:"model"`
	Vendor      string            `yaml:"vendor"`
	Description string            `yaml:"description,omitempty"`
	Fingerprint []FingerprintSpec `yaml:"fingerprint,omitempty"`
}

// DatapointSpec maps one Tuya datapoint to a property.
type DatapointSpec struct {
	DP            uint8              `yaml:"dp"`
	Name          string             `yaml:"name,omitempty"`
	Converter     tuya.ConverterSpec `yaml:"converter"`
	NonOptimistic bool               `yaml:"non_optimistic,omitempty"`
	// Custom overrides Converter; set by loaders that build converters in
	// code, such as Lua external converters.
	Custom        *tuya.Converter    `yaml:"-"`
}

// TuyaSpec configures the Tuya datapoint layer of a definition.
type TuyaSpec struct {
	SendCommand      string          `yaml:"send_command,omitempty"`
	QueryOnConfigure bool            `yaml:"query_on_configure,omitempty"`
	MagicPacket      bool            `yaml:"magic_packet,omitempty"`
	Epoch2000        bool            `yaml:"epoch_2000,omitempty"`
	QueryInterval    time.Duration   `yaml:"query_interval,omitempty"`
	TimeSyncInterval time.Duration   `yaml:"time_sync_interval,omitempty"`
	Datapoints       []DatapointSpec `yaml:"datapoints"`
}

// DefinitionSpec is one device definition in a definition file.
type DefinitionSpec struct {
	Model       string            `yaml:"model"`
	Vendor      string            `yaml:"vendor"`
	Description string            `yaml:"description"`
	ZigbeeModel []string          `yaml:"zigbee_model,omitempty"`
	Fingerprint []FingerprintSpec `yaml:"fingerprint,omitempty"`
	WhiteLabel  []WhiteLabelSpec  `yaml:"white_label,omitempty"`
	Extend      []string          `yaml:"extend,omitempty"`
	Endpoints   map[string]uint8  `yaml:"endpoints,omitempty"`
	Tuya        *TuyaSpec         `yaml:"tuya,omitempty"`
	Exposes     []exposes.Spec    `yaml:"exposes,omitempty"`
	Meta        map[string]any    `yaml:"meta,omitempty"`
}

// definitionFile is the structure of files in the devices directory.
type definitionFile struct {
	Clusters    []zcl.ClusterDef `yaml:"clusters,omitempty"`
	Definitions []DefinitionSpec `yaml:"definitions,omitempty"`
	// Manufacturers groups definitions under one vendor name.
	Manufacturers []struct {
		Name   string           `yaml:"name"`
		Models []DefinitionSpec `yaml:"models"`
	} `yaml:"manufacturers,omitempty"`
}

// fragments maps names usable in extend lists to ZCL fragments.
var fragments = map[string]func() definition.ModernExtend{
	"on_off":            func() definition.ModernExtend { return extend.OnOff(extend.OnOffArgs{}) },
	"light":             func() definition.ModernExtend { return extend.Light(false) },
	"light_brightness":  func() definition.ModernExtend { return extend.Light(true) },
	"battery":           func() definition.ModernExtend { return extend.Battery(extend.BatteryArgs{Percentage: true}) },
	"battery_voltage":   func() definition.ModernExtend { return extend.Battery(extend.BatteryArgs{Voltage: true}) },
	"temperature":       extend.Temperature,
	"humidity":          extend.Humidity,
	"pressure":          extend.Pressure,
	"illuminance":       extend.Illuminance,
	"occupancy":         func() definition.ModernExtend { return extend.Occupancy(false) },
	"occupancy_timeout": func() definition.ModernExtend { return extend.Occupancy(true) },
	"contact":           func() definition.ModernExtend { return extend.IASZone("contact") },
	"water_leak":        func() definition.ModernExtend { return extend.IASZone("water_leak") },
	"identify":          extend.Identify,
	"commands_on_off":   extend.CommandsOnOff,
	"electricity_meter": extend.ElectricityMeter,
	"thermostat":        extend.Thermostat,
	"lumi_basic":        func() definition.ModernExtend { return extend.LumiBasic(false) },
	"lumi_contact":      func() definition.ModernExtend { return extend.LumiBasic(true) },
}

// Fragments lists the fragment names usable in definition files.
func Fragments() []string {
	out := make([]string, 0, len(fragments))
	for k := range fragments {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (f FingerprintSpec) build() (definition.Fingerprint, error) {
	var out definition.Fingerprint
	if f.Type != "" {
		out.Type = definition.Ptr(f.Type)
	}
	if f.ModelID != "" {
		out.ModelID = definition.Ptr(f.ModelID)
	}
	if f.ManufacturerName != "" {
		out.ManufacturerName = definition.Ptr(f.ManufacturerName)
	}
	if f.ManufacturerID != 0 {
		out.ManufacturerID = definition.Ptr(f.ManufacturerID)
	}
	if f.PowerSource != "" {
		out.PowerSource = definition.Ptr(f.PowerSource)
	}
	if f.SoftwareBuildID != "" {
		out.SoftwareBuildID = definition.Ptr(f.SoftwareBuildID)
	}
	if f.IEEEAddr != "" {
		re, err := regexp.Compile(f.IEEEAddr)
		if err != nil {
			return out, fmt.Errorf("ieee_address: %w", err)
		}
		out.IEEEAddr = re
	}
	out.Priority = f.Priority
	return out, nil
}

func buildFingerprints(specs []FingerprintSpec) ([]definition.Fingerprint, error) {
	var out []definition.Fingerprint
	for i, s := range specs {
		f, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("fingerprint[%d]: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Declaration converts the file entry into a declaration ready for composition.
func (s *DefinitionSpec) Declaration() (*definition.Declaration, error) {
	fps, err := buildFingerprints(s.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Model, err)
	}
	decl := &definition.Declaration{
		Model:       s.Model,
		Vendor:      s.Vendor,
		Description: s.Description,
		ZigbeeModel: s.ZigbeeModel,
		Fingerprint: fps,
		Exposes:     exposes.Build(s.Exposes),
	}
	if len(s.Meta) > 0 {
		decl.Meta = definition.Meta(s.Meta)
	}
	for _, wl := range s.WhiteLabel {
		fps, err := buildFingerprints(wl.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("%s: white label %s: %w", s.Model, wl.Model, err)
		}
		decl.WhiteLabel = append(decl.WhiteLabel, definition.WhiteLabel{
			Model: wl.Model, Vendor: wl.Vendor, Description: wl.Description, Fingerprint: fps,
		})
	}
	if len(s.Endpoints) > 0 {
		decl.Extend = append(decl.Extend, extend.DeviceEndpoints(s.Endpoints))
	}
	for _, name := range s.Extend {
		fn, ok := fragments[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%s: unknown extend %q", s.Model, name)
		}
		decl.Extend = append(decl.Extend, fn())
	}
	if s.Tuya != nil {
		base, err := s.Tuya.base()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Model, err)
		}
		decl.Extend = append(decl.Extend, base)
	}
	return decl, nil
}

func (t *TuyaSpec) base() (definition.ModernExtend, error) {
	table := make(tuya.Table, 0, len(t.Datapoints))
	for _, dp := range t.Datapoints {
		conv := dp.Custom
		if conv == nil {
			var err error
			conv, err = dp.Converter.Build()
			if err != nil {
				return definition.ModernExtend{}, fmt.Errorf("datapoint %d (%s): %w", dp.DP, dp.Name, err)
			}
		}
		table = append(table, tuya.Datapoint{DP: dp.DP, Name: dp.Name, Converter: conv, NonOptimistic: dp.NonOptimistic})
	}
	return tuya.Base(tuya.BaseOptions{
		Datapoints:       table,
		SendCommand:      t.SendCommand,
		QueryOnConfigure: t.QueryOnConfigure,
		MagicPacket:      t.MagicPacket,
		Events: tuya.EventOptions{
			Epoch2000:        t.Epoch2000,
			QueryInterval:    t.QueryInterval,
			TimeSyncInterval: t.TimeSyncInterval,
		},
	}), nil
}

// ParseFile decodes a YAML or JSON definition file. Custom clusters are
// registered into clusters when it is non-nil.
func ParseFile(data []byte, clusters *zcl.Registry) ([]*definition.Declaration, error) {
	var df definitionFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, err
	}
	if clusters != nil {
		for _, c := range df.Clusters {
			clusters.Register(c)
		}
	}
	specs := df.Definitions
	for _, mg := range df.Manufacturers {
		for _, m := range mg.Models {
			if m.Vendor == "" {
				m.Vendor = mg.Name
			}
			specs = append(specs, m)
		}
	}
	decls := make([]*definition.Declaration, 0, len(specs))
	for i := range specs {
		decl, err := specs[i].Declaration()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// LoadDir reads all *.yaml, *.yml and *.json files from dir and adds their
// definitions to reg. A missing or empty directory is not an error.
func LoadDir(dir string, reg *definition.Registry, clusters *zcl.Registry, logger *slog.Logger) (int, error) {
	var matches []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, fmt.Errorf("glob devices dir: %w", err)
		}
		matches = append(matches, m...)
	}
	slices.Sort(matches)
	if len(matches) == 0 {
		logger.Info("no definition files found", "dir", dir)
		return 0, nil
	}

	total := 0
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", path, err)
		}
		decls, err := ParseFile(data, clusters)
		if err != nil {
			return total, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, decl := range decls {
			if _, err := reg.Add(decl); err != nil {
				return total, fmt.Errorf("%s: %w", path, err)
			}
		}
		total += len(decls)
		logger.Info("loaded definition file", "path", filepath.Base(path), "definitions", len(decls))
	}

	logger.Info("definition files loaded", "files", len(matches), "definitions", total)
	return total, nil
}
