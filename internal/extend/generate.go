package extend

import (
	"fmt"

	"zigbee-go-converters/internal/definition"
)

// Generator builds definitions for devices no definition matches, from the
// clusters their endpoints serve.
type Generator struct{}

// Generate implements definition.Generator. It returns nil when the device
// has nothing a fragment can expose.
func (Generator) Generate(dev *definition.Device) (*definition.Declaration, error) {
	if dev == nil {
		return nil, fmt.Errorf("nil device")
	}
	has := func(id uint16) bool {
		for _, ep := range dev.Endpoints {
			if ep.SupportsInput(id) {
				return true
			}
		}
		return false
	}
	var extends []definition.ModernExtend
	onOffEPs := map[string]uint8{}
	for _, ep := range dev.Endpoints {
		if ep.SupportsInput(ClusterOnOff) && !ep.SupportsInput(ClusterLevelCtrl) {
			onOffEPs[fmt.Sprintf("l%d", ep.ID)] = ep.ID
		}
	}

	switch {
	case has(ClusterLevelCtrl) && has(ClusterOnOff):
		extends = append(extends, Light(true))
	case len(onOffEPs) > 1:
		extends = append(extends,
			DeviceEndpoints(onOffEPs),
			OnOff(OnOffArgs{Endpoints: sortedNames(onOffEPs)}),
		)
	case len(onOffEPs) == 1:
		extends = append(extends, OnOff(OnOffArgs{}))
	}
	if has(ClusterThermostat) {
		extends = append(extends, Thermostat())
	}
	if has(ClusterElectrical) || has(ClusterMetering) {
		extends = append(extends, ElectricityMeter())
	}
	if has(ClusterTemperature) && !has(ClusterThermostat) {
		extends = append(extends, Temperature())
	}
	if has(ClusterHumidity) {
		extends = append(extends, Humidity())
	}
	if has(ClusterPressure) {
		extends = append(extends, Pressure())
	}
	if has(ClusterIlluminance) {
		extends = append(extends, Illuminance())
	}
	if has(ClusterOccupancy) {
		extends = append(extends, Occupancy(false))
	}
	if has(ClusterIASZone) {
		extends = append(extends, IASZone("alarm"))
	}
	if has(ClusterPowerCfg) {
		extends = append(extends, Battery(BatteryArgs{Percentage: true}))
	}
	for _, ep := range dev.Endpoints {
		if ep.SupportsOutput(ClusterOnOff) {
			extends = append(extends, CommandsOnOff())
			break
		}
	}
	if has(ClusterIdentify) {
		extends = append(extends, Identify())
	}
	if len(extends) == 0 {
		return nil, nil
	}

	model := dev.ModelID
	if model == "" {
		model = dev.IEEEAddr
	}
	vendor := dev.ManufacturerName
	if vendor == "" {
		vendor = "Unknown"
	}
	decl := &definition.Declaration{
		Model:       model,
		Vendor:      vendor,
		Description: "Automatically generated definition",
		Extend:      extends,
	}
	if dev.ModelID != "" {
		decl.ZigbeeModel = []string{dev.ModelID}
	}
	return decl, nil
}
