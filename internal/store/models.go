package store

import (
	"maps"
	"time"

	"zigbee-go-converters/internal/definition"
)

// Device is the persisted record of a device: its interview identity, the
// definition it resolved to and its last known state.
type Device struct {
	IEEEAddress      string         `json:"ieee_address"`
	NetworkAddress   uint16         `json:"network_address"`
	Type             string         `json:"type,omitempty"`
	ModelID          string         `json:"model_id,omitempty"`
	ManufacturerName string         `json:"manufacturer_name,omitempty"`
	ManufacturerID   uint16         `json:"manufacturer_id,omitempty"`
	PowerSource      string         `json:"power_source,omitempty"`
	DateCode         string         `json:"date_code,omitempty"`
	SoftwareBuildID  string         `json:"software_build_id,omitempty"`
	FriendlyName     string         `json:"friendly_name,omitempty"`
	Endpoints        []Endpoint     `json:"endpoints,omitempty"`
	Interviewed      bool           `json:"interviewed"`
	Model            string         `json:"model,omitempty"`      // resolved definition model
	Vendor           string         `json:"vendor,omitempty"`     // resolved definition vendor
	Configured       string         `json:"configured,omitempty"` // model the configure hook succeeded for
	JoinedAt         time.Time      `json:"joined_at"`
	LastSeen         time.Time      `json:"last_seen"`
	LinkQuality      uint8          `json:"linkquality,omitempty"`
	Options          map[string]any `json:"options,omitempty"`
	State            map[string]any `json:"state,omitempty"`
}

// Endpoint represents a device endpoint.
type Endpoint struct {
	ID          uint8    `json:"id"`
	ProfileID   uint16   `json:"profile_id"`
	DeviceID    uint16   `json:"device_id"`
	InClusters  []uint16 `json:"in_clusters"`
	OutClusters []uint16 `json:"out_clusters"`
}

// NewDevice creates a record from an interviewed device.
func NewDevice(dev *definition.Device) *Device {
	d := &Device{IEEEAddress: dev.IEEEAddr}
	d.SetIdentity(dev)
	return d
}

// SetIdentity copies the interview data of dev into d.
func (d *Device) SetIdentity(dev *definition.Device) {
	d.NetworkAddress = dev.NetworkAddr
	d.Type = dev.Type
	d.ModelID = dev.ModelID
	d.ManufacturerName = dev.ManufacturerName
	d.ManufacturerID = dev.ManufacturerID
	d.PowerSource = dev.PowerSource
	d.DateCode = dev.DateCode
	d.SoftwareBuildID = dev.SoftwareBuildID
	d.Endpoints = d.Endpoints[:0]
	for _, ep := range dev.Endpoints {
		d.Endpoints = append(d.Endpoints, Endpoint{
			ID:          ep.ID,
			ProfileID:   ep.ProfileID,
			DeviceID:    ep.DeviceID,
			InClusters:  ep.InputClusters,
			OutClusters: ep.OutputClusters,
		})
	}
}

// Identity returns the device as seen by definition resolution.
func (d *Device) Identity() *definition.Device {
	dev := &definition.Device{
		IEEEAddr:         d.IEEEAddress,
		NetworkAddr:      d.NetworkAddress,
		Type:             d.Type,
		ModelID:          d.ModelID,
		ManufacturerID:   d.ManufacturerID,
		ManufacturerName: d.ManufacturerName,
		PowerSource:      d.PowerSource,
		DateCode:         d.DateCode,
		SoftwareBuildID:  d.SoftwareBuildID,
	}
	for _, ep := range d.Endpoints {
		dev.Endpoints = append(dev.Endpoints, &definition.DeviceEndpoint{
			ID:             ep.ID,
			ProfileID:      ep.ProfileID,
			DeviceID:       ep.DeviceID,
			InputClusters:  ep.InClusters,
			OutputClusters: ep.OutClusters,
		})
	}
	return dev
}

// MergeState merges values into the stored state.
func (d *Device) MergeState(values map[string]any) {
	if d.State == nil {
		d.State = make(map[string]any, len(values))
	}
	maps.Copy(d.State, values)
}
