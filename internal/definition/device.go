package definition

import (
	"context"
	"slices"
)

// Device types as reported by the Zigbee stack.
const (
	DeviceCoordinator = "Coordinator"
	DeviceRouter      = "Router"
	DeviceEndDevice   = "EndDevice"
)

// Device is the identity of a physical device as observed on the network.
type Device struct {
	IEEEAddr           string            `json:"ieee_address"`
	NetworkAddr        uint16            `json:"network_address"`
	Type               string            `json:"type,omitempty"`
	ModelID            string            `json:"model_id,omitempty"`
	ManufacturerID     uint16            `json:"manufacturer_id,omitempty"`
	ManufacturerName   string            `json:"manufacturer_name,omitempty"`
	PowerSource        string            `json:"power_source,omitempty"`
	DateCode           string            `json:"date_code,omitempty"`
	SoftwareBuildID    string            `json:"software_build_id,omitempty"`
	HardwareVersion    int               `json:"hardware_version,omitempty"`
	StackVersion       int               `json:"stack_version,omitempty"`
	ZCLVersion         int               `json:"zcl_version,omitempty"`
	ApplicationVersion int               `json:"application_version,omitempty"`
	Endpoints          []*DeviceEndpoint `json:"endpoints,omitempty"`

	provider EndpointProvider
}

// DeviceEndpoint is one simple descriptor of a device.
type DeviceEndpoint struct {
	ID             uint8    `json:"id"`
	ProfileID      uint16   `json:"profile_id"`
	DeviceID       uint16   `json:"device_id"`
	InputClusters  []uint16 `json:"input_clusters"`
	OutputClusters []uint16 `json:"output_clusters"`
}

// SupportsInput reports whether the endpoint has cluster as a server.
func (e *DeviceEndpoint) SupportsInput(cluster uint16) bool {
	return slices.Contains(e.InputClusters, cluster)
}

// SupportsOutput reports whether the endpoint has cluster as a client.
func (e *DeviceEndpoint) SupportsOutput(cluster uint16) bool {
	return slices.Contains(e.OutputClusters, cluster)
}

// EndpointProvider gives access to the transport for a device endpoint.
type EndpointProvider interface {
	Endpoint(dev *Device, id uint8) Endpoint
}

// SetEndpointProvider attaches the transport used by GetEndpoint.
func (d *Device) SetEndpointProvider(p EndpointProvider) { d.provider = p }

// IsCoordinator reports whether the device is the network coordinator.
func (d *Device) IsCoordinator() bool { return d.Type == DeviceCoordinator }

// FindEndpoint returns the descriptor for id, or nil.
func (d *Device) FindEndpoint(id uint8) *DeviceEndpoint {
	for _, ep := range d.Endpoints {
		if ep.ID == id {
			return ep
		}
	}
	return nil
}

// GetEndpoint returns a transport handle for endpoint id, or nil when the
// device has no such endpoint or no transport is attached.
func (d *Device) GetEndpoint(id uint8) Endpoint {
	if d.provider == nil || d.FindEndpoint(id) == nil {
		return nil
	}
	return d.provider.Endpoint(d, id)
}

// FirstEndpoint returns the first endpoint handle, or nil.
func (d *Device) FirstEndpoint() Endpoint {
	if len(d.Endpoints) == 0 {
		return nil
	}
	return d.GetEndpoint(d.Endpoints[0].ID)
}

// CommandOptions tunes a single ZCL request.
type CommandOptions struct {
	DisableDefaultResponse bool
	ManufacturerCode       uint16
}

// ReportingItem configures reporting of one attribute.
type ReportingItem struct {
	Attribute        string
	MinInterval      uint16
	MaxInterval      uint16
	ReportableChange any
}

// Endpoint is the transport surface converters and hooks talk to. Clusters,
// attributes and commands are addressed by name or numeric ID string.
type Endpoint interface {
	ID() uint8
	Read(ctx context.Context, cluster string, attributes []string, opts *CommandOptions) (map[string]any, error)
	Write(ctx context.Context, cluster string, values map[string]any, opts *CommandOptions) error
	// Command sends a cluster-specific command. payload is a parameter map,
	// raw bytes, or an encoding.BinaryMarshaler.
	Command(ctx context.Context, cluster, command string, payload any, opts *CommandOptions) error
	Bind(ctx context.Context, cluster string, targetEndpoint uint8) error
	ConfigureReporting(ctx context.Context, cluster string, items []ReportingItem, opts *CommandOptions) error
}
