// Package stack defines the boundary to the external Zigbee stack that owns
// the radio, network formation and ZCL frame encoding. Messages cross it
// with cluster, attribute and command names.
package stack

import "context"

// DefaultCoordinatorEndpoint is the coordinator endpoint used as bind
// destination.
const DefaultCoordinatorEndpoint uint8 = 1

// Stack is the abstract interface of a Zigbee stack backend.
type Stack interface {
	// ZCL
	Read(ctx context.Context, req ReadRequest) (map[string]any, error)
	Write(ctx context.Context, req WriteRequest) error
	Command(ctx context.Context, req CommandRequest) error
	ConfigureReporting(ctx context.Context, req ReportingRequest) error

	// ZDO
	Bind(ctx context.Context, req BindRequest) error

	// Indication callbacks
	OnDeviceInterview(handler func(DeviceInterviewEvent))
	OnDeviceAnnounce(handler func(DeviceAnnounceEvent))
	OnDeviceLeft(handler func(DeviceLeftEvent))
	OnAttributeReport(handler func(AttributeReportEvent))
	OnClusterCommand(handler func(ClusterCommandEvent))

	// Lifecycle
	Close() error
}

// Target addresses one endpoint of a device.
type Target struct {
	IEEE        string `json:"ieee"`
	NetworkAddr uint16 `json:"network_address"`
	Endpoint    uint8  `json:"endpoint"`
}

// Options tune the ZCL frame of a request.
type Options struct {
	DisableDefaultResponse bool   `json:"disable_default_response,omitempty"`
	ManufacturerCode       uint16 `json:"manufacturer_code,omitempty"`
}

// ReadRequest reads attributes by name.
type ReadRequest struct {
	Target
	Cluster    string   `json:"cluster"`
	Attributes []string `json:"attributes"`
	Options    Options  `json:"options"`
}

// WriteRequest writes attributes by name.
type WriteRequest struct {
	Target
	Cluster    string         `json:"cluster"`
	Attributes map[string]any `json:"attributes"`
	Options    Options        `json:"options"`
}

// CommandRequest sends a cluster command. Payload is a map of named
// parameters, or raw bytes for manufacturer-specific frames.
type CommandRequest struct {
	Target
	Cluster string  `json:"cluster"`
	Command string  `json:"command"`
	Payload any     `json:"payload,omitempty"`
	Options Options `json:"options"`
}

// ReportingItem configures reporting of one attribute.
type ReportingItem struct {
	Attribute        string `json:"attribute"`
	MinInterval      uint16 `json:"min_interval"`
	MaxInterval      uint16 `json:"max_interval"`
	ReportableChange any    `json:"reportable_change,omitempty"`
}

// ReportingRequest configures attribute reporting.
type ReportingRequest struct {
	Target
	Cluster string          `json:"cluster"`
	Items   []ReportingItem `json:"items"`
	Options Options         `json:"options"`
}

// BindRequest binds a cluster of the target endpoint to the coordinator.
type BindRequest struct {
	Target
	Cluster     string `json:"cluster"`
	DstEndpoint uint8  `json:"dst_endpoint"`
}

// EndpointInfo is the simple descriptor of an endpoint.
type EndpointInfo struct {
	ID          uint8    `json:"id"`
	ProfileID   uint16   `json:"profile_id"`
	DeviceID    uint16   `json:"device_id"`
	InClusters  []uint16 `json:"in_clusters"`
	OutClusters []uint16 `json:"out_clusters"`
}

// DeviceInterviewEvent is emitted when the stack finished interviewing a
// device.
type DeviceInterviewEvent struct {
	IEEE             string         `json:"ieee"`
	NetworkAddr      uint16         `json:"network_address"`
	Type             string         `json:"type"`
	ModelID          string         `json:"model_id"`
	ManufacturerName string         `json:"manufacturer_name"`
	ManufacturerID   uint16         `json:"manufacturer_id"`
	PowerSource      string         `json:"power_source"`
	DateCode         string         `json:"date_code"`
	SoftwareBuildID  string         `json:"software_build_id"`
	Endpoints        []EndpointInfo `json:"endpoints"`
}

// DeviceAnnounceEvent is emitted on device announce.
type DeviceAnnounceEvent struct {
	IEEE        string `json:"ieee"`
	NetworkAddr uint16 `json:"network_address"`
}

// DeviceLeftEvent is emitted when a device leaves.
type DeviceLeftEvent struct {
	IEEE string `json:"ieee"`
}

// AttributeReportEvent carries decoded attributes of a report or read
// response.
type AttributeReportEvent struct {
	IEEE             string         `json:"ieee"`
	Endpoint         uint8          `json:"endpoint"`
	Cluster          string         `json:"cluster"`
	Type             string         `json:"type"` // attributeReport or readResponse
	Attributes       map[string]any `json:"attributes"`
	LinkQuality      uint8          `json:"linkquality"`
	Sequence         uint8          `json:"sequence"`
	ManufacturerCode uint16         `json:"manufacturer_code,omitempty"`
}

// ClusterCommandEvent carries an incoming cluster command. Raw holds the
// payload of commands the stack does not decode (e.g. Tuya datapoints).
type ClusterCommandEvent struct {
	IEEE             string         `json:"ieee"`
	Endpoint         uint8          `json:"endpoint"`
	Cluster          string         `json:"cluster"`
	Command          string         `json:"command"`
	Payload          map[string]any `json:"payload,omitempty"`
	Raw              []byte         `json:"raw,omitempty"`
	LinkQuality      uint8          `json:"linkquality"`
	Sequence         uint8          `json:"sequence"`
	ManufacturerCode uint16         `json:"manufacturer_code,omitempty"`
}
