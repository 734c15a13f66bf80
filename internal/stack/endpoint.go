package stack

import (
	"context"
	"encoding"
	"fmt"

	"zigbee-go-converters/internal/definition"
)

// Provider hands out definition endpoints backed by a Stack.
type Provider struct {
	Stack               Stack
	CoordinatorEndpoint uint8
}

// Endpoint implements definition.EndpointProvider.
func (p *Provider) Endpoint(dev *definition.Device, id uint8) definition.Endpoint {
	return &endpoint{p: p, target: Target{IEEE: dev.IEEEAddr, NetworkAddr: dev.NetworkAddr, Endpoint: id}}
}

type endpoint struct {
	p      *Provider
	target Target
}

func options(o *definition.CommandOptions) Options {
	if o == nil {
		return Options{}
	}
	return Options{DisableDefaultResponse: o.DisableDefaultResponse, ManufacturerCode: o.ManufacturerCode}
}

func (e *endpoint) ID() uint8 { return e.target.Endpoint }

func (e *endpoint) Read(ctx context.Context, cluster string, attributes []string, opts *definition.CommandOptions) (map[string]any, error) {
	return e.p.Stack.Read(ctx, ReadRequest{Target: e.target, Cluster: cluster, Attributes: attributes, Options: options(opts)})
}

func (e *endpoint) Write(ctx context.Context, cluster string, values map[string]any, opts *definition.CommandOptions) error {
	return e.p.Stack.Write(ctx, WriteRequest{Target: e.target, Cluster: cluster, Attributes: values, Options: options(opts)})
}

// Command forwards payloads that marshal themselves, such as Tuya datapoint
// commands, as raw bytes.
func (e *endpoint) Command(ctx context.Context, cluster, command string, payload any, opts *definition.CommandOptions) error {
	if m, ok := payload.(encoding.BinaryMarshaler); ok {
		data, err := m.MarshalBinary()
		if err != nil {
			return fmt.Errorf("%s %s payload: %w", cluster, command, err)
		}
		payload = data
	}
	return e.p.Stack.Command(ctx, CommandRequest{Target: e.target, Cluster: cluster, Command: command, Payload: payload, Options: options(opts)})
}

func (e *endpoint) Bind(ctx context.Context, cluster string, coordinatorEndpoint uint8) error {
	if coordinatorEndpoint == 0 {
		coordinatorEndpoint = e.p.CoordinatorEndpoint
	}
	if coordinatorEndpoint == 0 {
		coordinatorEndpoint = DefaultCoordinatorEndpoint
	}
	return e.p.Stack.Bind(ctx, BindRequest{Target: e.target, Cluster: cluster, DstEndpoint: coordinatorEndpoint})
}

func (e *endpoint) ConfigureReporting(ctx context.Context, cluster string, items []definition.ReportingItem, opts *definition.CommandOptions) error {
	req := ReportingRequest{Target: e.target, Cluster: cluster, Options: options(opts)}
	for _, it := range items {
		req.Items = append(req.Items, ReportingItem{
			Attribute:        it.Attribute,
			MinInterval:      it.MinInterval,
			MaxInterval:      it.MaxInterval,
			ReportableChange: it.ReportableChange,
		})
	}
	return e.p.Stack.ConfigureReporting(ctx, req)
}

// Identity converts an interview event into a device for resolution.
func (ev DeviceInterviewEvent) Identity() *definition.Device {
	dev := &definition.Device{
		IEEEAddr:         ev.IEEE,
		NetworkAddr:      ev.NetworkAddr,
		Type:             ev.Type,
		ModelID:          ev.ModelID,
		ManufacturerID:   ev.ManufacturerID,
		ManufacturerName: ev.ManufacturerName,
		PowerSource:      ev.PowerSource,
		DateCode:         ev.DateCode,
		SoftwareBuildID:  ev.SoftwareBuildID,
	}
	for _, ep := range ev.Endpoints {
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
