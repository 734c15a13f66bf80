package tuya

import (
	"context"
	"fmt"
	"log/slog"

	"zigbee-go-converters/internal/definition"
)

// MetaDatapoints is the definition meta key holding the datapoint table.
const MetaDatapoints = "tuyaDatapoints"

// Meta keys tuning outbound datapoint commands.
const (
	MetaSendCommand     = "tuyaSendCommand"     // command used for writes, default dataRequest
	MetaDisableSequence = "tuyaDisableSequence" // send every command with sequence 0
	metaSequenceKey     = "tuyaSequence"
)

// Datapoint is one entry of a datapoint table. An empty Name means the
// converter decodes into a map of properties that is merged into the result.
type Datapoint struct {
	DP        uint8
	Name      string
	Converter *Converter
	// Skip suppresses sending the value when it reports true.
	Skip func(meta *definition.EncodeMeta) bool
	// NonOptimistic entries are not echoed into state before the device
	// confirms them.
	NonOptimistic bool
}

// Table is an ordered datapoint table; lookups take the first match.
type Table []Datapoint

// TableOf returns the datapoint table of a definition.
func TableOf(def *definition.Definition) Table {
	if def == nil {
		return nil
	}
	switch t := def.Meta[MetaDatapoints].(type) {
	case Table:
		return t
	case []Datapoint:
		return t
	}
	return nil
}

func (t Table) byDP(dp uint8) *Datapoint {
	for i := range t {
		if t[i].DP == dp {
			return &t[i]
		}
	}
	return nil
}

func (t Table) byName(name string) *Datapoint {
	for i := range t {
		if t[i].Name == name && t[i].Converter != nil && t[i].Converter.Encode != nil {
			return &t[i]
		}
	}
	return nil
}

// Keys returns the property names that can be set through the table.
func (t Table) Keys() []string {
	var keys []string
	for _, dp := range t {
		if dp.Name != "" && dp.Converter != nil && dp.Converter.Encode != nil {
			keys = append(keys, dp.Name)
		}
	}
	return keys
}

// Decode converts the records of cmd into properties. Records without a
// table entry are logged and skipped; a converter error fails the message.
func (t Table) Decode(cmd *Command, meta *definition.DecodeMeta) (map[string]any, error) {
	return t.decode(cmd, meta, true)
}

func (t Table) decode(cmd *Command, meta *definition.DecodeMeta, logUnknown bool) (map[string]any, error) {
	result := make(map[string]any)
	for _, v := range cmd.DPValues {
		entry := t.byDP(v.DP)
		if entry == nil {
			if logUnknown {
				logger(meta).Debug("unknown datapoint",
					"ieee", ieeeOf(meta),
					"dp", v.DP,
					"type", v.Type.String(),
					"data", fmt.Sprintf("%X", v.Data),
				)
			}
			continue
		}
		if entry.Converter == nil || entry.Converter.Decode == nil {
			continue
		}
		raw, err := v.Value()
		if err != nil {
			return nil, err
		}
		out, err := entry.Converter.Decode(raw, meta)
		if err != nil {
			return nil, fmt.Errorf("datapoint %d (%s): %w", v.DP, entry.Name, err)
		}
		if entry.Name != "" {
			result[entry.Name] = out
			continue
		}
		m, ok := out.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("datapoint %d: %w: converter returned %T, want an object", v.DP, ErrValue, out)
		}
		for k, val := range m {
			result[k] = val
		}
	}
	return result, nil
}

// Encode sends one property through its datapoint entry and returns the
// optimistic state, or nil when nothing is echoed.
func (t Table) Encode(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
	var entry *Datapoint
	if meta.EndpointName != "" {
		entry = t.byName(key + "_" + meta.EndpointName)
	}
	if entry == nil {
		entry = t.byName(key)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w defined for '%s'", ErrNoDatapoint, key)
	}
	if entry.Skip != nil && entry.Skip(meta) {
		return nil, nil
	}
	raw, err := entry.Converter.Encode(value, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	dpv, err := NewDPValue(entry.DP, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := SendDatapoints(ctx, ep, meta.Definition, meta.Device, meta.Store, dpv); err != nil {
		return nil, err
	}
	if entry.NonOptimistic {
		return nil, nil
	}
	return &definition.EncodeResult{State: map[string]any{key: value}}, nil
}

// SendDatapoints transmits records in a single command using the
// definition's send command and the device's next sequence number.
func SendDatapoints(ctx context.Context, ep definition.Endpoint, def *definition.Definition, dev *definition.Device, store *definition.SideTable, values ...DPValue) error {
	if ep == nil {
		return fmt.Errorf("send datapoints: no endpoint")
	}
	command := "dataRequest"
	var meta definition.Meta
	if def != nil {
		meta = def.Meta
	}
	if c := meta.String(MetaSendCommand); c != "" {
		command = c
	}
	var seq uint16
	if !meta.Bool(MetaDisableSequence) {
		seq = NextSequence(store, dev)
	}
	cmd := &Command{Seq: seq, DPValues: values}
	if err := ep.Command(ctx, Cluster, command, cmd, &definition.CommandOptions{DisableDefaultResponse: true}); err != nil {
		return fmt.Errorf("tuya %s: %w", command, err)
	}
	return nil
}

// NextSequence returns the transaction sequence for the next command to
// dev, counting up from 0 and wrapping at 0xFFFF.
func NextSequence(store *definition.SideTable, dev *definition.Device) uint16 {
	if store == nil || dev == nil {
		return 0
	}
	var seq uint16
	store.Update(dev.IEEEAddr, metaSequenceKey, func(old any, ok bool) any {
		if ok {
			seq, _ = old.(uint16)
		}
		return uint16((uint32(seq) + 1) % 0xFFFF)
	})
	return seq
}

func logger(meta *definition.DecodeMeta) *slog.Logger {
	if meta != nil && meta.Logger != nil {
		return meta.Logger
	}
	return slog.Default()
}

func ieeeOf(meta *definition.DecodeMeta) string {
	if meta != nil && meta.Device != nil {
		return meta.Device.IEEEAddr
	}
	return ""
}

// Message types that carry datapoint reports.
var reportTypes = []string{
	"commandDataResponse",
	"commandDataReport",
	"commandActiveStatusReport",
	"commandActiveStatusReportAlt",
}

// commandOf extracts the datapoint command from a message.
func commandOf(msg *definition.Message) (*Command, error) {
	switch d := msg.Data.(type) {
	case *Command:
		return d, nil
	case []byte:
		return ParseCommand(d)
	}
	return nil, fmt.Errorf("%w: unexpected %s payload %T", ErrValue, msg.Type, msg.Data)
}

// TableDecoder decodes reports using the definition's datapoint table.
func TableDecoder() *definition.Decoder {
	return &definition.Decoder{
		Cluster: Cluster,
		Types:   reportTypes,
		Convert: func(def *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
			cmd, err := commandOf(msg)
			if err != nil {
				return nil, err
			}
			return TableOf(def).Decode(cmd, meta)
		},
	}
}

// TableEncoder sets keys through the definition's datapoint table and
// queries all datapoints on get.
func TableEncoder(keys []string) *definition.Encoder {
	return &definition.Encoder{
		Key: keys,
		ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
			return TableOf(meta.Definition).Encode(ctx, ep, key, value, meta)
		},
		ConvertGet: func(ctx context.Context, ep definition.Endpoint, _ string, _ *definition.EncodeMeta) error {
			return Query(ctx, ep)
		},
	}
}

// Query asks the MCU to report all datapoints.
func Query(ctx context.Context, ep definition.Endpoint) error {
	if err := ep.Command(ctx, Cluster, "dataQuery", []byte{}, &definition.CommandOptions{DisableDefaultResponse: true}); err != nil {
		return fmt.Errorf("tuya dataQuery: %w", err)
	}
	return nil
}
