package tuya

import (
	"context"
	"encoding"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-converters/internal/definition"
)

type sentCommand struct {
	Cluster string
	Command string
	Payload []byte
}

// fakeEndpoint records commands sent through it.
type fakeEndpoint struct {
	mu   sync.Mutex
	sent []sentCommand
}

func (f *fakeEndpoint) ID() uint8 { return 1 }

func (f *fakeEndpoint) Read(context.Context, string, []string, *definition.CommandOptions) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeEndpoint) Write(context.Context, string, map[string]any, *definition.CommandOptions) error {
	return nil
}

func (f *fakeEndpoint) Command(_ context.Context, cluster, command string, payload any, _ *definition.CommandOptions) error {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case encoding.BinaryMarshaler:
		var err error
		if b, err = p.MarshalBinary(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentCommand{cluster, command, b})
	f.mu.Unlock()
	return nil
}

func (f *fakeEndpoint) Bind(context.Context, string, uint8) error { return nil }

func (f *fakeEndpoint) ConfigureReporting(context.Context, string, []definition.ReportingItem, *definition.CommandOptions) error {
	return nil
}

func (f *fakeEndpoint) commands() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCommand(nil), f.sent...)
}

type fakeProvider struct{ ep *fakeEndpoint }

func (p fakeProvider) Endpoint(*definition.Device, uint8) definition.Endpoint { return p.ep }

func pirTable() Table {
	return Table{
		{DP: 4, Name: "battery", Converter: Raw},
		{DP: 9, Name: "sensitivity", Converter: Lookup(map[string]any{"low": 0, "medium": 1, "high": 2})},
	}
}

func encodeMeta(table Table) *definition.EncodeMeta {
	dev := &definition.Device{IEEEAddr: "0xa4c1380000000001"}
	return &definition.EncodeMeta{
		Device:     dev,
		Definition: &definition.Definition{Model: "ZG-204ZL", Meta: definition.Meta{MetaDatapoints: table}},
		State:      map[string]any{},
		Store:      definition.NewSideTable(),
	}
}

func TestDecodeScenario(t *testing.T) {
	cmd := &Command{Seq: 7, DPValues: []DPValue{
		{DP: 4, Type: TypeNumber, Data: []byte{0, 0, 0, 92}},
		{DP: 9, Type: TypeEnum, Data: []byte{1}},
		{DP: 101, Type: TypeBool, Data: []byte{1}},
	}}
	got, err := pirTable().Decode(cmd, &definition.DecodeMeta{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"battery": int64(92), "sensitivity": "medium"}, got)
}

func TestEncodeScenario(t *testing.T) {
	ep := &fakeEndpoint{}
	meta := encodeMeta(pirTable())
	res, err := pirTable().Encode(context.Background(), ep, "sensitivity", "high", meta)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sensitivity": "high"}, res.State)

	sent := ep.commands()
	require.Len(t, sent, 1)
	assert.Equal(t, Cluster, sent[0].Cluster)
	assert.Equal(t, "dataRequest", sent[0].Command)
	cmd, err := ParseCommand(sent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), cmd.Seq)
	assert.Equal(t, []DPValue{{DP: 9, Type: TypeEnum, Data: []byte{2}}}, cmd.DPValues)
}

func TestEncodeNoDatapoint(t *testing.T) {
	_, err := pirTable().Encode(context.Background(), &fakeEndpoint{}, "battery_low", true, encodeMeta(pirTable()))
	require.ErrorIs(t, err, ErrNoDatapoint)
	assert.EqualError(t, err, "no datapoint defined for 'battery_low'")
}

func TestEncodeSkipAndNonOptimistic(t *testing.T) {
	table := Table{
		{DP: 1, Name: "state", Converter: OnOff, Skip: func(meta *definition.EncodeMeta) bool {
			return meta.State["state"] == "ON"
		}},
		{DP: 2, Name: "mode", Converter: Lookup(map[string]any{"auto": 0, "manual": 1}), NonOptimistic: true},
	}
	ep := &fakeEndpoint{}
	meta := encodeMeta(table)
	meta.State["state"] = "ON"

	res, err := table.Encode(context.Background(), ep, "state", "ON", meta)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, ep.commands())

	res, err = table.Encode(context.Background(), ep, "mode", "manual", meta)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, ep.commands(), 1)
}

func TestEncodeEndpointSuffix(t *testing.T) {
	table := Table{
		{DP: 1, Name: "state_l1", Converter: OnOff},
		{DP: 2, Name: "state_l2", Converter: OnOff},
	}
	ep := &fakeEndpoint{}
	meta := encodeMeta(table)
	meta.EndpointName = "l2"
	_, err := table.Encode(context.Background(), ep, "state", "ON", meta)
	require.NoError(t, err)
	cmd, err := ParseCommand(ep.commands()[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), cmd.DPValues[0].DP)
	assert.Equal(t, TypeBool, cmd.DPValues[0].Type)
}

func TestSendCommandAndSequence(t *testing.T) {
	ep := &fakeEndpoint{}
	meta := encodeMeta(pirTable())
	meta.Definition.Meta[MetaSendCommand] = "sendData"
	for i := 0; i < 3; i++ {
		_, err := pirTable().Encode(context.Background(), ep, "sensitivity", "low", meta)
		require.NoError(t, err)
	}
	for i, c := range ep.commands() {
		assert.Equal(t, "sendData", c.Command)
		cmd, err := ParseCommand(c.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), cmd.Seq)
	}
}

func TestSequenceWraps(t *testing.T) {
	store := definition.NewSideTable()
	dev := &definition.Device{IEEEAddr: "0x01"}
	store.Put(dev.IEEEAddr, metaSequenceKey, uint16(0xFFFE))
	assert.Equal(t, uint16(0xFFFE), NextSequence(store, dev))
	assert.Equal(t, uint16(0), NextSequence(store, dev))
	assert.Equal(t, uint16(1), NextSequence(store, dev))
}

func TestDecodeLookupFailureFailsMessage(t *testing.T) {
	cmd := &Command{DPValues: []DPValue{{DP: 9, Type: TypeEnum, Data: []byte{7}}}}
	_, err := pirTable().Decode(cmd, nil)
	assert.ErrorIs(t, err, ErrValue)

	withFallback := Table{{DP: 9, Name: "sensitivity", Converter: Lookup(map[string]any{"low": 0}, "unknown")}}
	got, err := withFallback.Decode(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", got["sensitivity"])
}

func TestDecodeSpreadsObject(t *testing.T) {
	table := Table{{DP: 6, Converter: PhaseVariant2}}
	cmd := &Command{DPValues: []DPValue{{DP: 6, Type: TypeRaw, Data: []byte{0x08, 0xFC, 0x00, 0x01, 0xF4, 0x00, 0x00, 0x64}}}}
	got, err := table.Decode(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"voltage": 230.0, "current": 0.5, "power": 100.0}, got)
}

func TestTableDecoderParsesPayload(t *testing.T) {
	def := &definition.Definition{Meta: definition.Meta{MetaDatapoints: pirTable()}}
	msg := &definition.Message{
		Type:    "commandDataReport",
		Cluster: Cluster,
		Data:    []byte{0x00, 0x05, 0x04, 0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0x32},
	}
	dec := TableDecoder()
	require.True(t, dec.Accepts(msg))
	got, err := dec.Convert(def, msg, &definition.DecodeMeta{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"battery": int64(50)}, got)
}

func TestBaseDecodersFollowTable(t *testing.T) {
	assert.Empty(t, Base(BaseOptions{}).Decoders)
	assert.Empty(t, Base(BaseOptions{}).Encoders)

	ext := Base(BaseOptions{Datapoints: pirTable()})
	require.Len(t, ext.Decoders, 1)
	assert.Equal(t, Cluster, ext.Decoders[0].Cluster)
	assert.Len(t, ext.Encoders, 1)
}

func TestOnEventTimeSync(t *testing.T) {
	ep := &fakeEndpoint{}
	dev := &definition.Device{IEEEAddr: "0x01", Endpoints: []*definition.DeviceEndpoint{{ID: 1}}}
	dev.SetEndpointProvider(fakeProvider{ep})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hook := OnEvent(EventOptions{Now: func() time.Time { return now }})

	err := hook(context.Background(), &definition.Event{
		Type:    definition.EventMessage,
		Device:  dev,
		Message: &definition.Message{Type: "commandMcuSyncTime", Cluster: Cluster, Endpoint: 1},
	})
	require.NoError(t, err)
	sent := ep.commands()
	require.Len(t, sent, 1)
	assert.Equal(t, "mcuSyncTime", sent[0].Command)
	assert.Equal(t, SyncTimePayload(now, false), sent[0].Payload)
	assert.Equal(t, []byte{0x08, 0x00, 0x65, 0x92, 0x00, 0x80, 0x65, 0x92, 0x00, 0x80}, sent[0].Payload)
}

func TestOnEventTimersStopped(t *testing.T) {
	store := definition.NewSideTable()
	dev := &definition.Device{IEEEAddr: "0x02"}
	hook := OnEvent(EventOptions{QueryInterval: time.Hour, TimeSyncInterval: time.Hour})

	require.NoError(t, hook(context.Background(), &definition.Event{Type: definition.EventStart, Device: dev, Store: store}))
	assert.True(t, store.Has("0x02", keyQueryTimer))
	assert.True(t, store.Has("0x02", keyTimeTimer))

	require.NoError(t, hook(context.Background(), &definition.Event{Type: definition.EventStop, Device: dev, Store: store}))
	assert.False(t, store.Has("0x02", keyQueryTimer))
	assert.False(t, store.Has("0x02", keyTimeTimer))
}

func TestFormatVersion(t *testing.T) {
	if got := FormatVersion(0x42); got != "1.0.2" {
		t.Errorf("FormatVersion(0x42) = %q, want %q", got, "1.0.2")
	}
}
