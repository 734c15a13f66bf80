package tuya

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zigbee-go-converters/internal/definition"
)

// Side table keys for per-device timers.
const (
	keyQueryTimer = "tuyaQueryTimer"
	keyTimeTimer  = "tuyaTimeTimer"
)

// epoch2000 is 2000-01-01T00:00:00Z in Unix seconds.
const epoch2000 = 946684800

// EventOptions tunes the lifecycle hook of Tuya MCU devices.
type EventOptions struct {
	// Epoch2000 sends sync-time values relative to 2000-01-01 instead of
	// the Unix epoch.
	Epoch2000 bool
	// QueryInterval sends dataQuery periodically when non-zero.
	QueryInterval time.Duration
	// TimeSyncInterval pushes the time periodically when non-zero, for
	// devices that stop asking after their first sync.
	TimeSyncInterval time.Duration
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// OnEvent returns the lifecycle hook answering MCU requests (time sync,
// version, gateway status) and driving the periodic timers. Timers live in
// the side table and are stopped on EventStop.
func OnEvent(opts EventOptions) definition.OnEventFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, evt *definition.Event) error {
		if evt.Device == nil {
			return nil
		}
		ieee := evt.Device.IEEEAddr
		if evt.Type == definition.EventStop {
			if evt.Store != nil {
				evt.Store.Delete(ieee, keyQueryTimer)
				evt.Store.Delete(ieee, keyTimeTimer)
			}
			return nil
		}

		if evt.Store != nil {
			// Timers outlive the event that armed them.
			bg := context.WithoutCancel(ctx)
			dev := evt.Device
			if opts.QueryInterval > 0 && !evt.Store.Has(ieee, keyQueryTimer) {
				evt.Store.Put(ieee, keyQueryTimer, every(opts.QueryInterval, func() {
					if ep := dev.FirstEndpoint(); ep != nil {
						if err := Query(bg, ep); err != nil {
							logOf(evt).Debug("periodic query failed", "ieee", ieee, "err", err)
						}
					}
				}))
			}
			if opts.TimeSyncInterval > 0 && !evt.Store.Has(ieee, keyTimeTimer) {
				evt.Store.Put(ieee, keyTimeTimer, every(opts.TimeSyncInterval, func() {
					if ep := dev.FirstEndpoint(); ep != nil {
						if err := SendTime(bg, ep, now(), opts.Epoch2000); err != nil {
							logOf(evt).Debug("time sync failed", "ieee", ieee, "err", err)
						}
					}
				}))
			}
		}

		if evt.Type != definition.EventMessage || evt.Message == nil || evt.Message.Cluster != Cluster {
			return nil
		}
		msg := evt.Message
		ep := evt.Device.GetEndpoint(msg.Endpoint)
		if ep == nil {
			ep = evt.Device.FirstEndpoint()
		}
		if ep == nil {
			return nil
		}
		switch msg.Type {
		case "commandMcuSyncTime":
			return SendTime(ctx, ep, now(), opts.Epoch2000)
		case "commandMcuGatewayConnectionStatus":
			payload, _ := msg.Data.([]byte)
			reply := []byte{0, 0, 0x01}
			if len(payload) >= 2 {
				copy(reply, payload[:2])
			}
			return ep.Command(ctx, Cluster, "mcuGatewayConnectionStatus", reply, &definition.CommandOptions{DisableDefaultResponse: true})
		case "commandMcuVersionResponse":
			if payload, _ := msg.Data.([]byte); len(payload) >= 3 {
				logOf(evt).Debug("mcu version", "ieee", ieee, "version", FormatVersion(payload[2]))
			}
		}
		return nil
	}
}

// SendTime answers or pushes an MCU time sync: payload size, then UTC and
// local seconds as 4 byte big-endian values.
func SendTime(ctx context.Context, ep definition.Endpoint, t time.Time, relative2000 bool) error {
	if err := ep.Command(ctx, Cluster, "mcuSyncTime", SyncTimePayload(t, relative2000), &definition.CommandOptions{DisableDefaultResponse: true}); err != nil {
		return fmt.Errorf("tuya mcuSyncTime: %w", err)
	}
	return nil
}

// SyncTimePayload builds the mcuSyncTime payload for t.
func SyncTimePayload(t time.Time, relative2000 bool) []byte {
	utc := t.Unix()
	if relative2000 {
		utc -= epoch2000
	}
	_, offset := t.Zone()
	local := utc + int64(offset)
	out := []byte{0x08, 0x00}
	out = binary.BigEndian.AppendUint32(out, uint32(utc))
	return binary.BigEndian.AppendUint32(out, uint32(local))
}

// FormatVersion renders a packed MCU version byte as major.minor.patch.
func FormatVersion(v byte) string {
	return fmt.Sprintf("%d.%d.%d", v>>6&0x03, v>>4&0x03, v&0x0F)
}

func logOf(evt *definition.Event) *slog.Logger {
	if evt.Logger != nil {
		return evt.Logger
	}
	return slog.Default()
}

// interval runs fn every d until stopped.
type interval struct {
	stop chan struct{}
	once sync.Once
}

func every(d time.Duration, fn func()) *interval {
	iv := &interval{stop: make(chan struct{})}
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				fn()
			case <-iv.stop:
				return
			}
		}
	}()
	return iv
}

// Stop ends the interval. It is safe to call more than once.
func (iv *interval) Stop() {
	iv.once.Do(func() { close(iv.stop) })
}
