package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"zigbee-go-converters/internal/definition"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("bolt", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("mem", func(t *testing.T) { fn(t, NewMemStore()) })
}

func TestSaveAndGetDevice(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		dev := &Device{
			IEEEAddress:      "0x00158d00012a3b4c",
			NetworkAddress:   0x1234,
			ManufacturerName: "LUMI",
			ModelID:          "lumi.sensor_magnet.aq2",
			Interviewed:      true,
			Model:            "MCCGQ11LM",
			JoinedAt:         time.Now().Truncate(time.Millisecond),
			LastSeen:         time.Now().Truncate(time.Millisecond),
			Endpoints: []Endpoint{
				{ID: 1, ProfileID: 0x0104, DeviceID: 0x0015, InClusters: []uint16{0, 6}, OutClusters: []uint16{6}},
			},
			State: map[string]any{"contact": true},
		}
		if err := s.SaveDevice(dev); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetDevice(dev.IEEEAddress)
		if err != nil {
			t.Fatal(err)
		}
		if got.NetworkAddress != dev.NetworkAddress {
			t.Errorf("nwk = 0x%04X, want 0x%04X", got.NetworkAddress, dev.NetworkAddress)
		}
		if got.ModelID != dev.ModelID {
			t.Errorf("model_id = %q, want %q", got.ModelID, dev.ModelID)
		}
		if got.Model != "MCCGQ11LM" {
			t.Errorf("model = %q, want MCCGQ11LM", got.Model)
		}
		if !got.Interviewed {
			t.Error("interviewed = false, want true")
		}
		if !got.JoinedAt.Equal(dev.JoinedAt) {
			t.Errorf("joined_at = %v, want %v", got.JoinedAt, dev.JoinedAt)
		}
		if len(got.Endpoints) != 1 || got.Endpoints[0].ID != 1 {
			t.Fatalf("endpoints = %+v", got.Endpoints)
		}
		if got.State["contact"] != true {
			t.Errorf("state = %v", got.State)
		}
	})
}

func TestDeleteDevice(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		dev := &Device{IEEEAddress: "0x00158d00012a3b4c"}
		if err := s.SaveDevice(dev); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteDevice(dev.IEEEAddress); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetDevice(dev.IEEEAddress); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestListDevices(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		for _, ieee := range []string{"0x03", "0x01", "0x02"} {
			if err := s.SaveDevice(&Device{IEEEAddress: ieee}); err != nil {
				t.Fatal(err)
			}
		}
		list, err := s.ListDevices()
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 3 {
			t.Fatalf("list count = %d, want 3", len(list))
		}
		for i, want := range []string{"0x01", "0x02", "0x03"} {
			if list[i].IEEEAddress != want {
				t.Errorf("list[%d] = %s, want %s", i, list[i].IEEEAddress, want)
			}
		}
	})
}

func TestUpdateDevice(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		if err := s.SaveDevice(&Device{IEEEAddress: "0x01", State: map[string]any{"state": "OFF"}}); err != nil {
			t.Fatal(err)
		}
		err := s.UpdateDevice("0x01", func(dev *Device) error {
			dev.MergeState(map[string]any{"state": "ON", "brightness": 100})
			dev.Configured = "TS011F_plug_1"
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.GetDevice("0x01")
		if err != nil {
			t.Fatal(err)
		}
		if got.State["state"] != "ON" {
			t.Errorf("state = %v, want ON", got.State["state"])
		}
		if got.State["brightness"] != float64(100) {
			t.Errorf("brightness = %v (%T), want 100", got.State["brightness"], got.State["brightness"])
		}
		if got.Configured != "TS011F_plug_1" {
			t.Errorf("configured = %q", got.Configured)
		}

		boom := errors.New("boom")
		if err := s.UpdateDevice("0x01", func(dev *Device) error {
			dev.Configured = ""
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		got, _ = s.GetDevice("0x01")
		if got.Configured != "TS011F_plug_1" {
			t.Errorf("failed update was saved: configured = %q", got.Configured)
		}

		if err := s.UpdateDevice("0xff", func(*Device) error { return nil }); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestReopenBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDevice(&Device{IEEEAddress: "0x01", Model: "RTCGQ01LM"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.GetDevice("0x01")
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "RTCGQ01LM" {
		t.Errorf("model = %q, want RTCGQ01LM", got.Model)
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	dev := &definition.Device{
		IEEEAddr:         "0xa4c1380000000001",
		NetworkAddr:      0x4f21,
		Type:             definition.DeviceEndDevice,
		ModelID:          "TS0601",
		ManufacturerName: "_TZE200_gjldowol",
		PowerSource:      "Battery",
		Endpoints: []*definition.DeviceEndpoint{
			{ID: 1, ProfileID: 0x0104, DeviceID: 0x0051, InputClusters: []uint16{0, 4, 5, 0xef00}, OutputClusters: []uint16{0x19, 0x0a}},
		},
	}
	rec := NewDevice(dev)
	got := rec.Identity()
	if got.IEEEAddr != dev.IEEEAddr || got.ModelID != dev.ModelID || got.ManufacturerName != dev.ManufacturerName {
		t.Errorf("identity = %+v", got)
	}
	if got.Type != definition.DeviceEndDevice || got.PowerSource != "Battery" {
		t.Errorf("type/power = %q/%q", got.Type, got.PowerSource)
	}
	ep := got.FindEndpoint(1)
	if ep == nil || !ep.SupportsInput(0xef00) || !ep.SupportsOutput(0x0a) {
		t.Errorf("endpoint = %+v", ep)
	}
}
