package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemStore is a Store kept in memory, used when no database path is
// configured. Records are copied through JSON so callers never share maps
// with the store.
type MemStore struct {
	mu      sync.RWMutex
	devices map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{devices: make(map[string][]byte)}
}

func (s *MemStore) SaveDevice(dev *Device) error {
	data, err := json.Marshal(dev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.devices[dev.IEEEAddress] = data
	s.mu.Unlock()
	return nil
}

func (s *MemStore) GetDevice(ieee string) (*Device, error) {
	s.mu.RLock()
	data, ok := s.devices[ieee]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *MemStore) UpdateDevice(ieee string, fn func(dev *Device) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.devices[ieee]
	if !ok {
		return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return err
	}
	if err := fn(&dev); err != nil {
		return err
	}
	dev.IEEEAddress = ieee
	out, err := json.Marshal(&dev)
	if err != nil {
		return err
	}
	s.devices[ieee] = out
	return nil
}

func (s *MemStore) DeleteDevice(ieee string) error {
	s.mu.Lock()
	delete(s.devices, ieee)
	s.mu.Unlock()
	return nil
}

// ListDevices returns devices ordered by IEEE address, like BoltStore.
func (s *MemStore) ListDevices() ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Device, 0, len(s.devices))
	for _, data := range s.devices {
		var dev Device
		if err := json.Unmarshal(data, &dev); err != nil {
			return nil, err
		}
		out = append(out, &dev)
	}
	slices.SortFunc(out, func(a, b *Device) int { return strings.Compare(a.IEEEAddress, b.IEEEAddress) })
	return out, nil
}

func (s *MemStore) Close() error { return nil }
