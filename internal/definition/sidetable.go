package definition

import "sync"

// SideTable is per-device scratch storage shared by converters and hooks:
// sequence numbers, last-sent values and timers. Timers (anything with a
// Stop method) are stopped when their entry is deleted or the device is
// cleared.
type SideTable struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

// NewSideTable creates an empty table.
func NewSideTable() *SideTable {
	return &SideTable{data: make(map[string]map[string]any)}
}

// Get returns the value stored for a device key.
func (s *SideTable) Get(ieee, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[ieee][key]
	return v, ok
}

// Put stores a value, stopping a timer it replaces.
func (s *SideTable) Put(ieee, key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data[ieee]
	if m == nil {
		m = make(map[string]any)
		s.data[ieee] = m
	}
	if old, ok := m[key]; ok {
		stop(old)
	}
	m[key] = v
}

// Update atomically replaces a value with fn(old) and returns the result.
func (s *SideTable) Update(ieee, key string, fn func(old any, ok bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data[ieee]
	if m == nil {
		m = make(map[string]any)
		s.data[ieee] = m
	}
	old, ok := m[key]
	v := fn(old, ok)
	m[key] = v
	return v
}

// Has reports whether a key is set for the device.
func (s *SideTable) Has(ieee, key string) bool {
	_, ok := s.Get(ieee, key)
	return ok
}

// Delete removes a key, stopping it if it is a timer.
func (s *SideTable) Delete(ieee, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[ieee][key]; ok {
		stop(v)
		delete(s.data[ieee], key)
	}
}

// Clear drops everything stored for a device.
func (s *SideTable) Clear(ieee string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.data[ieee] {
		stop(v)
	}
	delete(s.data, ieee)
}

func stop(v any) {
	switch t := v.(type) {
	case interface{ Stop() bool }:
		t.Stop()
	case interface{ Stop() }:
		t.Stop()
	}
}
