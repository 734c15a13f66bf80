package zcl

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Registry holds all known ZCL cluster definitions, indexed by ID and name.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]*ClusterDef
	names    map[string]uint16
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]*ClusterDef),
		names:    make(map[string]uint16),
		logger:   logger,
	}
}

// Register adds a cluster definition to the registry. Registering an ID
// that already exists merges attributes and commands into it.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clusters[c.ID]; ok {
		existing.Merge(&c)
		r.logger.Debug("cluster merged", "id", fmt.Sprintf("0x%04X", c.ID), "name", existing.Name)
		return
	}
	r.clusters[c.ID] = c.DeepCopy()
	if c.Name != "" {
		r.names[strings.ToLower(c.Name)] = c.ID
	}
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// ByName returns a cluster definition by name (case-insensitive), or nil.
func (r *Registry) ByName(name string) *ClusterDef {
	r.mu.RLock()
	id, ok := r.names[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.Get(id)
}

// Resolve accepts a cluster name ("genOnOff") or a numeric ID ("6",
// "0x0006") and returns the cluster definition. Unknown numeric IDs return
// an empty definition carrying only the ID.
func (r *Registry) Resolve(key string) (*ClusterDef, error) {
	if c := r.ByName(key); c != nil {
		return c, nil
	}
	id, err := strconv.ParseUint(key, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("zcl: unknown cluster %q", key)
	}
	if c := r.Get(uint16(id)); c != nil {
		return c, nil
	}
	return &ClusterDef{ID: uint16(id), Name: key}, nil
}

// Name returns the registered name for a cluster ID, or its hex form.
func (r *Registry) Name(id uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clusters[id]; ok && c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("0x%04X", id)
}

// All returns all registered cluster definitions.
// Each entry is a deep copy; callers may modify them safely.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	return result
}
