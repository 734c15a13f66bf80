package definition

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// nullKey indexes definitions that carry no model identifier.
const nullKey = "null"

// Generator synthesizes a declaration for a device no definition matches.
type Generator interface {
	Generate(dev *Device) (*Declaration, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(dev *Device) (*Declaration, error)

// Generate calls f.
func (f GeneratorFunc) Generate(dev *Device) (*Declaration, error) { return f(dev) }

// Option configures a Registry.
type Option func(*Registry)

// WithTail sets the encoders appended to every composed definition.
func WithTail(encoders ...*Encoder) Option {
	return func(r *Registry) { r.tail = encoders }
}

// WithCalibratable replaces the calibratable property set.
func WithCalibratable(c map[string]int) Option {
	return func(r *Registry) { r.calibratable = c }
}

// WithGenerator sets the generator used for unknown devices.
func WithGenerator(g Generator) Option {
	return func(r *Registry) { r.generator = g }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry holds composed definitions and the resolution index.
type Registry struct {
	mu           sync.RWMutex
	defs         []*Definition
	index        map[string][]*Definition
	tail         []*Encoder
	calibratable map[string]int
	generator    Generator
	logger       *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		index:        make(map[string][]*Definition),
		calibratable: DefaultCalibratable,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With("component", "definitions")
	return r
}

// Add composes a built-in declaration and registers it. Built-ins must not
// clash with any registered model, zigbeeModel or fingerprint.
func (r *Registry) Add(decl *Declaration) (*Definition, error) {
	def, err := r.Compose(decl)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(def); err != nil {
		return nil, err
	}
	r.insert(def)
	return def, nil
}

// AddExternal composes a declaration owned by an external source and
// registers it in front of any existing candidates for its keys.
func (r *Registry) AddExternal(source string, decl *Declaration) (*Definition, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: external source name is empty", ErrInvalidDeclaration)
	}
	def, err := r.Compose(decl)
	if err != nil {
		return nil, err
	}
	def.External = source
	r.mu.Lock()
	r.insert(def)
	r.mu.Unlock()
	r.logger.Info("external definition registered", "source", source, "model", def.Model)
	return def, nil
}

// InstallExternal replaces every definition of source with decls. Nothing
// is changed when any declaration fails to compose.
func (r *Registry) InstallExternal(source string, decls []*Declaration) ([]*Definition, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: external source name is empty", ErrInvalidDeclaration)
	}
	defs := make([]*Definition, 0, len(decls))
	for _, decl := range decls {
		def, err := r.Compose(decl)
		if err != nil {
			return nil, fmt.Errorf("external %s: %w", source, err)
		}
		def.External = source
		defs = append(defs, def)
	}
	r.mu.Lock()
	removed := r.removeLocked(source)
	for _, def := range defs {
		r.insert(def)
	}
	r.mu.Unlock()
	r.logger.Info("external converter installed", "source", source, "definitions", len(defs), "replaced", removed)
	return defs, nil
}

// RemoveExternal unregisters definitions installed from source, or from
// every external source when source is empty. Built-ins are never removed.
// It returns the number of removed definitions.
func (r *Registry) RemoveExternal(source string) int {
	r.mu.Lock()
	n := r.removeLocked(source)
	r.mu.Unlock()
	if n > 0 {
		r.logger.Info("external definitions removed", "source", source, "count", n)
	}
	return n
}

func (r *Registry) removeLocked(source string) int {
	gone := func(d *Definition) bool {
		return d.External != "" && (source == "" || d.External == source)
	}
	before := len(r.defs)
	r.defs = slices.DeleteFunc(r.defs, gone)
	for key, list := range r.index {
		list = slices.DeleteFunc(list, gone)
		if len(list) == 0 {
			delete(r.index, key)
		} else {
			r.index[key] = list
		}
	}
	return before - len(r.defs)
}

func (r *Registry) checkUnique(def *Definition) error {
	seen := make(map[string]bool, len(def.Fingerprint))
	for i := range def.Fingerprint {
		k := def.Fingerprint[i].key()
		if seen[k] {
			return fmt.Errorf("%w: fingerprint %d of %q is listed twice", ErrDuplicate, i, def.Model)
		}
		seen[k] = true
	}
	for _, other := range r.defs {
		if strings.EqualFold(other.Model, def.Model) {
			return fmt.Errorf("%w: model %q", ErrDuplicate, def.Model)
		}
		for _, zm := range def.ZigbeeModel {
			if slices.Contains(other.ZigbeeModel, zm) {
				return fmt.Errorf("%w: zigbeeModel %q of %q already used by %q", ErrDuplicate, zm, def.Model, other.Model)
			}
		}
		for i := range def.Fingerprint {
			k := def.Fingerprint[i].key()
			for j := range other.Fingerprint {
				if other.Fingerprint[j].key() == k {
					return fmt.Errorf("%w: fingerprint of %q already used by %q", ErrDuplicate, def.Model, other.Model)
				}
			}
		}
	}
	return nil
}

// insert adds def to the definition list and to the front of each of its
// index keys. Caller holds mu.
func (r *Registry) insert(def *Definition) {
	r.defs = append(r.defs, def)
	keys := indexKeys(def)
	if len(keys) == 0 {
		keys = []string{nullKey}
	}
	for _, k := range keys {
		list := r.index[k]
		if slices.Contains(list, def) {
			continue
		}
		r.index[k] = append([]*Definition{def}, list...)
	}
}

func indexKeys(def *Definition) []string {
	var keys []string
	add := func(s string) {
		k := strings.ToLower(s)
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	for _, zm := range def.ZigbeeModel {
		add(zm)
	}
	for _, fp := range def.Fingerprint {
		if fp.ModelID != nil {
			add(*fp.ModelID)
		}
	}
	return keys
}

// FindByDevice resolves the definition for dev. A nil definition with a nil
// error means the device is unknown. When generate is set and no definition
// matches, a definition is synthesized (not cached) unless dev is the
// coordinator.
func (r *Registry) FindByDevice(dev *Device, generate bool) (*Definition, error) {
	if def := r.resolve(dev); def != nil {
		return def, nil
	}
	if !generate || r.generator == nil || dev.IsCoordinator() {
		return nil, nil
	}
	decl, err := r.generator.Generate(dev)
	if err != nil {
		return nil, fmt.Errorf("generate definition for %s: %w", dev.IEEEAddr, err)
	}
	if decl == nil {
		return nil, nil
	}
	def, err := r.Compose(decl)
	if err != nil {
		return nil, fmt.Errorf("generate definition for %s: %w", dev.IEEEAddr, err)
	}
	def.Generated = true
	r.logger.Debug("definition generated", "ieee", dev.IEEEAddr, "model", def.Model)
	return def, nil
}

// FindByDeviceWithWhiteLabel resolves like FindByDevice and then applies
// the first white-label entry whose fingerprint matches dev.
func (r *Registry) FindByDeviceWithWhiteLabel(dev *Device, generate bool) (*Definition, error) {
	def, err := r.FindByDevice(dev, generate)
	if def == nil || err != nil {
		return def, err
	}
	for _, wl := range def.WhiteLabel {
		for i := range wl.Fingerprint {
			if wl.Fingerprint[i].Matches(dev) {
				return def.withIdentity(wl), nil
			}
		}
	}
	return def, nil
}

func (r *Registry) resolve(dev *Device) *Definition {
	if dev.ModelID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	model := dev.ModelID
	candidates := r.index[strings.ToLower(model)]
	if len(candidates) == 0 {
		if i := strings.IndexByte(model, 0); i >= 0 {
			model = model[:i]
		}
		model = strings.TrimSpace(model)
		candidates = r.index[strings.ToLower(model)]
	}
	if len(candidates) == 0 {
		return nil
	}

	if len(candidates) == 1 && len(candidates[0].ZigbeeModel) > 0 {
		return candidates[0]
	}

	var (
		best     *Definition
		priority int
	)
	for _, c := range candidates {
		for i := range c.Fingerprint {
			fp := &c.Fingerprint[i]
			if !fp.Matches(dev) {
				continue
			}
			if best == nil || fp.Priority > priority {
				best, priority = c, fp.Priority
			}
		}
	}
	if best != nil {
		return best
	}

	for _, c := range candidates {
		if slices.Contains(c.ZigbeeModel, dev.ModelID) {
			return c
		}
	}
	return nil
}

// FindByModel returns the definition whose model or white-label model
// equals model, ignoring case. Newer registrations win.
func (r *Registry) FindByModel(model string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.defs) - 1; i >= 0; i-- {
		d := r.defs[i]
		if strings.EqualFold(d.Model, model) {
			return d
		}
		for _, wl := range d.WhiteLabel {
			if strings.EqualFold(wl.Model, model) {
				return d.withIdentity(wl)
			}
		}
	}
	return nil
}

// Definitions returns all registered definitions in registration order.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.defs)
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Calibratable returns the properties that get calibration options, with
// their default precision.
func (r *Registry) Calibratable() map[string]int { return r.calibratable }

// Candidates returns the index entry for a model identifier, newest first.
func (r *Registry) Candidates(model string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.index[strings.ToLower(model)])
}
