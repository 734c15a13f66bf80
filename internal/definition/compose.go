package definition

import (
	"context"
	"fmt"
	"slices"

	"zigbee-go-converters/internal/exposes"
)

// Compose flattens a declaration and its fragments into a definition and
// applies the post-composition pipeline (generic encoder tail, linkquality,
// derived options).
func (r *Registry) Compose(decl *Declaration) (*Definition, error) {
	if err := validateDeclaration(decl); err != nil {
		return nil, err
	}

	def := &Definition{
		Model:       decl.Model,
		Vendor:      decl.Vendor,
		Description: decl.Description,
		ZigbeeModel: slices.Clone(decl.ZigbeeModel),
		Fingerprint: slices.Clone(decl.Fingerprint),
		WhiteLabel:  slices.Clone(decl.WhiteLabel),
		Decoders:    slices.Clone(decl.Decoders),
		Encoders:    slices.Clone(decl.Encoders),
	}

	meta := Meta{}
	for k, v := range decl.Meta {
		meta[k] = v
	}

	var (
		configures []ConfigureFunc
		onEvents   []OnEventFunc
		endpoint   = decl.Endpoint
		sources    = []exposeSource{{list: decl.Exposes, fn: decl.ExposesFn}}
		options    = slices.Clone(decl.Options)
	)

	for i, ext := range decl.Extend {
		if !ext.IsModernExtend {
			return nil, fmt.Errorf("%w: %q: extend[%d] is not a modern extend", ErrComposition, decl.Model, i)
		}
		def.Decoders = append(def.Decoders, ext.Decoders...)
		def.Encoders = append(def.Encoders, ext.Encoders...)
		sources = append(sources, exposeSource{list: ext.Exposes, fn: ext.ExposesFn})
		options = append(options, ext.Options...)
		for k, v := range ext.Meta {
			if _, ok := meta[k]; !ok {
				meta[k] = v
			}
		}
		configures = append(configures, ext.Configure...)
		if ext.OnEvent != nil {
			onEvents = append(onEvents, ext.OnEvent)
		}
		if ext.Endpoint != nil {
			if endpoint != nil {
				return nil, fmt.Errorf("%w: %q: endpoint is defined more than once", ErrComposition, decl.Model)
			}
			endpoint = ext.Endpoint
		}
	}
	configures = append(configures, decl.Configure)
	if decl.OnEvent != nil {
		onEvents = append(onEvents, decl.OnEvent)
	}

	def.Configure = chainConfigure(configures)
	def.OnEvent = chainOnEvent(onEvents)
	def.Endpoint = endpoint
	if len(meta) > 0 {
		def.Meta = meta
	}

	def.Exposes, def.ExposesFn = mergeExposes(sources)

	// Post-composition pipeline.
	def.Encoders = append(def.Encoders, r.tail...)
	addLinkquality(def)
	def.Options = collectOptions(def, options, r.calibratable)
	return def, nil
}

func validateDeclaration(decl *Declaration) error {
	if decl == nil {
		return fmt.Errorf("%w: nil declaration", ErrInvalidDeclaration)
	}
	if decl.Model == "" {
		return invalidField(decl.Model, "model", "a non-empty string")
	}
	if decl.Vendor == "" {
		return invalidField(decl.Model, "vendor", "a non-empty string")
	}
	if decl.Description == "" {
		return invalidField(decl.Model, "description", "a non-empty string")
	}
	if decl.Exposes != nil && decl.ExposesFn != nil {
		return invalidField(decl.Model, "exposes", "either a list or a function")
	}
	for i, d := range decl.Decoders {
		if d == nil || d.Convert == nil {
			return invalidField(decl.Model, fmt.Sprintf("decoders[%d]", i), "a decoder with a convert function")
		}
	}
	for i, e := range decl.Encoders {
		if e == nil || len(e.Key) == 0 {
			return invalidField(decl.Model, fmt.Sprintf("encoders[%d]", i), "an encoder with keys")
		}
	}
	return nil
}

func chainConfigure(fns []ConfigureFunc) ConfigureFunc {
	fns = slices.DeleteFunc(fns, func(f ConfigureFunc) bool { return f == nil })
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, dev *Device, coordinatorEndpoint uint8, def *Definition) error {
		for _, fn := range fns {
			if err := fn(ctx, dev, coordinatorEndpoint, def); err != nil {
				return err
			}
		}
		return nil
	}
}

func chainOnEvent(fns []OnEventFunc) OnEventFunc {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, evt *Event) error {
		for _, fn := range fns {
			if err := fn(ctx, evt); err != nil {
				return err
			}
		}
		return nil
	}
}

type exposeSource struct {
	list []*exposes.Expose
	fn   ExposesFunc
}

// mergeExposes concatenates all sources. When any source is a function the
// result is a function evaluating every source on each call.
func mergeExposes(sources []exposeSource) ([]*exposes.Expose, ExposesFunc) {
	dynamic := false
	for _, s := range sources {
		if s.fn != nil {
			dynamic = true
			break
		}
	}
	if !dynamic {
		var all []*exposes.Expose
		for _, s := range sources {
			all = append(all, s.list...)
		}
		return mergeActions(all), nil
	}
	return nil, func(dev *Device, opts Options) []*exposes.Expose {
		var all []*exposes.Expose
		for _, s := range sources {
			if s.fn != nil {
				all = append(all, s.fn(dev, opts)...)
			} else {
				all = append(all, s.list...)
			}
		}
		return mergeActions(all)
	}
}

// mergeActions replaces every "action" enum with a single enum carrying the
// de-duplicated union of their values, appended at the end.
func mergeActions(list []*exposes.Expose) []*exposes.Expose {
	var (
		values []string
		found  bool
		out    = make([]*exposes.Expose, 0, len(list))
	)
	for _, e := range list {
		if e.Type == exposes.TypeEnum && e.Name == "action" {
			found = true
			for _, v := range e.Values {
				if !slices.Contains(values, v) {
					values = append(values, v)
				}
			}
			continue
		}
		out = append(out, e)
	}
	if found {
		out = append(out, exposes.Action(values))
	}
	return out
}

func hasLinkquality(list []*exposes.Expose) bool {
	return slices.ContainsFunc(list, func(e *exposes.Expose) bool { return e.Name == "linkquality" })
}

func addLinkquality(def *Definition) {
	if def.ExposesFn != nil {
		fn := def.ExposesFn
		def.ExposesFn = func(dev *Device, opts Options) []*exposes.Expose {
			list := fn(dev, opts)
			if !hasLinkquality(list) {
				list = append(list, exposes.Linkquality())
			}
			return list
		}
		return
	}
	if !hasLinkquality(def.Exposes) {
		def.Exposes = append(def.Exposes, exposes.Linkquality())
	}
}

// collectOptions merges declared options, calibration options and options
// of individual converters without duplicate names.
func collectOptions(def *Definition, declared []*exposes.Expose, calibratable map[string]int) []*exposes.Expose {
	var out []*exposes.Expose
	seen := map[string]bool{}
	add := func(list []*exposes.Expose) {
		for _, o := range list {
			key := o.Property
			if key == "" {
				key = o.Name
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, o)
		}
	}
	add(declared)
	add(calibrationOptions(def.ExposesFor(nil, nil), calibratable))
	for _, d := range def.Decoders {
		add(d.Options)
	}
	for _, e := range def.Encoders {
		add(e.Options)
	}
	return out
}
