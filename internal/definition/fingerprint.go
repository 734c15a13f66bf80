package definition

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Fingerprint is a partial-match predicate over device identity. Nil fields
// are wildcards.
type Fingerprint struct {
	Type               *string
	ManufacturerID     *uint16
	ManufacturerName   *string
	ModelID            *string
	PowerSource        *string
	DateCode           *string
	SoftwareBuildID    *string
	HardwareVersion    *int
	StackVersion       *int
	ZCLVersion         *int
	ApplicationVersion *int
	IEEEAddr           *regexp.Regexp
	Endpoints          []EndpointFingerprint
	Priority           int
}

// EndpointFingerprint constrains one endpoint. Nil cluster lists are
// wildcards; non-nil lists must equal the endpoint's clusters as sets.
type EndpointFingerprint struct {
	ID             uint8
	ProfileID      *uint16
	DeviceID       *uint16
	InputClusters  []uint16
	OutputClusters []uint16
}

// Ptr returns a pointer to v, for building fingerprints.
func Ptr[T any](v T) *T { return &v }

// ModelFingerprint matches a model ID and manufacturer name pair.
func ModelFingerprint(modelID, manufacturerName string) Fingerprint {
	return Fingerprint{ModelID: Ptr(modelID), ManufacturerName: Ptr(manufacturerName)}
}

// ModelFingerprints builds one fingerprint per manufacturer name.
func ModelFingerprints(modelID string, manufacturerNames ...string) []Fingerprint {
	out := make([]Fingerprint, 0, len(manufacturerNames))
	for _, m := range manufacturerNames {
		out = append(out, ModelFingerprint(modelID, m))
	}
	return out
}

// Matches reports whether every present constraint holds for d.
func (f *Fingerprint) Matches(d *Device) bool {
	if !eq(f.Type, d.Type) ||
		!eq(f.ManufacturerID, d.ManufacturerID) ||
		!eq(f.ManufacturerName, d.ManufacturerName) ||
		!eq(f.ModelID, d.ModelID) ||
		!eq(f.PowerSource, d.PowerSource) ||
		!eq(f.DateCode, d.DateCode) ||
		!eq(f.SoftwareBuildID, d.SoftwareBuildID) ||
		!eq(f.HardwareVersion, d.HardwareVersion) ||
		!eq(f.StackVersion, d.StackVersion) ||
		!eq(f.ZCLVersion, d.ZCLVersion) ||
		!eq(f.ApplicationVersion, d.ApplicationVersion) {
		return false
	}
	if f.IEEEAddr != nil && !f.IEEEAddr.MatchString(d.IEEEAddr) {
		return false
	}
	if f.Endpoints != nil {
		return f.matchEndpoints(d)
	}
	return true
}

func (f *Fingerprint) matchEndpoints(d *Device) bool {
	want := make([]uint8, 0, len(f.Endpoints))
	for _, e := range f.Endpoints {
		want = append(want, e.ID)
	}
	have := make([]uint8, 0, len(d.Endpoints))
	for _, e := range d.Endpoints {
		have = append(have, e.ID)
	}
	if !sameSet(want, have) {
		return false
	}
	for _, ef := range f.Endpoints {
		ep := d.FindEndpoint(ef.ID)
		if ep == nil {
			return false
		}
		if !eq(ef.ProfileID, ep.ProfileID) || !eq(ef.DeviceID, ep.DeviceID) {
			return false
		}
		if ef.InputClusters != nil && !sameSet(ef.InputClusters, ep.InputClusters) {
			return false
		}
		if ef.OutputClusters != nil && !sameSet(ef.OutputClusters, ep.OutputClusters) {
			return false
		}
	}
	return true
}

// key is a canonical form used to detect duplicate fingerprints.
func (f *Fingerprint) key() string {
	var b strings.Builder
	field := func(name string, p any) {
		fmt.Fprintf(&b, "%s=%s;", name, deref(p))
	}
	field("type", f.Type)
	field("manufacturerID", f.ManufacturerID)
	field("manufacturerName", f.ManufacturerName)
	field("modelID", f.ModelID)
	field("powerSource", f.PowerSource)
	field("dateCode", f.DateCode)
	field("softwareBuildID", f.SoftwareBuildID)
	field("hardwareVersion", f.HardwareVersion)
	field("stackVersion", f.StackVersion)
	field("zclVersion", f.ZCLVersion)
	field("applicationVersion", f.ApplicationVersion)
	if f.IEEEAddr != nil {
		fmt.Fprintf(&b, "ieee=%s;", f.IEEEAddr.String())
	}
	for _, e := range f.Endpoints {
		fmt.Fprintf(&b, "ep%d=%s/%s/%v/%v;", e.ID, deref(e.ProfileID), deref(e.DeviceID),
			sorted(e.InputClusters), sorted(e.OutputClusters))
	}
	fmt.Fprintf(&b, "priority=%d", f.Priority)
	return b.String()
}

func eq[T comparable](want *T, have T) bool {
	return want == nil || *want == have
}

func deref(p any) string {
	switch v := p.(type) {
	case *string:
		if v != nil {
			return fmt.Sprintf("%q", *v)
		}
	case *uint16:
		if v != nil {
			return fmt.Sprint(*v)
		}
	case *int:
		if v != nil {
			return fmt.Sprint(*v)
		}
	}
	return "*"
}

func sorted[T uint8 | uint16](s []T) []T {
	if s == nil {
		return nil
	}
	cp := slices.Clone(s)
	slices.Sort(cp)
	return slices.Compact(cp)
}

func sameSet[T uint8 | uint16](a, b []T) bool {
	return slices.Equal(sorted(a), sorted(b))
}
