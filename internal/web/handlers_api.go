package web

import (
	"errors"
	"net/http"
	"strings"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/exposes"
	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/stack"
	"zigbee-go-converters/internal/tuya"
)

// fingerprintView shows the identity fields of a fingerprint.
type fingerprintView struct {
	ModelID          string `json:"model_id,omitempty"`
	ManufacturerName string `json:"manufacturer_name,omitempty"`
	Priority         int    `json:"priority,omitempty"`
}

type whiteLabelView struct {
	Model       string `json:"model"`
	Vendor      string `json:"vendor"`
	Description string `json:"description,omitempty"`
}

// definitionView is the JSON form of a definition.
type definitionView struct {
	Model          string            `json:"model"`
	Vendor         string            `json:"vendor"`
	Description    string            `json:"description"`
	ZigbeeModel    []string          `json:"zigbee_model,omitempty"`
	Fingerprint    []fingerprintView `json:"fingerprint,omitempty"`
	WhiteLabel     []whiteLabelView  `json:"white_label,omitempty"`
	External       string            `json:"external,omitempty"`
	Generated      bool              `json:"generated,omitempty"`
	DynamicExposes bool              `json:"dynamic_exposes,omitempty"`
	Exposes        []*exposes.Expose `json:"exposes,omitempty"`
	Options        []*exposes.Expose `json:"options,omitempty"`
	Meta           definition.Meta   `json:"meta,omitempty"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func viewDefinition(def *definition.Definition, full bool) definitionView {
	v := definitionView{
		Model:       def.Model,
		Vendor:      def.Vendor,
		Description: def.Description,
		ZigbeeModel: def.ZigbeeModel,
		External:    def.External,
		Generated:   def.Generated,
	}
	for _, fp := range def.Fingerprint {
		v.Fingerprint = append(v.Fingerprint, fingerprintView{
			ModelID:          deref(fp.ModelID),
			ManufacturerName: deref(fp.ManufacturerName),
			Priority:         fp.Priority,
		})
	}
	for _, wl := range def.WhiteLabel {
		v.WhiteLabel = append(v.WhiteLabel, whiteLabelView{Model: wl.Model, Vendor: wl.Vendor, Description: wl.Description})
	}
	if full {
		v.DynamicExposes = def.ExposesFn != nil
		v.Exposes = def.Exposes
		v.Options = def.Options
		v.Meta = jsonMeta(def.Meta)
	}
	return v
}

// jsonMeta keeps the meta entries that encode as JSON.
func jsonMeta(m definition.Meta) definition.Meta {
	out := make(definition.Meta, len(m))
	for k, v := range m {
		switch v.(type) {
		case bool, string, int, float64, []string:
			out[k] = v
		}
	}
	return out
}

func (s *Server) handleAPIListDefinitions(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	vendor := r.URL.Query().Get("vendor")
	defs := s.reg.Definitions()
	out := make([]definitionView, 0, len(defs))
	for _, def := range defs {
		if vendor != "" && !strings.EqualFold(def.Vendor, vendor) {
			continue
		}
		if q != "" && !matchesQuery(def, q) {
			continue
		}
		out = append(out, viewDefinition(def, false))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func matchesQuery(def *definition.Definition, q string) bool {
	if strings.Contains(strings.ToLower(def.Model), q) || strings.Contains(strings.ToLower(def.Description), q) {
		return true
	}
	for _, zm := range def.ZigbeeModel {
		if strings.Contains(strings.ToLower(zm), q) {
			return true
		}
	}
	for _, fp := range def.Fingerprint {
		if strings.Contains(strings.ToLower(deref(fp.ManufacturerName)), q) {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIGetDefinition(w http.ResponseWriter, r *http.Request) {
	def := s.reg.FindByModel(r.PathValue("model"))
	if def == nil {
		s.writeError(w, http.StatusNotFound, "definition not found")
		return
	}
	s.writeJSON(w, http.StatusOK, viewDefinition(def, true))
}

// resolveRequest is an interview result to resolve without a device.
type resolveRequest struct {
	stack.DeviceInterviewEvent
	Generate bool `json:"generate"`
}

func (s *Server) handleAPIResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ModelID == "" && len(req.Endpoints) == 0 {
		s.writeError(w, http.StatusBadRequest, "model_id or endpoints required")
		return
	}
	dev := req.Identity()
	def, err := s.reg.FindByDeviceWithWhiteLabel(dev, req.Generate)
	if err != nil {
		s.logger.Warn("resolve", "model_id", req.ModelID, "err", err)
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if def == nil {
		s.writeError(w, http.StatusNotFound, "no definition matches")
		return
	}
	v := viewDefinition(def, true)
	v.Exposes = def.ExposesFor(dev, nil)
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.hub.Devices()
	if err != nil {
		s.logger.Error("list devices", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	info, err := s.hub.Device(r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	ieee, err := s.hub.Lookup(r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}

	var req renameDeviceRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.ContainsAny(req.FriendlyName, "/+#") {
		s.writeError(w, http.StatusBadRequest, "friendly_name must not contain '/', '+' or '#'")
		return
	}

	if err := s.hub.Rename(ieee, req.FriendlyName); err != nil {
		s.writeHubError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": req.FriendlyName})
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ieee, err := s.hub.Lookup(r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	if err := s.hub.HandleLeave(r.Context(), stack.DeviceLeftEvent{IEEE: ieee}); err != nil {
		s.writeHubError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPISetOptions(w http.ResponseWriter, r *http.Request) {
	ieee, err := s.hub.Lookup(r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	var opts map[string]any
	if !s.decodeBody(w, r, &opts) {
		return
	}
	if err := s.hub.SetOptions(r.Context(), ieee, opts); err != nil {
		s.writeHubError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPISet(w http.ResponseWriter, r *http.Request) {
	ieee, err := s.hub.Lookup(r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	var values map[string]any
	if !s.decodeBody(w, r, &values) {
		return
	}
	if len(values) == 0 {
		s.writeError(w, http.StatusBadRequest, "no values to set")
		return
	}
	state, err := s.hub.Set(r.Context(), ieee, values)
	if err != nil {
		s.writeJSON(w, hubErrorStatus(err), map[string]any{"error": err.Error(), "state": state})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": state})
}

type getRequest struct {
	Keys []string `json:"keys"`
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	ieee, err := s.hub.Lookup(r.PathValue("id"))
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	var req getRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Keys) == 0 {
		s.writeError(w, http.StatusBadRequest, "keys must not be empty")
		return
	}
	if err := s.hub.Get(r.Context(), ieee, req.Keys); err != nil {
		s.writeHubError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIReresolve(w http.ResponseWriter, r *http.Request) {
	n := s.hub.Reresolve(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]int{"changed": n})
}

// hubErrorStatus maps hub and converter errors to HTTP status codes.
func hubErrorStatus(err error) int {
	switch {
	case errors.Is(err, hub.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrNoConverter),
		errors.Is(err, tuya.ErrValue),
		errors.Is(err, tuya.ErrNoDatapoint):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeHubError(w http.ResponseWriter, err error) {
	status := hubErrorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
		s.writeError(w, status, "internal server error")
		return
	}
	s.writeError(w, status, err.Error())
}
