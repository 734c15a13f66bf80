package web

import (
	"net/http"
	"slices"

	"zigbee-go-converters/internal/external"
)

// converterView is a converter script with its install state.
type converterView struct {
	*external.Script
	Installed bool `json:"installed"`
}

func (s *Server) converterView(script *external.Script) converterView {
	v := converterView{Script: script}
	if s.engine != nil {
		v.Installed = slices.Contains(s.engine.Installed(), script.ID)
	}
	return v
}

func (s *Server) handleAPIListConverters(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	scripts, err := s.scriptMgr.List()
	if err != nil {
		s.logger.Error("list scripts", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]converterView, 0, len(scripts))
	for _, script := range scripts {
		out = append(out, s.converterView(script))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIGetConverter(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}
	s.writeJSON(w, http.StatusOK, s.converterView(script))
}

type saveConverterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LuaCode     string `json:"lua_code"`
	Enabled     bool   `json:"enabled"`
}

// reload installs or uninstalls a saved script. Load errors are returned
// to the client; the script stays on disk.
func (s *Server) reload(id string) string {
	if s.engine == nil {
		return ""
	}
	if err := s.engine.Reload(id); err != nil {
		s.logger.Warn("reload converter", "id", id, "err", err)
		return err.Error()
	}
	return ""
}

func (s *Server) saved(w http.ResponseWriter, status int, script *external.Script) {
	resp := map[string]any{}
	if loadErr := s.reload(script.ID); loadErr != "" {
		resp["load_error"] = loadErr
	}
	resp["converter"] = s.converterView(script)
	s.writeJSON(w, status, resp)
}

func (s *Server) handleAPICreateConverter(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "external converters not available")
		return
	}

	var req saveConverterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	script := &external.Script{
		Meta: external.ScriptMeta{
			Name:        req.Name,
			Description: req.Description,
			Enabled:     req.Enabled,
		},
		LuaCode: req.LuaCode,
	}
	saved, err := s.scriptMgr.Save(script)
	if err != nil {
		s.logger.Error("create script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.saved(w, http.StatusCreated, saved)
}

func (s *Server) handleAPIUpdateConverter(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "external converters not available")
		return
	}

	existing, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}

	var req saveConverterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name != "" {
		existing.Meta.Name = req.Name
	}
	existing.Meta.Description = req.Description
	existing.Meta.Enabled = req.Enabled
	existing.LuaCode = req.LuaCode

	saved, err := s.scriptMgr.Save(existing)
	if err != nil {
		s.logger.Error("update script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.saved(w, http.StatusOK, saved)
}

func (s *Server) handleAPIDeleteConverter(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "external converters not available")
		return
	}

	id := r.PathValue("id")
	if s.engine != nil {
		s.engine.Uninstall(id)
	}
	if err := s.scriptMgr.Delete(id); err != nil {
		s.logger.Error("delete script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIToggleConverter(w http.ResponseWriter, r *http.Request) {
	if s.scriptMgr == nil {
		s.writeError(w, http.StatusInternalServerError, "external converters not available")
		return
	}

	script, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}
	script.Meta.Enabled = !script.Meta.Enabled
	saved, err := s.scriptMgr.Save(script)
	if err != nil {
		s.logger.Error("toggle script", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.saved(w, http.StatusOK, saved)
}

func (s *Server) handleAPICheckConverter(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.writeError(w, http.StatusInternalServerError, "external converters not available")
		return
	}
	var req struct {
		LuaCode string `json:"lua_code"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Check(req.LuaCode))
}
