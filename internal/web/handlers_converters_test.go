//go:build !no_external

package web

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-go-converters/internal/external"
)

const buttonConverter = `return {
  model = "ACME-BTN",
  vendor = "Acme",
  description = "Button",
  zigbee_model = {"acme.button"},
  exposes = {{type = "enum", name = "action", access = "state", values = {"single", "double"}}},
}`

func setupConverterServer(t *testing.T) (*Server, *fixture, *external.Engine) {
	t.Helper()
	mgr, err := external.NewManager(t.TempDir())
	require.NoError(t, err)
	var engine *external.Engine
	srv, f := setupTestServer(t, "", func(s *Server) {
		engine = external.NewEngine(s.reg, mgr, s.logger)
		WithExternal(engine, mgr)(s)
	})
	t.Cleanup(engine.Stop)
	return srv, f, engine
}

type savedConverter struct {
	Converter struct {
		ID        string `json:"id"`
		Installed bool   `json:"installed"`
		Meta      struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"meta"`
	} `json:"converter"`
	LoadError string `json:"load_error"`
}

func TestConverterLifecycle(t *testing.T) {
	srv, f, engine := setupConverterServer(t)

	body, err := json.Marshal(map[string]any{"name": "Acme button", "lua_code": buttonConverter, "enabled": true})
	require.NoError(t, err)
	w := do(srv, "POST", "/api/converters", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created savedConverter
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "acme_button", created.Converter.ID)
	assert.True(t, created.Converter.Installed)
	assert.Empty(t, created.LoadError)
	assert.Equal(t, []string{"acme_button"}, engine.Installed())
	require.NotNil(t, f.reg.FindByModel("ACME-BTN"))

	w = do(srv, "GET", "/api/converters", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []converterView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Acme button", list[0].Meta.Name)
	assert.True(t, list[0].Installed)

	w = do(srv, "POST", "/api/converters/acme_button/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	var toggled savedConverter
	require.NoError(t, json.NewDecoder(w.Body).Decode(&toggled))
	assert.False(t, toggled.Converter.Meta.Enabled)
	assert.False(t, toggled.Converter.Installed)
	assert.Nil(t, f.reg.FindByModel("ACME-BTN"))

	w = do(srv, "DELETE", "/api/converters/acme_button", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(srv, "GET", "/api/converters/acme_button", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConverterLoadError(t *testing.T) {
	srv, f, engine := setupConverterServer(t)

	body, err := json.Marshal(map[string]any{"name": "broken", "lua_code": "return {", "enabled": true})
	require.NoError(t, err)
	w := do(srv, "POST", "/api/converters", string(body))
	require.Equal(t, http.StatusCreated, w.Code)

	var created savedConverter
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotEmpty(t, created.LoadError)
	assert.False(t, created.Converter.Installed)
	assert.Empty(t, engine.Installed())

	n := f.reg.Len()
	w = do(srv, "PUT", "/api/converters/broken", `{"lua_code":"return {","enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, n, f.reg.Len())
}

func TestConverterCheck(t *testing.T) {
	srv, f, _ := setupConverterServer(t)
	n := f.reg.Len()

	body, err := json.Marshal(map[string]string{"lua_code": buttonConverter})
	require.NoError(t, err)
	w := do(srv, "POST", "/api/converters/check", string(body))
	require.Equal(t, http.StatusOK, w.Code)

	var res external.CheckResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"ACME-BTN"}, res.Models)
	assert.Equal(t, n, f.reg.Len(), "check must not register definitions")
}

func TestConvertersUnavailable(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/converters", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(srv, "POST", "/api/converters/check", `{"lua_code":""}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
