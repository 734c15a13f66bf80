package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/devices"
	"zigbee-go-converters/internal/extend"
	"zigbee-go-converters/internal/hub"
	"zigbee-go-converters/internal/stack"
	"zigbee-go-converters/internal/store"
)

// stubStack implements stack.Stack and records commands.
type stubStack struct {
	mu         sync.Mutex
	commands   []stack.CommandRequest
	reads      []stack.ReadRequest
	commandErr error
}

func (s *stubStack) Read(_ context.Context, req stack.ReadRequest) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, req)
	return nil, nil
}

func (s *stubStack) Command(_ context.Context, req stack.CommandRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, req)
	return s.commandErr
}

func (s *stubStack) Write(context.Context, stack.WriteRequest) error                  { return nil }
func (s *stubStack) ConfigureReporting(context.Context, stack.ReportingRequest) error { return nil }
func (s *stubStack) Bind(context.Context, stack.BindRequest) error                    { return nil }
func (s *stubStack) OnDeviceInterview(func(stack.DeviceInterviewEvent))               {}
func (s *stubStack) OnDeviceAnnounce(func(stack.DeviceAnnounceEvent))                 {}
func (s *stubStack) OnDeviceLeft(func(stack.DeviceLeftEvent))                         {}
func (s *stubStack) OnAttributeReport(func(stack.AttributeReportEvent))               {}
func (s *stubStack) OnClusterCommand(func(stack.ClusterCommandEvent))                 {}
func (s *stubStack) Close() error                                                     { return nil }

type fixture struct {
	hub   *hub.Hub
	reg   *definition.Registry
	stack *stubStack
	store *store.MemStore
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestServer(t *testing.T, apiKey string, opts ...ServerOption) (*Server, *fixture) {
	t.Helper()
	logger := testLogger()
	reg := definition.NewRegistry(definition.WithLogger(logger), definition.WithGenerator(extend.Generator{}))
	if err := devices.Register(reg); err != nil {
		t.Fatal(err)
	}
	f := &fixture{reg: reg, stack: &stubStack{}, store: store.NewMemStore()}
	f.hub = hub.New(reg, f.store, f.stack, hub.NewEventBus(logger), hub.Config{}, logger)
	t.Cleanup(f.hub.Stop)

	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	srv := NewServer(f.hub, reg, logger, opts...)
	t.Cleanup(srv.Stop)
	return srv, f
}

const plugIEEE = "0x00124b0000000002"

func (f *fixture) joinPlug(t *testing.T) {
	t.Helper()
	err := f.hub.HandleInterview(context.Background(), stack.DeviceInterviewEvent{
		IEEE:             plugIEEE,
		NetworkAddr:      0x1234,
		Type:             definition.DeviceRouter,
		ModelID:          "TS011F",
		ManufacturerName: "_TZ3000_typdpbpg",
		Endpoints:        []stack.EndpointInfo{{ID: 1, ProfileID: 0x0104, InClusters: []uint16{0x0000, 0x0006}}},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func do(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestAPIListDefinitions(t *testing.T) {
	srv, f := setupTestServer(t, "")

	w := do(srv, "GET", "/api/definitions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var defs []definitionView
	if err := json.NewDecoder(w.Body).Decode(&defs); err != nil {
		t.Fatal(err)
	}
	if len(defs) != f.reg.Len() {
		t.Errorf("definition count = %d, want %d", len(defs), f.reg.Len())
	}

	w = do(srv, "GET", "/api/definitions?q=_tze200_nkjintbl", "")
	defs = nil
	if err := json.NewDecoder(w.Body).Decode(&defs); err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || defs[0].Model != "TS0601_switch_2_gang" {
		t.Errorf("query result = %+v", defs)
	}
}

func TestAPIGetDefinition(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/definitions/ts011f_plug_1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var def definitionView
	if err := json.NewDecoder(w.Body).Decode(&def); err != nil {
		t.Fatal(err)
	}
	if def.Model != "TS011F_plug_1" || def.Vendor != "Tuya" {
		t.Errorf("definition = %s/%s", def.Vendor, def.Model)
	}
	if len(def.Exposes) == 0 {
		t.Error("expected exposes")
	}

	w = do(srv, "GET", "/api/definitions/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIResolve(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	tests := []struct {
		name   string
		body   string
		status int
		model  string
		vendor string
	}{
		{"fingerprint", `{"model_id":"TS0601","manufacturer_name":"_TZE200_nkjintbl"}`, http.StatusOK, "TS0601_switch_2_gang", "Tuya"},
		{"white label", `{"model_id":"TS0601","manufacturer_name":"_TZE200_e9ba97vf"}`, http.StatusOK, "TV02-Zigbee", "Moes"},
		{"unknown", `{"model_id":"acme.widget","endpoints":[{"id":1,"in_clusters":[6]}]}`, http.StatusNotFound, "", ""},
		{"generated", `{"model_id":"acme.widget","endpoints":[{"id":1,"in_clusters":[6]}],"generate":true}`, http.StatusOK, "acme.widget", ""},
		{"empty", `{}`, http.StatusBadRequest, "", ""},
		{"bad json", `{`, http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(srv, "POST", "/api/resolve", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var def definitionView
			if err := json.NewDecoder(w.Body).Decode(&def); err != nil {
				t.Fatal(err)
			}
			if def.Model != tt.model {
				t.Errorf("model = %q, want %q", def.Model, tt.model)
			}
			if tt.vendor != "" && def.Vendor != tt.vendor {
				t.Errorf("vendor = %q, want %q", def.Vendor, tt.vendor)
			}
		})
	}
}

func TestAPIListDevices(t *testing.T) {
	srv, f := setupTestServer(t, "")
	f.joinPlug(t)

	w := do(srv, "GET", "/api/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var list []struct {
		IEEEAddress string `json:"ieee_address"`
		Model       string `json:"model"`
		Supported   bool   `json:"supported"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("device count = %d, want 1", len(list))
	}
	if list[0].IEEEAddress != plugIEEE || list[0].Model != "TS011F_plug_1" || !list[0].Supported {
		t.Errorf("device = %+v", list[0])
	}
}

func TestAPIGetDeviceNotFound(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/devices/0xffffffffffffffff", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIRenameAndLookupByName(t *testing.T) {
	srv, f := setupTestServer(t, "")
	f.joinPlug(t)

	w := do(srv, "PATCH", "/api/devices/"+plugIEEE, `{"friendly_name":"desk"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	w = do(srv, "GET", "/api/devices/desk", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get by name: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = do(srv, "PATCH", "/api/devices/"+plugIEEE, `{"friendly_name":"a/b"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid name: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAPISet(t *testing.T) {
	srv, f := setupTestServer(t, "")
	f.joinPlug(t)

	w := do(srv, "POST", "/api/devices/"+plugIEEE+"/set", `{"state":"ON"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		State map[string]any `json:"state"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.State["state"] != "ON" {
		t.Errorf("state = %v, want ON", resp.State["state"])
	}
	if len(f.stack.commands) != 1 || f.stack.commands[0].Command != "on" {
		t.Errorf("commands = %+v", f.stack.commands)
	}

	w = do(srv, "POST", "/api/devices/"+plugIEEE+"/set", `{"no_such_key":1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown key: status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = do(srv, "POST", "/api/devices/0x99/set", `{"state":"ON"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = do(srv, "POST", "/api/devices/"+plugIEEE+"/set", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAPIGet(t *testing.T) {
	srv, f := setupTestServer(t, "")
	f.joinPlug(t)

	w := do(srv, "POST", "/api/devices/"+plugIEEE+"/get", `{"keys":["state"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if len(f.stack.reads) != 1 || f.stack.reads[0].Cluster != "genOnOff" {
		t.Errorf("reads = %+v", f.stack.reads)
	}

	w = do(srv, "POST", "/api/devices/"+plugIEEE+"/get", `{"keys":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAPISetOptions(t *testing.T) {
	srv, f := setupTestServer(t, "")
	f.joinPlug(t)

	w := do(srv, "PUT", "/api/devices/"+plugIEEE+"/options", `{"power_calibration":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	rec, err := f.store.GetDevice(plugIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Options["power_calibration"] != float64(10) {
		t.Errorf("options = %v", rec.Options)
	}
}

func TestAPIDeleteDevice(t *testing.T) {
	srv, f := setupTestServer(t, "")
	f.joinPlug(t)

	w := do(srv, "DELETE", "/api/devices/"+plugIEEE, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, err := f.store.GetDevice(plugIEEE); err == nil {
		t.Error("expected device to be deleted")
	}
}

func TestAPIVersion(t *testing.T) {
	srv, _ := setupTestServer(t, "", WithVersion("1.2.3"))

	w := do(srv, "GET", "/api/version", "")
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["version"] != "1.2.3" {
		t.Errorf("version = %v", resp["version"])
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, _ := setupTestServer(t, "secret123")

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"no key", "", http.StatusUnauthorized},
		{"wrong key", "wrong", http.StatusUnauthorized},
		{"correct key", "secret123", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/definitions", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestCORSOrigins(t *testing.T) {
	srv, _ := setupTestServer(t, "", WithAllowedOrigins([]string{"http://allowed.example"}))

	tests := []struct {
		name   string
		method string
		origin string
		status int
	}{
		{"preflight allowed", "OPTIONS", "http://allowed.example", http.StatusNoContent},
		{"preflight denied", "OPTIONS", "http://evil.example", http.StatusForbidden},
		{"post denied", "POST", "http://evil.example", http.StatusForbidden},
		{"get any origin", "GET", "http://evil.example", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/definitions"
			if tt.method == "POST" {
				path = "/api/reresolve"
			}
			req := httptest.NewRequest(tt.method, path, nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
