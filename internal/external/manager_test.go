//go:build !no_external

package external

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "converters")
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestManagerListEmpty(t *testing.T) {
	m := newTestManager(t)
	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 0 {
		t.Errorf("list count = %d, want 0", len(scripts))
	}
}

func TestManagerSaveAndGet(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "Acme Sensor", Description: "TH sensor", Enabled: true},
		LuaCode: `return {model = "ACME-TH"}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID != "acme_sensor" {
		t.Errorf("id = %q, want acme_sensor", saved.ID)
	}

	got, err := m.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Meta.Name != "Acme Sensor" {
		t.Errorf("name = %q, want Acme Sensor", got.Meta.Name)
	}
	if got.Meta.Description != "TH sensor" {
		t.Errorf("description = %q, want TH sensor", got.Meta.Description)
	}
	if !got.Meta.Enabled {
		t.Error("enabled = false, want true")
	}
	if strings.TrimSpace(got.LuaCode) != `return {model = "ACME-TH"}` {
		t.Errorf("lua_code = %q", got.LuaCode)
	}
}

func TestManagerSaveExistingID(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{ID: "acme", Meta: ScriptMeta{Name: "Acme", Enabled: true}, LuaCode: `zigbee.log("v1")`})
	if err != nil {
		t.Fatal(err)
	}
	saved.LuaCode = `zigbee.log("v2")`
	if _, err := m.Save(saved); err != nil {
		t.Fatal(err)
	}

	got, err := m.Get("acme")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.LuaCode, `zigbee.log("v2")`) {
		t.Errorf("lua_code after update = %q", got.LuaCode)
	}
}

func TestManagerListSorted(t *testing.T) {
	m := newTestManager(t)
	for _, name := range []string{"Gamma", "Alpha", "Beta"} {
		if _, err := m.Save(&Script{Meta: ScriptMeta{Name: name, Enabled: true}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range scripts {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "alpha,beta,gamma" {
		t.Errorf("ids = %v, want [alpha beta gamma]", ids)
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)
	saved, err := m.Save(&Script{Meta: ScriptMeta{Name: "ToDelete", Enabled: true}})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(saved.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(saved.ID); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestManagerInvalidID(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if _, err := m.Get(id); err == nil {
			t.Errorf("Get(%q) error = nil", id)
		}
	}
	if _, err := m.Save(&Script{ID: "../escape"}); err == nil {
		t.Error("Save with path id: error = nil")
	}
}

func TestManagerUniqueID(t *testing.T) {
	m := newTestManager(t)
	s1, err := m.Save(&Script{Meta: ScriptMeta{Name: "Dup", Enabled: true}})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.Save(&Script{Meta: ScriptMeta{Name: "Dup", Enabled: true}})
	if err != nil {
		t.Fatal(err)
	}
	if s1.ID == s2.ID {
		t.Errorf("expected unique IDs, got %q for both", s1.ID)
	}
}

func TestParseScriptFile(t *testing.T) {
	dir := t.TempDir()

	withMeta := filepath.Join(dir, "plug.lua")
	content := `-- {"name":"Acme plug","description":"Smart plug","enabled":false}

return {model = "ACME-PLUG"}
`
	if err := os.WriteFile(withMeta, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := parseFile(withMeta)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "plug" {
		t.Errorf("id = %q, want plug", s.ID)
	}
	if s.Meta.Name != "Acme plug" || s.Meta.Enabled {
		t.Errorf("meta = %+v", s.Meta)
	}
	if !strings.HasPrefix(s.LuaCode, "return") {
		t.Errorf("lua_code = %q", s.LuaCode)
	}

	bare := filepath.Join(dir, "bare.lua")
	if err := os.WriteFile(bare, []byte("return {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = parseFile(bare)
	if err != nil {
		t.Fatal(err)
	}
	if s.Meta.Name != "bare" || !s.Meta.Enabled {
		t.Errorf("meta = %+v, want enabled and named after the file", s.Meta)
	}
	if s.LuaCode != "return {}\n" {
		t.Errorf("lua_code = %q", s.LuaCode)
	}
}

func TestSerializeScript(t *testing.T) {
	content := serializeScript(&Script{
		ID:      "test",
		Meta:    ScriptMeta{Name: "Test", Enabled: true},
		LuaCode: `zigbee.log("hi")`,
	})
	if !strings.HasPrefix(content, `-- {"name":"Test","enabled":true}`) {
		t.Errorf("metadata line = %q", content)
	}
	if !strings.HasSuffix(content, "zigbee.log(\"hi\")\n") {
		t.Errorf("content = %q", content)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Acme Sensor", "acme_sensor"},
		{"hello world!", "hello_world"},
		{"", ""},
		{"  spaces  ", "spaces"},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		got := slugify(tt.input)
		if got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
