//go:build no_external

package external

import (
	"errors"
	"log/slog"

	"zigbee-go-converters/internal/definition"
)

var errDisabled = errors.New("external converters disabled")

// ErrStopped is returned by converters whose script has been uninstalled.
var ErrStopped = errors.New("converter script stopped")

// ScriptMeta holds user-editable metadata for a converter script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is a single external converter script stored on disk.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// CheckResult is the result of a dry-run script load.
type CheckResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Models   []string `json:"models"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Manager is a no-op stub when external converters are disabled.
type Manager struct{}

// NewManager returns a nil manager when external converters are disabled.
func NewManager(_ string) (*Manager, error) { return nil, nil }

// Dir returns "".
func (m *Manager) Dir() string { return "" }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get returns an error.
func (m *Manager) Get(_ string) (*Script, error) { return nil, errDisabled }

// Save returns an error.
func (m *Manager) Save(_ *Script) (*Script, error) { return nil, errDisabled }

// Delete returns an error.
func (m *Manager) Delete(_ string) error { return errDisabled }

// Engine is a no-op stub when external converters are disabled.
type Engine struct{}

// NewEngine returns a no-op engine.
func NewEngine(_ *definition.Registry, _ *Manager, _ *slog.Logger) *Engine { return &Engine{} }

// OnChange is a no-op.
func (e *Engine) OnChange(func()) {}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// Install returns an error.
func (e *Engine) Install(_ string) ([]*definition.Definition, error) { return nil, errDisabled }

// InstallCode returns an error.
func (e *Engine) InstallCode(_, _ string) ([]*definition.Definition, error) {
	return nil, errDisabled
}

// Uninstall returns 0.
func (e *Engine) Uninstall(_ string) int { return 0 }

// Reload returns an error.
func (e *Engine) Reload(_ string) error { return errDisabled }

// Installed returns nil.
func (e *Engine) Installed() []string { return nil }

// Check returns a stub result.
func (e *Engine) Check(_ string) *CheckResult {
	return &CheckResult{Error: errDisabled.Error()}
}
