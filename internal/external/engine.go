//go:build !no_external

// Package external runs external converters written in Lua and installs
// their definitions into the definition registry.
package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"gopkg.in/yaml.v3"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/devices"
	"zigbee-go-converters/internal/tuya"
)

// ErrStopped is returned by converters whose script has been uninstalled
// or replaced.
var ErrStopped = errors.New("converter script stopped")

const (
	loadTimeout = 5 * time.Second
	callTimeout = 5 * time.Second
)

// CheckResult is the result of a dry-run script load.
type CheckResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Models   []string `json:"models"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// scriptVM is the Lua VM behind one installed script. Converter calls are
// serialized through commands.
type scriptVM struct {
	id       string
	state    *lua.LState
	commands chan func(*lua.LState)
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger

	tables []*lua.LTable // registered by zigbee.definition while loading

	logMu   sync.Mutex
	capture bool
	logs    []string
}

func newVM(id string, logger *slog.Logger) *scriptVM {
	ctx, cancel := context.WithCancel(context.Background())
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	sandbox(L)
	vm := &scriptVM{
		id:       id,
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
	registerZigbeeModule(L, vm)
	return vm
}

func (vm *scriptVM) log(msg string) {
	if vm.capture {
		vm.logMu.Lock()
		vm.logs = append(vm.logs, msg)
		vm.logMu.Unlock()
	}
	vm.logger.Info("converter log", "script", vm.id, "msg", msg)
}

// load executes the script and builds its declarations. It runs before
// the command loop starts.
func (vm *scriptVM) load(code string) ([]*definition.Declaration, error) {
	L := vm.state
	ctx, cancel := context.WithTimeout(vm.ctx, loadTimeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	fn, err := L.LoadString(code)
	if err != nil {
		return nil, err
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		if strings.Contains(err.Error(), "context deadline exceeded") {
			return nil, fmt.Errorf("timeout (%s)", loadTimeout)
		}
		return nil, err
	}
	ret := L.Get(-1)
	L.Pop(1)

	tables := vm.tables
	if t, ok := ret.(*lua.LTable); ok {
		if t.RawGetString("model") != lua.LNil {
			tables = append(tables, t)
		} else {
			for i := 1; i <= t.MaxN(); i++ {
				if tt, ok := t.RawGetInt(i).(*lua.LTable); ok {
					tables = append(tables, tt)
				}
			}
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("script defines no definitions")
	}

	decls := make([]*definition.Declaration, 0, len(tables))
	for i, t := range tables {
		decl, err := vm.declaration(t)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i+1, err)
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// declaration reads a definition table. Data fields follow the definition
// file schema; decoders, encoders and datapoint decode/encode functions
// are bound to this VM.
func (vm *scriptVM) declaration(t *lua.LTable) (*definition.Declaration, error) {
	var (
		decoders []*definition.Decoder
		encoders []*definition.Encoder
		custom   = map[int]*tuya.Converter{}
	)
	if list, ok := t.RawGetString("decoders").(*lua.LTable); ok {
		for i := 1; i <= list.MaxN(); i++ {
			item, ok := list.RawGetInt(i).(*lua.LTable)
			if !ok {
				return nil, fmt.Errorf("decoders[%d]: expected a table", i)
			}
			d, err := luaDecoder(vm, item)
			if err != nil {
				return nil, err
			}
			decoders = append(decoders, d)
		}
	}
	if list, ok := t.RawGetString("encoders").(*lua.LTable); ok {
		for i := 1; i <= list.MaxN(); i++ {
			item, ok := list.RawGetInt(i).(*lua.LTable)
			if !ok {
				return nil, fmt.Errorf("encoders[%d]: expected a table", i)
			}
			enc, err := luaEncoder(vm, item)
			if err != nil {
				return nil, err
			}
			encoders = append(encoders, enc)
		}
	}
	if tt, ok := t.RawGetString("tuya").(*lua.LTable); ok {
		if dps, ok := tt.RawGetString("datapoints").(*lua.LTable); ok {
			for i := 1; i <= dps.MaxN(); i++ {
				dp, ok := dps.RawGetInt(i).(*lua.LTable)
				if !ok {
					continue
				}
				dec, _ := dp.RawGetString("decode").(*lua.LFunction)
				enc, _ := dp.RawGetString("encode").(*lua.LFunction)
				if dec != nil || enc != nil {
					custom[i-1] = luaConverter(vm, dec, enc)
				}
			}
		}
	}

	raw, ok := luaToGo(t).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a table with named fields")
	}
	delete(raw, "decoders")
	delete(raw, "encoders")
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var spec devices.DefinitionSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if spec.Tuya != nil {
		for i := range spec.Tuya.Datapoints {
			if c, ok := custom[i]; ok {
				spec.Tuya.Datapoints[i].Custom = c
			}
		}
	}
	decl, err := spec.Declaration()
	if err != nil {
		return nil, err
	}
	decl.Decoders = append(decl.Decoders, decoders...)
	decl.Encoders = append(decl.Encoders, encoders...)
	return decl, nil
}

// run processes converter calls until the VM is stopped.
func (vm *scriptVM) run() {
	defer vm.state.Close()
	for {
		select {
		case <-vm.ctx.Done():
			return
		case fn := <-vm.commands:
			fn(vm.state)
		}
	}
}

// call runs fn on the VM goroutine and waits for it.
func (vm *scriptVM) call(ctx context.Context, fn func(L *lua.LState) error) error {
	if vm.ctx.Err() != nil {
		return ErrStopped
	}
	done := make(chan error, 1)
	cmd := func(L *lua.LState) {
		cctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		L.SetContext(cctx)
		defer L.RemoveContext()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("converter %s panic: %v", vm.id, r)
			}
		}()
		if err := fn(L); err != nil {
			done <- fmt.Errorf("converter %s: %w", vm.id, err)
			return
		}
		done <- nil
	}
	select {
	case <-vm.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case vm.commands <- cmd:
	}
	select {
	case err := <-done:
		return err
	case <-vm.ctx.Done():
		return ErrStopped
	}
}

// Engine installs converter scripts into the definition registry. Each
// script is an external source named by its script ID.
type Engine struct {
	reg     *definition.Registry
	manager *Manager
	logger  *slog.Logger

	mu       sync.Mutex
	vms      map[string]*scriptVM
	onChange []func()
}

// NewEngine creates an engine. mgr may be nil when scripts are only
// installed from code.
func NewEngine(reg *definition.Registry, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		reg:     reg,
		manager: mgr,
		logger:  logger.With("component", "external"),
		vms:     make(map[string]*scriptVM),
	}
}

// OnChange registers fn to run after the installed definitions change.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = append(e.onChange, fn)
	e.mu.Unlock()
}

func (e *Engine) notify() {
	e.mu.Lock()
	fns := slices.Clone(e.onChange)
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Start installs every enabled script from the manager. Scripts that fail
// to load are logged and skipped.
func (e *Engine) Start() {
	if e.manager == nil {
		return
	}
	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	n := 0
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if _, err := e.install(s.ID, s.LuaCode); err != nil {
			e.logger.Error("install converter", "id", s.ID, "err", err)
			continue
		}
		n++
	}
	if n > 0 {
		e.notify()
	}
	e.logger.Info("external converters started", "scripts", n)
}

// Stop stops every VM. Definitions stay registered; their converters
// return ErrStopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.logger.Info("external converters stopped")
}

// Install loads script id from the manager and installs it, replacing a
// previous version.
func (e *Engine) Install(id string) ([]*definition.Definition, error) {
	if e.manager == nil {
		return nil, fmt.Errorf("no converters directory configured")
	}
	s, err := e.manager.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get script: %w", err)
	}
	return e.InstallCode(s.ID, s.LuaCode)
}

// InstallCode installs code under id. On failure the previous version
// stays installed.
func (e *Engine) InstallCode(id, code string) ([]*definition.Definition, error) {
	defs, err := e.install(id, code)
	if err != nil {
		return nil, err
	}
	e.notify()
	return defs, nil
}

func (e *Engine) install(id, code string) ([]*definition.Definition, error) {
	if !validScriptID(id) {
		return nil, fmt.Errorf("invalid script id: %q", id)
	}
	vm := newVM(id, e.logger)
	decls, err := vm.load(code)
	if err != nil {
		vm.cancel()
		vm.state.Close()
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	defs, err := e.reg.InstallExternal(id, decls)
	if err != nil {
		vm.cancel()
		vm.state.Close()
		return nil, err
	}
	go vm.run()

	e.mu.Lock()
	if old, ok := e.vms[id]; ok {
		old.cancel()
	}
	e.vms[id] = vm
	e.mu.Unlock()

	models := make([]string, 0, len(defs))
	for _, d := range defs {
		models = append(models, d.Model)
	}
	e.logger.Info("converter installed", "id", id, "models", models)
	return defs, nil
}

// Uninstall removes the definitions of script id and stops its VM. It
// returns the number of removed definitions.
func (e *Engine) Uninstall(id string) int {
	e.mu.Lock()
	vm, ok := e.vms[id]
	delete(e.vms, id)
	e.mu.Unlock()
	if ok {
		vm.cancel()
	}
	n := e.reg.RemoveExternal(id)
	if ok || n > 0 {
		e.logger.Info("converter uninstalled", "id", id, "definitions", n)
		e.notify()
	}
	return n
}

// Reload reinstalls script id from disk, or uninstalls it when it is
// disabled or gone.
func (e *Engine) Reload(id string) error {
	if e.manager == nil {
		return fmt.Errorf("no converters directory configured")
	}
	s, err := e.manager.Get(id)
	if err != nil || !s.Meta.Enabled {
		e.Uninstall(id)
		return nil
	}
	_, err = e.InstallCode(s.ID, s.LuaCode)
	return err
}

// Installed returns the IDs of installed scripts, sorted.
func (e *Engine) Installed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Check loads code in a throwaway VM and composes its definitions without
// registering them.
func (e *Engine) Check(code string) *CheckResult {
	start := time.Now()
	vm := newVM("check", e.logger)
	vm.capture = true
	defer func() {
		vm.cancel()
		vm.state.Close()
	}()

	res := &CheckResult{}
	decls, err := vm.load(code)
	if err == nil {
		scratch := definition.NewRegistry(definition.WithLogger(e.logger))
		for _, decl := range decls {
			def, cerr := scratch.Compose(decl)
			if cerr != nil {
				err = cerr
				break
			}
			res.Models = append(res.Models, def.Model)
		}
	}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.OK = true
	}
	vm.logMu.Lock()
	res.Logs = slices.Clone(vm.logs)
	vm.logMu.Unlock()
	res.Duration = time.Since(start).String()
	return res
}
