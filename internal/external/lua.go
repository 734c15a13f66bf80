//go:build !no_external

package external

import (
	"context"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"zigbee-go-converters/internal/definition"
	"zigbee-go-converters/internal/tuya"
)

// Marker fields of the tables returned by zigbee.enum and zigbee.bitmap.
const (
	enumField   = "__tuya_enum"
	bitmapField = "__tuya_bitmap"
)

// sandbox removes libraries that reach outside the VM.
func sandbox(L *lua.LState) {
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// registerZigbeeModule installs the `zigbee` global table.
func registerZigbeeModule(L *lua.LState, vm *scriptVM) {
	mod := L.NewTable()

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		vm.log(L.CheckString(1))
		return 0
	}))

	// zigbee.definition(tbl) registers a definition; may be called repeatedly.
	mod.RawSetString("definition", L.NewFunction(func(L *lua.LState) int {
		vm.tables = append(vm.tables, L.CheckTable(1))
		return 0
	}))

	mod.RawSetString("enum", L.NewFunction(func(L *lua.LState) int {
		t := L.NewTable()
		t.RawSetString(enumField, L.CheckNumber(1))
		L.Push(t)
		return 1
	}))

	mod.RawSetString("bitmap", L.NewFunction(func(L *lua.LState) int {
		t := L.NewTable()
		t.RawSetString(bitmapField, L.CheckNumber(1))
		L.Push(t)
		return 1
	}))

	L.SetGlobal("zigbee", mod)
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case tuya.Enum:
		return lua.LNumber(val)
	case tuya.Bitmap:
		return lua.LNumber(val)
	case []byte:
		t := L.NewTable()
		for i, b := range val {
			t.RawSetInt(i+1, lua.LNumber(b))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case definition.Options:
		return goToLua(L, map[string]any(val))
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value to a Go value. Tables with consecutive
// integer keys become []any, other tables map[string]any. Functions and
// other non-data values become nil.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n, ok := val.RawGetString(enumField).(lua.LNumber); ok {
			return tuya.Enum(int(n))
		}
		if n, ok := val.RawGetString(bitmapField).(lua.LNumber); ok {
			return tuya.Bitmap(uint32(n))
		}
		if n := val.MaxN(); n > 0 && n == countKeys(val) {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		val.ForEach(func(k, vv lua.LValue) {
			if _, isFn := vv.(*lua.LFunction); isFn {
				return
			}
			out[k.String()] = luaToGo(vv)
		})
		return out
	}
	return nil
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}

// tableResult converts a Lua return value into a property map; nil and
// empty tables give nil.
func tableResult(v lua.LValue) (map[string]any, error) {
	switch t := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case *lua.LTable:
		m, ok := luaToGo(t).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a table of properties, got a list")
		}
		if len(m) == 0 {
			return nil, nil
		}
		return m, nil
	}
	return nil, fmt.Errorf("expected a table, got %s", v.Type())
}

func deviceTable(L *lua.LState, dev *definition.Device) *lua.LTable {
	t := L.NewTable()
	if dev == nil {
		return t
	}
	t.RawSetString("ieee", lua.LString(dev.IEEEAddr))
	t.RawSetString("model_id", lua.LString(dev.ModelID))
	t.RawSetString("manufacturer_name", lua.LString(dev.ManufacturerName))
	return t
}

func decodeContext(L *lua.LState, meta *definition.DecodeMeta) *lua.LTable {
	t := L.NewTable()
	if meta == nil {
		return t
	}
	t.RawSetString("device", deviceTable(L, meta.Device))
	t.RawSetString("state", goToLua(L, meta.State))
	t.RawSetString("options", goToLua(L, map[string]any(meta.Options)))
	if meta.Publish != nil {
		publish := meta.Publish
		t.RawSetString("publish", L.NewFunction(func(L *lua.LState) int {
			if m, ok := luaToGo(L.CheckTable(1)).(map[string]any); ok {
				publish(m)
			}
			return 0
		}))
	}
	return t
}

// encodeContext exposes the endpoint to Lua encoders. Transport errors
// raise a Lua error, which fails the encoder call.
func encodeContext(ctx context.Context, L *lua.LState, ep definition.Endpoint, meta *definition.EncodeMeta) *lua.LTable {
	t := L.NewTable()
	if meta != nil {
		t.RawSetString("device", deviceTable(L, meta.Device))
		t.RawSetString("state", goToLua(L, meta.State))
		t.RawSetString("options", goToLua(L, map[string]any(meta.Options)))
		t.RawSetString("endpoint_name", lua.LString(meta.EndpointName))
		t.RawSetString("message", goToLua(L, meta.Message))
	}
	fail := func(L *lua.LState, err error) int {
		L.RaiseError("%s", err.Error())
		return 0
	}
	t.RawSetString("command", L.NewFunction(func(L *lua.LState) int {
		cluster, command := L.CheckString(1), L.CheckString(2)
		payload, _ := luaToGo(L.OptTable(3, L.NewTable())).(map[string]any)
		if err := ep.Command(ctx, cluster, command, payload, nil); err != nil {
			return fail(L, err)
		}
		return 0
	}))
	t.RawSetString("write", L.NewFunction(func(L *lua.LState) int {
		cluster := L.CheckString(1)
		payload, _ := luaToGo(L.CheckTable(2)).(map[string]any)
		if err := ep.Write(ctx, cluster, payload, nil); err != nil {
			return fail(L, err)
		}
		return 0
	}))
	t.RawSetString("read", L.NewFunction(func(L *lua.LState) int {
		cluster := L.CheckString(1)
		var attrs []string
		L.CheckTable(2).ForEach(func(_, v lua.LValue) { attrs = append(attrs, v.String()) })
		if _, err := ep.Read(ctx, cluster, attrs, nil); err != nil {
			return fail(L, err)
		}
		return 0
	}))
	t.RawSetString("send_datapoint", L.NewFunction(func(L *lua.LState) int {
		dp := L.CheckInt(1)
		if dp < 0 || dp > math.MaxUint8 {
			L.ArgError(1, "datapoint out of range")
			return 0
		}
		dpv, err := tuya.NewDPValue(uint8(dp), luaToGo(L.CheckAny(2)))
		if err != nil {
			return fail(L, err)
		}
		var (
			def   *definition.Definition
			dev   *definition.Device
			store *definition.SideTable
		)
		if meta != nil {
			def, dev, store = meta.Definition, meta.Device, meta.Store
		}
		if err := tuya.SendDatapoints(ctx, ep, def, dev, store, dpv); err != nil {
			return fail(L, err)
		}
		return 0
	}))
	return t
}

// luaConverter wraps optional decode/encode Lua functions as a datapoint
// converter.
func luaConverter(vm *scriptVM, decode, encode *lua.LFunction) *tuya.Converter {
	c := &tuya.Converter{}
	if decode != nil {
		c.Decode = func(v any, meta *definition.DecodeMeta) (any, error) {
			var out any
			err := vm.call(context.Background(), func(L *lua.LState) error {
				ret, err := callLua(L, decode, goToLua(L, v), decodeContext(L, meta))
				out = luaToGo(ret)
				return err
			})
			return out, err
		}
	}
	if encode != nil {
		c.Encode = func(v any, meta *definition.EncodeMeta) (any, error) {
			var out any
			err := vm.call(context.Background(), func(L *lua.LState) error {
				t := L.NewTable()
				if meta != nil {
					t.RawSetString("device", deviceTable(L, meta.Device))
					t.RawSetString("state", goToLua(L, meta.State))
					t.RawSetString("options", goToLua(L, map[string]any(meta.Options)))
				}
				ret, err := callLua(L, encode, goToLua(L, v), t)
				out = luaToGo(ret)
				return err
			})
			if err == nil && out == nil {
				err = fmt.Errorf("%w: encode returned nil", tuya.ErrValue)
			}
			return out, err
		}
	}
	return c
}

// luaDecoder builds a decoder from {cluster=, type=, convert=function(msg, ctx)}.
func luaDecoder(vm *scriptVM, t *lua.LTable) (*definition.Decoder, error) {
	cluster, ok := t.RawGetString("cluster").(lua.LString)
	if !ok || cluster == "" {
		return nil, fmt.Errorf("decoder: cluster is required")
	}
	fn, ok := t.RawGetString("convert").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("decoder %s: convert must be a function", cluster)
	}
	types := stringList(t.RawGetString("type"))
	if len(types) == 0 {
		types = []string{"attributeReport", "readResponse"}
	}
	return &definition.Decoder{
		Cluster: string(cluster),
		Types:   types,
		Convert: func(_ *definition.Definition, msg *definition.Message, meta *definition.DecodeMeta) (map[string]any, error) {
			var out map[string]any
			err := vm.call(context.Background(), func(L *lua.LState) error {
				m := L.NewTable()
				m.RawSetString("type", lua.LString(msg.Type))
				m.RawSetString("cluster", lua.LString(msg.Cluster))
				m.RawSetString("endpoint", lua.LNumber(msg.Endpoint))
				m.RawSetString("linkquality", lua.LNumber(msg.LinkQuality))
				m.RawSetString("data", goToLua(L, msg.Data))
				ret, err := callLua(L, fn, m, decodeContext(L, meta))
				if err != nil {
					return err
				}
				out, err = tableResult(ret)
				return err
			})
			return out, err
		},
	}, nil
}

// luaEncoder builds an encoder from {key=, set=function(key, value, ctx),
// get=function(key, ctx)}.
func luaEncoder(vm *scriptVM, t *lua.LTable) (*definition.Encoder, error) {
	keys := stringList(t.RawGetString("key"))
	if len(keys) == 0 {
		return nil, fmt.Errorf("encoder: key is required")
	}
	enc := &definition.Encoder{Key: keys}
	if set, ok := t.RawGetString("set").(*lua.LFunction); ok {
		enc.ConvertSet = func(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
			var state map[string]any
			err := vm.call(ctx, func(L *lua.LState) error {
				ret, err := callLua(L, set, lua.LString(key), goToLua(L, value), encodeContext(ctx, L, ep, meta))
				if err != nil {
					return err
				}
				state, err = tableResult(ret)
				return err
			})
			if err != nil || state == nil {
				return nil, err
			}
			return &definition.EncodeResult{State: state}, nil
		}
	}
	if get, ok := t.RawGetString("get").(*lua.LFunction); ok {
		enc.ConvertGet = func(ctx context.Context, ep definition.Endpoint, key string, meta *definition.EncodeMeta) error {
			return vm.call(ctx, func(L *lua.LState) error {
				_, err := callLua(L, get, lua.LString(key), encodeContext(ctx, L, ep, meta))
				return err
			})
		}
	}
	if enc.ConvertSet == nil && enc.ConvertGet == nil {
		return nil, fmt.Errorf("encoder %v: set or get function is required", keys)
	}
	return enc, nil
}

// callLua calls fn with args and returns its first result.
func callLua(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// stringList accepts a string or a list of strings.
func stringList(v lua.LValue) []string {
	switch t := v.(type) {
	case lua.LString:
		return []string{string(t)}
	case *lua.LTable:
		var out []string
		for i := 1; i <= t.MaxN(); i++ {
			out = append(out, t.RawGetInt(i).String())
		}
		return out
	}
	return nil
}
