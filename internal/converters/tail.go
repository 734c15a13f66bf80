package converters

import (
	"context"
	"fmt"

	"zigbee-go-converters/internal/definition"
)

// Tail returns the generic encoders appended to every definition.
func Tail() []*definition.Encoder {
	return []*definition.Encoder{
		SceneStore, SceneRecall, SceneRemove, SceneRemoveAll,
		Read, Write, Command, FactoryReset,
	}
}

func objectValue(key string, value any) (map[string]any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, valueError(key, value, "an object")
	}
	return m, nil
}

// scene reads {ID, group_id} from a scene request. value may also be the
// bare scene id.
func scene(key string, value any) (sceneID uint8, group uint16, err error) {
	if v, ok := number(value); ok {
		if v < 0 || v > 255 {
			return 0, 0, valueError(key, value, "a scene id 0-255")
		}
		return uint8(v), 0, nil
	}
	m, err := objectValue(key, value)
	if err != nil {
		return 0, 0, err
	}
	id, ok := number(m["ID"])
	if !ok || id < 0 || id > 255 {
		return 0, 0, valueError(key, value, "ID 0-255")
	}
	if g, ok := number(m["group_id"]); ok {
		group = uint16(g)
	}
	return uint8(id), group, nil
}

func sceneCommand(command string) *definition.Encoder {
	key := "scene_" + command
	return &definition.Encoder{
		Key: []string{key},
		ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
			id, group, err := scene(key, value)
			if err != nil {
				return nil, err
			}
			if err := ep.Command(ctx, "genScenes", command, map[string]any{"groupid": group, "sceneid": id}, nil); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return &definition.EncodeResult{}, nil
		},
	}
}

var (
	// SceneStore stores the current state as a scene.
	SceneStore = sceneCommand("store")
	// SceneRecall recalls a stored scene.
	SceneRecall = sceneCommand("recall")
	// SceneRemove removes one scene.
	SceneRemove = sceneCommand("remove")
)

// SceneRemoveAll removes every scene of a group.
var SceneRemoveAll = &definition.Encoder{
	Key: []string{"scene_remove_all"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		var group uint16
		if m, ok := value.(map[string]any); ok {
			if g, ok := number(m["group_id"]); ok {
				group = uint16(g)
			}
		}
		if err := ep.Command(ctx, "genScenes", "removeAll", map[string]any{"groupid": group}, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &definition.EncodeResult{}, nil
	},
}

func commandOptions(m map[string]any) *definition.CommandOptions {
	opts, _ := m["options"].(map[string]any)
	if opts == nil {
		return nil
	}
	out := &definition.CommandOptions{}
	if v, ok := number(opts["manufacturerCode"]); ok {
		out.ManufacturerCode = uint16(v)
	}
	if v, ok := opts["disableDefaultResponse"].(bool); ok {
		out.DisableDefaultResponse = v
	}
	return out
}

func clusterOf(key string, m map[string]any) (string, error) {
	switch c := m["cluster"].(type) {
	case string:
		if c != "" {
			return c, nil
		}
	case float64, int, int64, uint16:
		n, _ := number(c)
		return fmt.Sprintf("%d", int(n)), nil
	}
	return "", valueError(key, m["cluster"], "a cluster name or id")
}

// Read reads raw attributes: {cluster, attributes, options}.
var Read = &definition.Encoder{
	Key: []string{"read"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, meta *definition.EncodeMeta) (*definition.EncodeResult, error) {
		m, err := objectValue(key, value)
		if err != nil {
			return nil, err
		}
		cluster, err := clusterOf(key, m)
		if err != nil {
			return nil, err
		}
		list, _ := m["attributes"].([]any)
		if len(list) == 0 {
			return nil, valueError(key, m["attributes"], "a non-empty attribute list")
		}
		attributes := make([]string, 0, len(list))
		for _, a := range list {
			attributes = append(attributes, fmt.Sprint(a))
		}
		result, err := ep.Read(ctx, cluster, attributes, commandOptions(m))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cluster, err)
		}
		if meta != nil && meta.Logger != nil {
			meta.Logger.Debug("raw read", "cluster", cluster, "result", result)
		}
		return &definition.EncodeResult{}, nil
	},
}

// Write writes raw attributes: {cluster, payload, options}.
var Write = &definition.Encoder{
	Key: []string{"write"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		m, err := objectValue(key, value)
		if err != nil {
			return nil, err
		}
		cluster, err := clusterOf(key, m)
		if err != nil {
			return nil, err
		}
		payload, ok := m["payload"].(map[string]any)
		if !ok || len(payload) == 0 {
			return nil, valueError(key, m["payload"], "an attribute object")
		}
		if err := ep.Write(ctx, cluster, payload, commandOptions(m)); err != nil {
			return nil, fmt.Errorf("write %s: %w", cluster, err)
		}
		return &definition.EncodeResult{}, nil
	},
}

// Command sends a raw cluster command: {cluster, command, payload, options}.
var Command = &definition.Encoder{
	Key: []string{"command"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, key string, value any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		m, err := objectValue(key, value)
		if err != nil {
			return nil, err
		}
		cluster, err := clusterOf(key, m)
		if err != nil {
			return nil, err
		}
		command := fmt.Sprint(m["command"])
		if m["command"] == nil || command == "" {
			return nil, valueError(key, m["command"], "a command name or id")
		}
		payload, _ := m["payload"].(map[string]any)
		if err := ep.Command(ctx, cluster, command, payload, commandOptions(m)); err != nil {
			return nil, fmt.Errorf("command %s/%s: %w", cluster, command, err)
		}
		return &definition.EncodeResult{}, nil
	},
}

// FactoryReset sends genBasic resetFactDefault.
var FactoryReset = &definition.Encoder{
	Key: []string{"factory_reset"},
	ConvertSet: func(ctx context.Context, ep definition.Endpoint, _ string, _ any, _ *definition.EncodeMeta) (*definition.EncodeResult, error) {
		if err := ep.Command(ctx, "genBasic", "resetFactDefault", nil, nil); err != nil {
			return nil, fmt.Errorf("factory reset: %w", err)
		}
		return &definition.EncodeResult{}, nil
	},
}
