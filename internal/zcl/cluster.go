package zcl

import "strings"

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04
)

// AttributeDef defines a ZCL attribute.
type AttributeDef struct {
	ID     uint16 `json:"id"`
	Name   string `json:"name"`
	Type   uint8  `json:"type"`
	Access uint8  `json:"access"` // bitmask: 1=read, 2=write, 4=reportable
}

// IsWritable returns true if the attribute can be written.
func (a *AttributeDef) IsWritable() bool {
	return a.Access&AccessWrite != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a *AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// CommandDirection indicates the direction of a cluster command.
type CommandDirection string

const (
	DirectionToServer CommandDirection = "toServer"
	DirectionToClient CommandDirection = "toClient"
)

// ParamDef is one fixed-width field of a command payload.
type ParamDef struct {
	Name string `json:"name"`
	Type uint8  `json:"type"`
}

// CommandDef defines a cluster-specific command. Commands with a
// vendor-specific payload layout leave Params empty and are sent as raw bytes.
type CommandDef struct {
	ID        uint8            `json:"id"`
	Name      string           `json:"name"`
	Direction CommandDirection `json:"direction"`
	Params    []ParamDef       `json:"params,omitempty"`
}

// EncodePayload serializes named parameters in declaration order. Missing
// parameters are an error.
func (c *CommandDef) EncodePayload(values map[string]any) ([]byte, error) {
	var out []byte
	for _, p := range c.Params {
		v, ok := values[p.Name]
		if !ok {
			return nil, &ParamError{Command: c.Name, Param: p.Name}
		}
		b, err := EncodeValue(p.Type, v)
		if err != nil {
			return nil, &ParamError{Command: c.Name, Param: p.Name, Err: err}
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodePayload parses a payload using Params. Trailing bytes are ignored;
// a short payload yields the parameters decoded so far.
func (c *CommandDef) DecodePayload(data []byte) map[string]any {
	out := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		v, n, err := DecodeValue(p.Type, data)
		if err != nil {
			break
		}
		out[p.Name] = v
		data = data[n:]
	}
	return out
}

// ParamError reports a missing or unencodable command parameter.
type ParamError struct {
	Command string
	Param   string
	Err     error
}

func (e *ParamError) Error() string {
	if e.Err == nil {
		return "zcl: command " + e.Command + ": missing parameter " + e.Param
	}
	return "zcl: command " + e.Command + ": parameter " + e.Param + ": " + e.Err.Error()
}

func (e *ParamError) Unwrap() error { return e.Err }

// ClusterDef defines a ZCL cluster with its attributes and commands.
type ClusterDef struct {
	ID               uint16         `json:"id"`
	Name             string         `json:"name"`
	ManufacturerCode uint16         `json:"manufacturer_code,omitempty"`
	Attributes       []AttributeDef `json:"attributes,omitempty"`
	Commands         []CommandDef   `json:"commands,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// AttributeByName looks up an attribute by name (case-insensitive).
func (c *ClusterDef) AttributeByName(name string) *AttributeDef {
	for i := range c.Attributes {
		if strings.EqualFold(c.Attributes[i].Name, name) {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindCommand looks up a command by ID and direction.
func (c *ClusterDef) FindCommand(id uint8, dir CommandDirection) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].ID == id && c.Commands[i].Direction == dir {
			return &c.Commands[i]
		}
	}
	return nil
}

// CommandByName looks up a command by name and direction (case-insensitive).
func (c *ClusterDef) CommandByName(name string, dir CommandDirection) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].Direction == dir && strings.EqualFold(c.Commands[i].Name, name) {
			return &c.Commands[i]
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	cp.Attributes = append([]AttributeDef(nil), c.Attributes...)
	if c.Commands != nil {
		cp.Commands = make([]CommandDef, len(c.Commands))
		for i, cmd := range c.Commands {
			cmd.Params = append([]ParamDef(nil), cmd.Params...)
			cp.Commands[i] = cmd
		}
	}
	return &cp
}

// Merge adds attributes and commands from another definition (for overlays
// loaded from definition files).
func (c *ClusterDef) Merge(other *ClusterDef) {
	for _, attr := range other.Attributes {
		if c.FindAttribute(attr.ID) == nil {
			c.Attributes = append(c.Attributes, attr)
		}
	}
	for _, cmd := range other.Commands {
		if c.FindCommand(cmd.ID, cmd.Direction) == nil {
			c.Commands = append(c.Commands, cmd)
		}
	}
}
