//go:build !no_external

package external

// ScriptMeta holds user-editable metadata for a converter script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is a single external converter script stored on disk.
type Script struct {
	ID       string     `json:"id"`       // filename stem (no .lua)
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"` // raw Lua source (without header)
	FilePath string     `json:"-"`
}
