// Package lua embeds a gopher-lua interpreter so user scripts can
// observe and transform session events. Scripts register handlers
// through the preloaded envlens module; the engine converts payloads
// across the Go/Lua boundary and keeps script faults away from the
// session core.
package lua
