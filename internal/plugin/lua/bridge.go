package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/envlens/envlens/internal/command"
)

// toLua converts a Go value into its Lua representation. Unsupported
// types map to nil.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	case command.Variable:
		return variableToLua(L, val)
	case []command.Variable:
		t := L.NewTable()
		for i := range val {
			t.RawSetInt(i+1, variableToLua(L, val[i]))
		}
		return t
	default:
		return lua.LNil
	}
}

// fromLua converts a Lua value back into a plain Go value. Tables with
// contiguous 1..n integer keys become slices; everything else becomes
// a string-keyed map.
func fromLua(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable) any {
	n := t.Len()
	if n > 0 {
		count := 0
		t.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if count == n {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				arr[i-1] = fromLua(t.RawGetInt(i))
			}
			return arr
		}
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = fromLua(v)
	})
	return m
}

// variableToLua exposes one variable to scripts. The raw value is
// readable but ignored on the way back: scripts transform what the
// user sees, never what the session stores.
func variableToLua(L *lua.LState, v command.Variable) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("name", lua.LString(v.Name))
	t.RawSetString("value", lua.LString(v.Value))
	t.RawSetString("raw_value", lua.LString(v.RawValue))
	t.RawSetString("source", lua.LString(v.Source))
	t.RawSetString("type", lua.LString(v.Type))
	return t
}

// variableFromLua rebuilds a variable from a script-returned table.
// The raw value always comes from prev, so masking the display value
// cannot destroy the original.
func variableFromLua(t *lua.LTable, prev command.Variable) command.Variable {
	out := prev
	if s, ok := t.RawGetString("name").(lua.LString); ok {
		out.Name = string(s)
	}
	if s, ok := t.RawGetString("value").(lua.LString); ok {
		out.Value = string(s)
	}
	if s, ok := t.RawGetString("source").(lua.LString); ok {
		out.Source = string(s)
	}
	if s, ok := t.RawGetString("type").(lua.LString); ok {
		out.Type = string(s)
	}
	out.RawValue = prev.RawValue
	return out
}

// variablesFromLua rebuilds a variable list. Entries are matched to
// their originals by name so scripts may drop or reorder entries; raw
// values follow the name. Entries that are not tables are skipped.
func variablesFromLua(t *lua.LTable, prev []command.Variable) []command.Variable {
	byName := make(map[string]command.Variable, len(prev))
	for _, v := range prev {
		byName[v.Name] = v
	}

	out := make([]command.Variable, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		entry, ok := t.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		name := ""
		if s, ok := entry.RawGetString("name").(lua.LString); ok {
			name = string(s)
		}
		out = append(out, variableFromLua(entry, byName[name]))
	}
	return out
}
