package lua

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/logstore"
)

// apiModule exposes a capability.API to Lua code as the api table.
// Functions are called with dot syntax: api.registerCommand{...}.
type apiModule struct {
	state *State
	api   *capability.API
}

func newAPIModule(state *State, api *capability.API) *apiModule {
	return &apiModule{state: state, api: api}
}

// Table builds the api table.
func (m *apiModule) Table() *lua.LTable {
	L := m.state.L
	mod := L.NewTable()

	L.SetField(mod, "id", lua.LString(m.api.ID()))
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"registerCommand":           m.registerCommand,
		"unregisterCommand":         m.unregisterCommand,
		"registerHook":              m.registerHook,
		"unregisterHook":            m.unregisterHook,
		"registerFilter":            m.registerFilter,
		"unregisterFilter":          m.unregisterFilter,
		"registerSlot":              m.registerSlot,
		"unregisterSlot":            m.unregisterSlot,
		"registerContextMenuItem":   m.registerContextMenuItem,
		"unregisterContextMenuItem": m.unregisterContextMenuItem,
		"registerMenuItem":          m.registerMenuItem,
		"unregisterMenuItem":        m.unregisterMenuItem,
		"registerMenuCategory":      m.registerMenuCategory,
		"unregisterMenuCategory":    m.unregisterMenuCategory,
		"getState":                  m.getState,
		"subscribe":                 m.subscribe,
		"addStyles":                 m.addStyles,
		"removeStyles":              m.removeStyles,
	})

	log := L.NewTable()
	for name, level := range map[string]logstore.Level{
		"debug": logstore.LevelDebug,
		"info":  logstore.LevelInfo,
		"warn":  logstore.LevelWarn,
		"error": logstore.LevelError,
	} {
		L.SetField(log, name, L.NewFunction(m.logAt(level)))
	}
	L.SetField(mod, "log", log)

	L.SetField(mod, "storage", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get":    m.storageGet,
		"set":    m.storageSet,
		"delete": m.storageDelete,
		"list":   m.storageList,
	}))
	return mod
}

// callback wraps a Lua function as a capability.Callback. The first
// result is returned.
func (m *apiModule) callback(fn *lua.LFunction) capability.Callback {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, args ...any) (any, error) {
		res, err := m.state.Call(ctx, fn, args...)
		if err != nil {
			return nil, err
		}
		if len(res) == 0 {
			return nil, nil
		}
		return m.state.bridge.ToGoValue(res[0]), nil
	}
}

func (m *apiModule) raise(L *lua.LState, err error) int {
	L.RaiseError("%s", err.Error())
	return 0
}

// registerCommand(opts) -> qualified id
// opts: id, name, execute, description?, shortcut?, category?
func (m *apiModule) registerCommand(L *lua.LState) int {
	opts := L.CheckTable(1)
	b := m.state.bridge
	qid, err := m.api.RegisterCommand(capability.Command{
		ID:          b.GetTableString(opts, "id"),
		Name:        b.GetTableString(opts, "name"),
		Description: b.GetTableString(opts, "description"),
		Shortcut:    b.GetTableString(opts, "shortcut"),
		Category:    b.GetTableString(opts, "category"),
		Execute:     m.callback(b.GetTableFunc(opts, "execute")),
	})
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(lua.LString(qid))
	return 1
}

func (m *apiModule) unregisterCommand(L *lua.LState) int {
	L.Push(lua.LBool(m.api.UnregisterCommand(L.CheckString(1))))
	return 1
}

// registerHook(type, fn) -> unsubscribe function
func (m *apiModule) registerHook(L *lua.LState) int {
	off, err := m.api.RegisterHook(L.CheckString(1), m.callback(L.CheckFunction(2)))
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(m.unsubscriber(off))
	return 1
}

func (m *apiModule) unregisterHook(L *lua.LState) int {
	L.Push(lua.LNumber(m.api.UnregisterHook(L.CheckString(1))))
	return 1
}

// registerFilter(type, fn) -> unsubscribe function
func (m *apiModule) registerFilter(L *lua.LState) int {
	off, err := m.api.RegisterFilter(L.CheckString(1), m.callback(L.CheckFunction(2)))
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(m.unsubscriber(off))
	return 1
}

func (m *apiModule) unregisterFilter(L *lua.LState) int {
	L.Push(lua.LNumber(m.api.UnregisterFilter(L.CheckString(1))))
	return 1
}

// registerSlot(slot, {id, component, priority?}) -> qualified id
func (m *apiModule) registerSlot(L *lua.LState) int {
	slot := L.CheckString(1)
	opts := L.CheckTable(2)
	b := m.state.bridge
	qid, err := m.api.RegisterSlot(slot, capability.Slot{
		ID:        b.GetTableString(opts, "id"),
		Component: b.ToGoValue(opts.RawGetString("component")),
		Priority:  b.GetTableInt(opts, "priority"),
	})
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(lua.LString(qid))
	return 1
}

func (m *apiModule) unregisterSlot(L *lua.LState) int {
	L.Push(lua.LBool(m.api.UnregisterSlot(L.CheckString(1))))
	return 1
}

// registerContextMenuItem(menuType, opts) -> qualified id
// opts: id, label, execute, icon?, shortcut?, when?, priority?, divider?
func (m *apiModule) registerContextMenuItem(L *lua.LState) int {
	menuType := L.CheckString(1)
	opts := L.CheckTable(2)
	b := m.state.bridge
	qid, err := m.api.RegisterContextMenuItem(menuType, capability.ContextMenuItem{
		ID:       b.GetTableString(opts, "id"),
		Label:    b.GetTableString(opts, "label"),
		Icon:     b.GetTableString(opts, "icon"),
		Shortcut: b.GetTableString(opts, "shortcut"),
		Execute:  m.callback(b.GetTableFunc(opts, "execute")),
		When:     m.callback(b.GetTableFunc(opts, "when")),
		Priority: b.GetTableInt(opts, "priority"),
		Divider:  b.GetTableBool(opts, "divider"),
	})
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(lua.LString(qid))
	return 1
}

func (m *apiModule) unregisterContextMenuItem(L *lua.LState) int {
	L.Push(lua.LBool(m.api.UnregisterContextMenuItem(L.CheckString(1))))
	return 1
}

// registerMenuItem(category, opts) -> qualified id
func (m *apiModule) registerMenuItem(L *lua.LState) int {
	category := L.CheckString(1)
	opts := L.CheckTable(2)
	b := m.state.bridge
	qid, err := m.api.RegisterMenuItem(category, capability.MenuItem{
		ID:       b.GetTableString(opts, "id"),
		Label:    b.GetTableString(opts, "label"),
		Shortcut: b.GetTableString(opts, "shortcut"),
		Execute:  m.callback(b.GetTableFunc(opts, "execute")),
		Priority: b.GetTableInt(opts, "priority"),
		Divider:  b.GetTableBool(opts, "divider"),
	})
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(lua.LString(qid))
	return 1
}

func (m *apiModule) unregisterMenuItem(L *lua.LState) int {
	L.Push(lua.LBool(m.api.UnregisterMenuItem(L.CheckString(1))))
	return 1
}

// registerMenuCategory({id, label, priority?}) -> qualified id
func (m *apiModule) registerMenuCategory(L *lua.LState) int {
	opts := L.CheckTable(1)
	b := m.state.bridge
	qid, err := m.api.RegisterMenuCategory(capability.MenuCategory{
		ID:       b.GetTableString(opts, "id"),
		Label:    b.GetTableString(opts, "label"),
		Priority: b.GetTableInt(opts, "priority"),
	})
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(lua.LString(qid))
	return 1
}

func (m *apiModule) unregisterMenuCategory(L *lua.LState) int {
	L.Push(lua.LBool(m.api.UnregisterMenuCategory(L.CheckString(1))))
	return 1
}

func (m *apiModule) logAt(level logstore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.ToStringMeta(L.Get(1)).String()
		var details any
		if L.GetTop() >= 2 {
			details = m.state.bridge.ToGoValue(L.Get(2))
		}
		m.api.Log(level, msg, details)
		return 0
	}
}

func (m *apiModule) getState(L *lua.LState) int {
	st, err := m.api.GetState()
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(m.state.bridge.ToLuaValue(st))
	return 1
}

// subscribe(store, fn) -> unsubscribe function
func (m *apiModule) subscribe(L *lua.LState) int {
	store := L.CheckString(1)
	cb := m.callback(L.CheckFunction(2))
	off, err := m.api.Subscribe(store, func(value any) {
		if _, err := cb(context.Background(), value); err != nil {
			m.api.Log(logstore.LevelError, "subscriber failed", map[string]any{
				"store": store,
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(m.unsubscriber(off))
	return 1
}

func (m *apiModule) addStyles(L *lua.LState) int {
	if err := m.api.AddStyles(L.CheckString(1)); err != nil {
		return m.raise(L, err)
	}
	return 0
}

func (m *apiModule) removeStyles(L *lua.LState) int {
	m.api.RemoveStyles()
	return 0
}

func (m *apiModule) storageGet(L *lua.LState) int {
	ds, err := m.api.Storage()
	if err != nil {
		return m.raise(L, err)
	}
	data, err := ds.Read(L.CheckString(1))
	if err != nil {
		return m.raise(L, err)
	}
	if data == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(m.state.bridge.ToLuaValue(gjson.ParseBytes(data).Value()))
	return 1
}

func (m *apiModule) storageSet(L *lua.LState) int {
	ds, err := m.api.Storage()
	if err != nil {
		return m.raise(L, err)
	}
	key := L.CheckString(1)
	data, err := json.Marshal(m.state.bridge.ToGoValue(L.Get(2)))
	if err != nil {
		return m.raise(L, err)
	}
	if err := ds.Write(key, data); err != nil {
		return m.raise(L, err)
	}
	return 0
}

func (m *apiModule) storageDelete(L *lua.LState) int {
	ds, err := m.api.Storage()
	if err != nil {
		return m.raise(L, err)
	}
	if err := ds.Delete(L.CheckString(1)); err != nil {
		return m.raise(L, err)
	}
	return 0
}

func (m *apiModule) storageList(L *lua.LState) int {
	ds, err := m.api.Storage()
	if err != nil {
		return m.raise(L, err)
	}
	keys, err := ds.List()
	if err != nil {
		return m.raise(L, err)
	}
	L.Push(m.state.bridge.ToLuaValue(keys))
	return 1
}

func (m *apiModule) unsubscriber(off func()) *lua.LFunction {
	return m.state.L.NewFunction(func(L *lua.LState) int {
		off()
		return 0
	})
}
