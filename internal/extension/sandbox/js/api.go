package js

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"

	"github.com/dshills/kairo/internal/extension/capability"
	"github.com/dshills/kairo/internal/extension/logstore"
)

// apiObject exposes a capability.API to JavaScript.
type apiObject struct {
	rt  *goja.Runtime
	vm  *vm
	api *capability.API
}

func newAPIObject(rt *goja.Runtime, v *vm, api *capability.API) *goja.Object {
	a := &apiObject{rt: rt, vm: v, api: api}
	obj := rt.NewObject()

	set := func(o *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
		_ = o.Set(name, fn)
	}

	_ = obj.Set("id", api.ID())
	set(obj, "registerCommand", a.registerCommand)
	set(obj, "unregisterCommand", a.unregister(api.UnregisterCommand))
	set(obj, "registerHook", a.registerHook)
	set(obj, "unregisterHook", a.unregisterGroup(api.UnregisterHook))
	set(obj, "registerFilter", a.registerFilter)
	set(obj, "unregisterFilter", a.unregisterGroup(api.UnregisterFilter))
	set(obj, "registerSlot", a.registerSlot)
	set(obj, "unregisterSlot", a.unregister(api.UnregisterSlot))
	set(obj, "registerContextMenuItem", a.registerContextMenuItem)
	set(obj, "unregisterContextMenuItem", a.unregister(api.UnregisterContextMenuItem))
	set(obj, "registerMenuItem", a.registerMenuItem)
	set(obj, "unregisterMenuItem", a.unregister(api.UnregisterMenuItem))
	set(obj, "registerMenuCategory", a.registerMenuCategory)
	set(obj, "unregisterMenuCategory", a.unregister(api.UnregisterMenuCategory))
	set(obj, "getState", a.getState)
	set(obj, "subscribe", a.subscribe)
	set(obj, "addStyles", a.addStyles)
	set(obj, "removeStyles", a.removeStyles)

	log := rt.NewObject()
	set(log, "debug", a.logAt(logstore.LevelDebug))
	set(log, "info", a.logAt(logstore.LevelInfo))
	set(log, "warn", a.logAt(logstore.LevelWarn))
	set(log, "error", a.logAt(logstore.LevelError))
	_ = obj.Set("log", log)

	storage := rt.NewObject()
	set(storage, "get", a.storageGet)
	set(storage, "set", a.storageSet)
	set(storage, "delete", a.storageDelete)
	set(storage, "list", a.storageList)
	_ = obj.Set("storage", storage)

	return obj
}

// newConsole returns a console object that writes to the extension log.
func newConsole(rt *goja.Runtime, api *capability.API) *goja.Object {
	console := rt.NewObject()
	for name, level := range map[string]logstore.Level{
		"log":   logstore.LevelInfo,
		"info":  logstore.LevelInfo,
		"debug": logstore.LevelDebug,
		"warn":  logstore.LevelWarn,
		"error": logstore.LevelError,
	} {
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			api.Log(level, strings.Join(parts, " "), nil)
			return goja.Undefined()
		})
	}
	return console
}

// throw raises err as a JavaScript exception.
func (a *apiObject) throw(err error) {
	panic(a.rt.NewGoError(err))
}

// callback wraps a JavaScript function as a capability.Callback.
func (a *apiObject) callback(fn goja.Callable) capability.Callback {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, args ...any) (any, error) {
		val, err := a.vm.run(ctx, func(rt *goja.Runtime) (goja.Value, error) {
			jsArgs := make([]goja.Value, len(args))
			for i, arg := range args {
				jsArgs[i] = rt.ToValue(arg)
			}
			res, err := fn(goja.Undefined(), jsArgs...)
			if err != nil {
				return nil, err
			}
			return settle(res)
		})
		if err != nil {
			return nil, err
		}
		return export(val), nil
	}
}

func (a *apiObject) options(val goja.Value) *goja.Object {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		panic(a.rt.NewTypeError("options object required"))
	}
	return val.ToObject(a.rt)
}

func (a *apiObject) str(o *goja.Object, key string) string {
	v := o.Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func (a *apiObject) integer(o *goja.Object, key string) int {
	v := o.Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}

func (a *apiObject) boolean(o *goja.Object, key string) bool {
	v := o.Get(key)
	return v != nil && v.ToBoolean()
}

func (a *apiObject) function(o *goja.Object, key string) capability.Callback {
	fn, ok := goja.AssertFunction(o.Get(key))
	if !ok {
		return nil
	}
	return a.callback(fn)
}

func (a *apiObject) requireFunction(val goja.Value) capability.Callback {
	fn, ok := goja.AssertFunction(val)
	if !ok {
		panic(a.rt.NewTypeError("callback must be a function"))
	}
	return a.callback(fn)
}

func (a *apiObject) unsubscriber(off func()) goja.Value {
	return a.rt.ToValue(func(goja.FunctionCall) goja.Value {
		off()
		return goja.Undefined()
	})
}

// registerCommand({id, name, description?, shortcut?, category?, execute})
func (a *apiObject) registerCommand(call goja.FunctionCall) goja.Value {
	o := a.options(call.Argument(0))
	qid, err := a.api.RegisterCommand(capability.Command{
		ID:          a.str(o, "id"),
		Name:        a.str(o, "name"),
		Description: a.str(o, "description"),
		Shortcut:    a.str(o, "shortcut"),
		Category:    a.str(o, "category"),
		Execute:     a.function(o, "execute"),
	})
	if err != nil {
		a.throw(err)
	}
	return a.rt.ToValue(qid)
}

// registerHook(type, callback) -> unsubscribe
func (a *apiObject) registerHook(call goja.FunctionCall) goja.Value {
	off, err := a.api.RegisterHook(call.Argument(0).String(), a.requireFunction(call.Argument(1)))
	if err != nil {
		a.throw(err)
	}
	return a.unsubscriber(off)
}

// registerFilter(type, callback) -> unsubscribe
func (a *apiObject) registerFilter(call goja.FunctionCall) goja.Value {
	off, err := a.api.RegisterFilter(call.Argument(0).String(), a.requireFunction(call.Argument(1)))
	if err != nil {
		a.throw(err)
	}
	return a.unsubscriber(off)
}

// registerSlot(slot, {id, component, priority?})
func (a *apiObject) registerSlot(call goja.FunctionCall) goja.Value {
	slot := call.Argument(0).String()
	o := a.options(call.Argument(1))
	qid, err := a.api.RegisterSlot(slot, capability.Slot{
		ID:        a.str(o, "id"),
		Component: export(o.Get("component")),
		Priority:  a.integer(o, "priority"),
	})
	if err != nil {
		a.throw(err)
	}
	return a.rt.ToValue(qid)
}

// registerContextMenuItem(menuType, {id, label, icon?, shortcut?, execute, when?, priority?, divider?})
func (a *apiObject) registerContextMenuItem(call goja.FunctionCall) goja.Value {
	menuType := call.Argument(0).String()
	o := a.options(call.Argument(1))
	qid, err := a.api.RegisterContextMenuItem(menuType, capability.ContextMenuItem{
		ID:       a.str(o, "id"),
		Label:    a.str(o, "label"),
		Icon:     a.str(o, "icon"),
		Shortcut: a.str(o, "shortcut"),
		Execute:  a.function(o, "execute"),
		When:     a.function(o, "when"),
		Priority: a.integer(o, "priority"),
		Divider:  a.boolean(o, "divider"),
	})
	if err != nil {
		a.throw(err)
	}
	return a.rt.ToValue(qid)
}

// registerMenuItem(category, {id, label, shortcut?, execute, priority?, divider?})
func (a *apiObject) registerMenuItem(call goja.FunctionCall) goja.Value {
	category := call.Argument(0).String()
	o := a.options(call.Argument(1))
	qid, err := a.api.RegisterMenuItem(category, capability.MenuItem{
		ID:       a.str(o, "id"),
		Label:    a.str(o, "label"),
		Shortcut: a.str(o, "shortcut"),
		Execute:  a.function(o, "execute"),
		Priority: a.integer(o, "priority"),
		Divider:  a.boolean(o, "divider"),
	})
	if err != nil {
		a.throw(err)
	}
	return a.rt.ToValue(qid)
}

// registerMenuCategory({id, label, priority?})
func (a *apiObject) registerMenuCategory(call goja.FunctionCall) goja.Value {
	o := a.options(call.Argument(0))
	qid, err := a.api.RegisterMenuCategory(capability.MenuCategory{
		ID:       a.str(o, "id"),
		Label:    a.str(o, "label"),
		Priority: a.integer(o, "priority"),
	})
	if err != nil {
		a.throw(err)
	}
	return a.rt.ToValue(qid)
}

func (a *apiObject) unregister(fn func(string) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return a.rt.ToValue(fn(call.Argument(0).String()))
	}
}

func (a *apiObject) unregisterGroup(fn func(string) int) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return a.rt.ToValue(fn(call.Argument(0).String()))
	}
}

func (a *apiObject) logAt(level logstore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var details any
		if len(call.Arguments) > 1 {
			details = export(call.Argument(1))
		}
		a.api.Log(level, call.Argument(0).String(), details)
		return goja.Undefined()
	}
}

func (a *apiObject) getState(goja.FunctionCall) goja.Value {
	st, err := a.api.GetState()
	if err != nil {
		a.throw(err)
	}
	return a.rt.ToValue(st)
}

// subscribe(store, callback) -> unsubscribe
func (a *apiObject) subscribe(call goja.FunctionCall) goja.Value {
	store := call.Argument(0).String()
	cb := a.requireFunction(call.Argument(1))
	off, err := a.api.Subscribe(store, func(value any) {
		if _, err := cb(context.Background(), value); err != nil {
			a.api.Log(logstore.LevelError, "subscriber failed", map[string]any{
				"store": store,
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		a.throw(err)
	}
	return a.unsubscriber(off)
}

func (a *apiObject) addStyles(call goja.FunctionCall) goja.Value {
	if err := a.api.AddStyles(call.Argument(0).String()); err != nil {
		a.throw(err)
	}
	return goja.Undefined()
}

func (a *apiObject) removeStyles(goja.FunctionCall) goja.Value {
	a.api.RemoveStyles()
	return goja.Undefined()
}

func (a *apiObject) dataStore() capability.DataStore {
	ds, err := a.api.Storage()
	if err != nil {
		a.throw(err)
	}
	return ds
}

func (a *apiObject) storageGet(call goja.FunctionCall) goja.Value {
	data, err := a.dataStore().Read(call.Argument(0).String())
	if err != nil {
		a.throw(err)
	}
	if data == nil {
		return goja.Null()
	}
	return a.rt.ToValue(gjson.ParseBytes(data).Value())
}

func (a *apiObject) storageSet(call goja.FunctionCall) goja.Value {
	ds := a.dataStore()
	data, err := json.Marshal(export(call.Argument(1)))
	if err != nil {
		a.throw(fmt.Errorf("storage value: %w", err))
	}
	if err := ds.Write(call.Argument(0).String(), data); err != nil {
		a.throw(err)
	}
	return goja.Undefined()
}

func (a *apiObject) storageDelete(call goja.FunctionCall) goja.Value {
	if err := a.dataStore().Delete(call.Argument(0).String()); err != nil {
		a.throw(err)
	}
	return goja.Undefined()
}

func (a *apiObject) storageList(goja.FunctionCall) goja.Value {
	keys, err := a.dataStore().List()
	if err != nil {
		a.throw(err)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return a.rt.ToValue(out)
}
