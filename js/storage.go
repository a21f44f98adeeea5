package js

import (
	"github.com/zond/juicebot"
	"rogchap.com/v8go"
)

func (m *Machine) installStorage(t *Target) error {
	tmpl := v8go.NewObjectTemplate(m.iso)
	for name, f := range map[string]callback{
		"get":    m.storageGet,
		"set":    m.storageSet,
		"remove": m.storageRemove,
	} {
		if err := tmpl.Set(name, m.template(t, "storage."+name, f)); err != nil {
			return juicebot.WithStack(err)
		}
	}
	obj, err := tmpl.NewInstance(m.vctx)
	if err != nil {
		return juicebot.WithStack(err)
	}
	return juicebot.WithStack(m.vctx.Global().Set("storage", obj))
}

func (m *Machine) storageKey(info *v8go.FunctionCallbackInfo, want int) (string, *v8go.Value) {
	args := info.Args()
	if len(args) != want || !args[0].IsString() || args[0].String() == "" {
		return "", m.Throw("key is required")
	}
	return args[0].String(), nil
}

func (m *Machine) storageGet(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	key, thrown := m.storageKey(info, 1)
	if thrown != nil {
		return thrown
	}
	s, found, err := t.Storage.Get(key)
	if err != nil {
		return m.Throw("storage.get: %v", err)
	}
	if !found {
		return nil
	}
	val, err := m.fromJSON(s)
	if err != nil {
		return m.Throw("storage.get: %v", err)
	}
	return val
}

func (m *Machine) storageSet(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	key, thrown := m.storageKey(info, 2)
	if thrown != nil {
		return thrown
	}
	s, err := v8go.JSONStringify(m.vctx, info.Args()[1])
	if err != nil {
		return m.Throw("storage.set: %v", err)
	}
	if err := t.Storage.Set(key, s); err != nil {
		return m.Throw("storage.set: %v", err)
	}
	return nil
}

func (m *Machine) storageRemove(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	key, thrown := m.storageKey(info, 1)
	if thrown != nil {
		return thrown
	}
	if err := t.Storage.Remove(key); err != nil {
		return m.Throw("storage.remove: %v", err)
	}
	return nil
}
