package js

import (
	"fmt"
	"log"

	"github.com/zond/juicebot"
	"rogchap.com/v8go"
)

type callback func(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value

// template wraps f so that a Go panic becomes a JS exception instead of killing the process.
func (m *Machine) template(t *Target, name string, f callback) *v8go.FunctionTemplate {
	return v8go.NewFunctionTemplate(m.iso, func(info *v8go.FunctionCallbackInfo) (res *v8go.Value) {
		defer func() {
			if e := recover(); e != nil {
				res = m.Throw("%s: %v", name, e)
			}
		}()
		return f(t, info)
	})
}

func (m *Machine) setFunction(obj *v8go.Object, t *Target, name string, f callback) error {
	return juicebot.WithStack(obj.Set(name, m.template(t, name, f).GetFunction(m.vctx)))
}

// install replaces the globals of the context with the ones t allows.
func (m *Machine) install(t *Target) error {
	global := m.vctx.Global()
	for _, name := range []string{"send", "command", "proxy", "isOwner", "owner", "message", "log", "storage"} {
		global.Delete(name)
	}
	if t.Capabilities != nil {
		if err := m.setFunction(global, t, "send", m.sendFunc); err != nil {
			return err
		}
		if err := global.Set("isOwner", t.Capabilities.IsPrivileged()); err != nil {
			return juicebot.WithStack(err)
		}
		if !t.Eval {
			if err := m.setFunction(global, t, "command", m.commandFunc); err != nil {
				return err
			}
			if err := m.setFunction(global, t, "proxy", m.proxyFunc); err != nil {
				return err
			}
		}
	}
	if t.Owner != "" {
		if err := global.Set("owner", t.Owner); err != nil {
			return juicebot.WithStack(err)
		}
	}
	if t.Message != nil {
		msg, err := m.fromGo(t.Message)
		if err != nil {
			return err
		}
		if err := global.Set("message", msg); err != nil {
			return juicebot.WithStack(err)
		}
	}
	if t.Console != nil {
		if err := m.setFunction(global, t, "log", m.logFunc); err != nil {
			return err
		}
	}
	if t.Storage != nil {
		if err := m.installStorage(t); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) sendFunc(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	args := info.Args()
	if len(args) != 1 {
		return m.Throw("send takes [string] arguments")
	}
	text := args[0].String()
	if !args[0].IsString() {
		text = m.stringify(args[0])
	}
	if err := t.Capabilities.Send(text); err != nil {
		return m.Throw("send: %v", err)
	}
	return nil
}

func (m *Machine) triggers(val *v8go.Value) ([]string, error) {
	if val.IsString() {
		return []string{val.String()}, nil
	}
	if !val.IsArray() {
		return nil, fmt.Errorf("triggers must be a string or an array of strings")
	}
	obj, err := val.AsObject()
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	length, err := obj.Get("length")
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	result := []string{}
	for i := uint32(0); i < length.Uint32(); i++ {
		el, err := obj.GetIdx(i)
		if err != nil {
			return nil, juicebot.WithStack(err)
		}
		if !el.IsString() {
			return nil, fmt.Errorf("trigger %v is not a string", el)
		}
		result = append(result, el.String())
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("at least one trigger is required")
	}
	return result, nil
}

func (m *Machine) commandFunc(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	args := info.Args()
	if len(args) != 2 || !args[1].IsFunction() {
		return m.Throw("command takes [string|string[], function] arguments")
	}
	triggers, err := m.triggers(args[0])
	if err != nil {
		return m.Throw("command: %v", err)
	}
	fn, err := args[1].AsFunction()
	if err != nil {
		return m.Throw("trying to cast %v to *v8go.Function: %v", args[1], err)
	}
	added := t.Capabilities.RegisterCommand(triggers, &Function{m: m, fn: fn})
	res, err := v8go.NewValue(m.iso, added)
	if err != nil {
		return m.Throw("command: %v", err)
	}
	return res
}

func (m *Machine) proxyFunc(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	args := info.Args()
	if len(args) != 2 || !args[0].IsString() || !args[1].IsFunction() {
		return m.Throw("proxy takes [string, function] arguments")
	}
	fn, err := args[1].AsFunction()
	if err != nil {
		return m.Throw("trying to cast %v to *v8go.Function: %v", args[1], err)
	}
	if err := t.Capabilities.RegisterListener(args[0].String(), &Function{m: m, fn: fn}); err != nil {
		return m.Throw("proxy: %v", err)
	}
	return nil
}

func (m *Machine) logFunc(t *Target, info *v8go.FunctionCallbackInfo) *v8go.Value {
	anyArgs := []any{}
	for _, arg := range info.Args() {
		stringArg := arg.String()
		if stringArg == "[object Object]" {
			if jsonArg, err := v8go.JSONStringify(m.vctx, arg); err == nil {
				stringArg = jsonArg
			}
		}
		anyArgs = append(anyArgs, stringArg)
	}
	log.New(t.Console, "", 0).Println(anyArgs...)
	return nil
}
