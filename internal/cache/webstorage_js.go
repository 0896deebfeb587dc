//go:build js && wasm

package cache

import (
	"fmt"
	"syscall/js"
)

const storageProbeKey = "__codecheckout_probe__"

// browserStorage returns window.localStorage when it exists and accepts writes
func browserStorage() (store WebStore) {
	defer func() {
		if recover() != nil {
			store = nil
		}
	}()

	v := js.Global().Get("localStorage")
	if v.IsUndefined() || v.IsNull() {
		return nil
	}

	// private browsing modes expose localStorage but reject writes
	v.Call("setItem", storageProbeKey, "1")
	v.Call("removeItem", storageProbeKey)

	return localStorage{v: v}
}

type localStorage struct {
	v js.Value
}

func (s localStorage) Len() int {
	return s.v.Get("length").Int()
}

func (s localStorage) Key(i int) (string, bool) {
	k := s.v.Call("key", i)
	if k.IsNull() || k.IsUndefined() {
		return "", false
	}
	return k.String(), true
}

func (s localStorage) GetItem(key string) (value string, ok bool) {
	defer func() {
		if recover() != nil {
			value, ok = "", false
		}
	}()

	v := s.v.Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return "", false
	}
	return v.String(), true
}

func (s localStorage) SetItem(key, value string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("localStorage setItem: %v", r)
		}
	}()

	s.v.Call("setItem", key, value)
	return nil
}

func (s localStorage) RemoveItem(key string) {
	defer func() { _ = recover() }()
	s.v.Call("removeItem", key)
}
