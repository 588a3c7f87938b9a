// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"sort"

	"github.com/benbjohnson/immutable"
)

// Env is the persistent, immutable reader environment. Overrides return a
// new Env sharing structure with the old one; the zero Env is empty.
type Env struct {
	m *immutable.Map[string, Value]
}

// NewEnv builds an environment from kv.
func NewEnv(kv map[string]Value) Env {
	return Env{}.With(kv)
}

// Get returns the value bound to key.
func (e Env) Get(key string) (Value, bool) {
	if e.m == nil {
		return nil, false
	}
	return e.m.Get(key)
}

// With returns an environment with overrides applied on top of e.
func (e Env) With(overrides map[string]Value) Env {
	if len(overrides) == 0 {
		return e
	}
	m := e.m
	if m == nil {
		m = immutable.NewMap[string, Value](nil)
	}
	for k, v := range overrides {
		m = m.Set(k, v)
	}
	return Env{m: m}
}

// Len returns the number of bindings.
func (e Env) Len() int {
	if e.m == nil {
		return 0
	}
	return e.m.Len()
}

// Keys returns the bound keys in sorted order.
func (e Env) Keys() []string {
	return sortedKeys(e.m)
}

// Map returns a copy of the bindings.
func (e Env) Map() map[string]Value {
	return toMap(e.m)
}

// same reports whether e and o are the same persistent version.
func (e Env) same(o Env) bool { return e.m == o.m }

func toMap(m *immutable.Map[string, Value]) map[string]Value {
	out := make(map[string]Value)
	if m == nil {
		return out
	}
	itr := m.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		out[k] = v
	}
	return out
}

func sortedKeys(m *immutable.Map[string, Value]) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, m.Len())
	itr := m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
