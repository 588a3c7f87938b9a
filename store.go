// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

import (
	"strings"

	"github.com/benbjohnson/immutable"
)

// ReservedPrefix marks engine-internal store keys.
const ReservedPrefix = "__cesk."

// LogKey is the reserved store key holding the accumulated Tell log.
const LogKey = ReservedPrefix + "log"

// IsReserved reports whether key is an engine-internal store key.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Store is a task's persistent key→value state. Every write returns a new
// Store; a spawned task receives the parent's Store by value and shares its
// structure until either side writes.
type Store struct {
	m   *immutable.Map[string, Value]
	log *immutable.List[Value]
}

// NewStore builds a store from kv. Reserved keys are ignored.
func NewStore(kv map[string]Value) Store {
	var s Store
	for k, v := range kv {
		if IsReserved(k) {
			continue
		}
		s = s.set(k, v)
	}
	return s
}

// Get returns the value stored under key.
func (s Store) Get(key string) (Value, bool) {
	if key == LogKey {
		return s.Log(), true
	}
	if s.m == nil {
		return nil, false
	}
	return s.m.Get(key)
}

// Set returns a store with key bound to v. Reserved keys are rejected.
func (s Store) Set(key string, v Value) (Store, error) {
	if IsReserved(key) {
		return s, &KeyError{Scope: reservedScope, Key: key}
	}
	return s.set(key, v), nil
}

func (s Store) set(key string, v Value) Store {
	m := s.m
	if m == nil {
		m = immutable.NewMap[string, Value](nil)
	}
	return Store{m: m.Set(key, v), log: s.log}
}

// Delete returns a store without key.
func (s Store) Delete(key string) Store {
	if s.m == nil {
		return s
	}
	return Store{m: s.m.Delete(key), log: s.log}
}

// Len returns the number of user keys.
func (s Store) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Keys returns the user keys in sorted order.
func (s Store) Keys() []string {
	return sortedKeys(s.m)
}

// Map returns a copy of the user bindings.
func (s Store) Map() map[string]Value {
	return toMap(s.m)
}

// Log returns a copy of the accumulated log.
func (s Store) Log() []Value {
	return s.logSince(0)
}

func (s Store) logLen() int {
	if s.log == nil {
		return 0
	}
	return s.log.Len()
}

func (s Store) logSince(start int) []Value {
	n := s.logLen()
	if start >= n {
		return []Value{}
	}
	out := make([]Value, 0, n-start)
	for i := start; i < n; i++ {
		out = append(out, s.log.Get(i))
	}
	return out
}

// replaceLogSince returns a store whose log keeps the first start entries
// followed by vals.
func (s Store) replaceLogSince(start int, vals []Value) Store {
	l := immutable.NewList[Value]()
	for i := 0; i < start && i < s.logLen(); i++ {
		l = l.Append(s.log.Get(i))
	}
	for _, v := range vals {
		l = l.Append(v)
	}
	return Store{m: s.m, log: l}
}

func (s Store) appendLog(v Value) Store {
	l := s.log
	if l == nil {
		l = immutable.NewList[Value]()
	}
	return Store{m: s.m, log: l.Append(v)}
}
