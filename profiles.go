// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cesk

// ProfileOption adjusts a default handler set.
type ProfileOption func(*profile)

type profile struct {
	cache CacheBackend
	extra []Handler
}

// UsingCache backs the cache effects with b instead of a fresh
// [MemoryCache].
func UsingCache(b CacheBackend) ProfileOption {
	return func(p *profile) {
		p.cache = b
	}
}

// WithInner places hs innermost, ahead of the built-in handlers, so they
// see every effect first and may delegate to the defaults.
func WithInner(hs ...Handler) ProfileOption {
	return func(p *profile) {
		p.extra = append(p.extra, hs...)
	}
}

func resolveProfile(opts []ProfileOption) profile {
	var p profile
	for _, opt := range opts {
		opt(&p)
	}
	if p.cache == nil {
		p.cache = NewMemoryCache(nil)
	}
	return p
}

func (p profile) handlers(external Handler) []Handler {
	hs := make([]Handler, 0, len(p.extra)+8)
	hs = append(hs, p.extra...)
	return append(hs,
		ReaderHandler(),
		StateHandler(),
		WriterHandler(),
		CacheHandler(p.cache),
		ControlHandler(),
		SchedulerHandler(),
		external,
		IntrospectHandler(),
	)
}

// SyncHandlers returns the default handler set for the synchronous
// profile. External effects run on the interpreter goroutine.
func SyncHandlers(opts ...ProfileOption) []Handler {
	return resolveProfile(opts).handlers(IOHandler())
}

// AsyncHandlers returns the default handler set for the asynchronous
// profile. It differs from [SyncHandlers] only in bridging external
// effects through b.
func AsyncHandlers(b *Bridge, opts ...ProfileOption) []Handler {
	return resolveProfile(opts).handlers(AsyncIOHandler(b))
}
