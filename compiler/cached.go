// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compiler

import (
	"crypto/sha256"

	"github.com/gogpu/owl/internal/cache"
)

// DefaultCacheSize is the module limit of a cached compiler.
const DefaultCacheSize = 64

type cacheKey struct {
	label string
	sum   [sha256.Size]byte
}

// CachedCompiler memoizes successful compilations by label and source.
// Failures are not cached. The returned modules are shared between callers
// and must not be modified.
type CachedCompiler struct {
	next    Compiler
	modules *cache.Cache[cacheKey, *Module]
}

// Cached wraps c so identical sources compile once. A limit of 0 or less
// uses DefaultCacheSize.
func Cached(c Compiler, limit int) *CachedCompiler {
	if limit <= 0 {
		limit = DefaultCacheSize
	}
	return &CachedCompiler{next: c, modules: cache.New[cacheKey, *Module](limit)}
}

// Compile returns the cached module for source or compiles it.
func (c *CachedCompiler) Compile(label string, source []byte) (*Module, error) {
	key := cacheKey{label: label, sum: sha256.Sum256(source)}
	if m, ok := c.modules.Get(key); ok {
		return m, nil
	}
	m, err := c.next.Compile(label, source)
	if err != nil {
		return nil, err
	}
	c.modules.Set(key, m)
	return m, nil
}

// Stats returns the hit and miss counts of the cache.
func (c *CachedCompiler) Stats() (hits, misses uint64) {
	s := c.modules.Stats()
	return s.Hits, s.Misses
}
