package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ModuleCache caches compiled modules by content hash. §3 states compiled
// modules are "cheap to clone... freely shareable across host threads", so
// the same atom bytes loaded by two different commands (or two dl_open calls
// loading the same side module) need not be recompiled.
type ModuleCache struct {
	engine *Engine
	cache  *lru.Cache[string, *Module]
}

// NewModuleCache creates a cache holding up to size compiled modules.
func NewModuleCache(e *Engine, size int) (*ModuleCache, error) {
	c, err := lru.New[string, *Module](size)
	if err != nil {
		return nil, err
	}
	return &ModuleCache{engine: e, cache: c}, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LoadOrCompile returns the cached Module for wasmBytes, compiling and
// caching it on first use.
func (c *ModuleCache) LoadOrCompile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	key := hashBytes(wasmBytes)
	if m, ok := c.cache.Get(key); ok {
		return m, nil
	}

	m, err := c.engine.LoadModule(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, m)
	return m, nil
}

// Len reports the number of cached modules.
func (c *ModuleCache) Len() int {
	return c.cache.Len()
}
