package service

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// scriptCacheKey identifies a generated bridge script by the operation and
// symbols that produced it, so repeated GetAttr/Call/Invoke against the same
// proxy variable and method skip re-running the syntax.Syntax formatter.
type scriptCacheKey struct {
	operation string
	varName   string
	extra     string
}

// scriptCache bounds the number of distinct generated scripts retained in
// memory, grounded on the teacher's lru.Cache[parsedSNI, resolvedSNI] use
// in go/network/frontend.go.
type scriptCache struct {
	cache *lru.Cache[scriptCacheKey, string]
}

func newScriptCache(size int) *scriptCache {
	c, err := lru.New[scriptCacheKey, string](size)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, which reaches
		// here when WithScriptCacheSize is given n <= 0.
		panic(err)
	}
	return &scriptCache{cache: c}
}

func (c *scriptCache) getOrAdd(operation, varName string, extra []string, build func() string) string {
	key := scriptCacheKey{operation: operation, varName: varName, extra: strings.Join(extra, ",")}
	if script, ok := c.cache.Get(key); ok {
		return script
	}
	script := build()
	c.cache.Add(key, script)
	return script
}
