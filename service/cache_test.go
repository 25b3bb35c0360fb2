package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScriptCacheMemoizesByKey(t *testing.T) {
	c := newScriptCache(8)
	calls := 0
	build := func() string {
		calls++
		return "result = obj.attr()"
	}

	first := c.getOrAdd("getattr", "obj", []string{"attr"}, build)
	second := c.getOrAdd("getattr", "obj", []string{"attr"}, build)

	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestScriptCacheDistinguishesKeys(t *testing.T) {
	c := newScriptCache(8)
	a := c.getOrAdd("getattr", "obj", []string{"x"}, func() string { return "a" })
	b := c.getOrAdd("getattr", "obj", []string{"y"}, func() string { return "b" })
	require.NotEqual(t, a, b)
}
