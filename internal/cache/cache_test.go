package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javelinlabs/mcp-validation-gateway/internal/cache"
	"github.com/javelinlabs/mcp-validation-gateway/internal/guard"
)

func verdict(allowed bool) guard.Verdict {
	return guard.Verdict{Allowed: allowed, ProducedAt: time.Now()}
}

func TestGetSet_Hit(t *testing.T) {
	c := cache.New(10, time.Minute)
	c.Set("k1", verdict(true))

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.True(t, v.Allowed)
}

func TestGet_Miss(t *testing.T) {
	c := cache.New(10, time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := cache.New(10, 20*time.Millisecond)
	c.Set("k1", verdict(true))

	_, ok := c.Get("k1")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("k1")
	assert.False(t, ok, "entry should have expired")
}

func TestLRUEviction(t *testing.T) {
	c := cache.New(2, time.Minute)
	c.Set("a", verdict(true))
	c.Set("b", verdict(true))
	// touch "a" so "b" becomes least-recently-used
	c.Get("a")
	c.Set("c", verdict(true))

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK)
	assert.False(t, bOK, "b should have been evicted as LRU")
	assert.True(t, cOK)
	assert.Equal(t, 2, c.Len())
}

func TestClear(t *testing.T) {
	c := cache.New(10, time.Minute)
	c.Set("a", verdict(true))
	c.Clear()
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
