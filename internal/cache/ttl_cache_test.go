package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheSetGetDelete(t *testing.T) {
	c := NewTTLCache[int](time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[string](20 * time.Millisecond)
	c.Set("k", "v")
	time.Sleep(40 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheDisabled(t *testing.T) {
	c := NewTTLCache[string](0)
	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "org|invoice", Key(" ORG ", "", "Invoice"))
}
