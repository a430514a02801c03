package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheHitAndMiss(t *testing.T) {
	c := New[string, string](time.Minute)

	_, ok := c.Get("app")
	assert.False(t, ok)

	c.Set("app", "secret")
	v, ok := c.Get("app")
	assert.True(t, ok)
	assert.Equal(t, "secret", v)

	c.Set("app", "rotated")
	v, _ = c.Get("app")
	assert.Equal(t, "rotated", v)
}

func TestCacheExpiry(t *testing.T) {
	c := New[string, string](time.Minute)
	base := time.Unix(1700000000, 0)
	c.now = func() time.Time { return base }
	c.Set("app", "secret")

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	_, ok := c.Get("app")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	_, ok = c.Get("app")
	assert.False(t, ok)

	// the stale read evicted the entry for good
	c.now = func() time.Time { return base }
	_, ok = c.Get("app")
	assert.False(t, ok)
}
