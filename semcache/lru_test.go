package semcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRU(2, time.Minute)
	c.Set("a", Entry{Text: "a"})
	c.Set("b", Entry{Text: "b"})
	c.Get("a")
	c.Set("c", Entry{Text: "c"})

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_ExpiresOnTTL(t *testing.T) {
	c := newLRU(10, 5*time.Millisecond)
	c.Set("a", Entry{Text: "a"})
	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
