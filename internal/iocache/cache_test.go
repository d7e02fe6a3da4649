package iocache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(100, nil)
	for i := 0; i < 10; i++ {
		c.Add(fmt.Sprintf("k%d", i), i, 20)
	}

	assert.LessOrEqual(t, c.Size(), int64(100))
	keys := c.Keys()
	assert.Len(t, keys, 5)

	want := map[string]bool{"k5": true, "k6": true, "k7": true, "k8": true, "k9": true}
	for _, k := range keys {
		assert.True(t, want[k], "unexpected surviving key %q", k)
	}
	for k := range want {
		assert.True(t, c.Contains(k))
	}
	for _, evicted := range []string{"k0", "k1", "k2", "k3", "k4"} {
		assert.False(t, c.Contains(evicted))
	}
}

func TestCacheGetBumpsRecency(t *testing.T) {
	c := New(100, nil)
	c.Add("a", 1, 20)
	c.Add("b", 2, 20)
	c.Add("c", 3, 20)
	c.Add("d", 4, 20)
	c.Add("e", 5, 20)

	_, ok := c.Get("a")
	require.True(t, ok)

	// Adding one more should evict the new least-recent ("b"), not "a".
	c.Add("f", 6, 20)

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
}

func TestCacheAddWithinBudgetNeverEvicts(t *testing.T) {
	c := New(100, nil)
	for i := 0; i < 5; i++ {
		c.Add(fmt.Sprintf("k%d", i), i, 20)
	}
	assert.Equal(t, int64(100), c.Size())
	assert.Equal(t, 5, c.Count())
	for i := 0; i < 5; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
}

func TestCacheOverwriteReplacesSizeNotEntry(t *testing.T) {
	c := New(100, nil)
	c.Add("a", "v1", 10)
	c.Add("a", "v2", 30)

	assert.Equal(t, int64(30), c.Size())
	assert.Equal(t, 1, c.Count())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestCachePinExemptsFromEviction(t *testing.T) {
	c := New(40, nil)
	c.Add("pinned", "p", 20)
	c.Pin("pinned")
	c.Add("a", 1, 20)
	c.Add("b", 2, 20) // would normally evict "pinned" next as LRU

	assert.True(t, c.Contains("pinned"))
}

func TestCacheSetMaxEvictsImmediately(t *testing.T) {
	c := New(100, nil)
	for i := 0; i < 5; i++ {
		c.Add(fmt.Sprintf("k%d", i), i, 20)
	}
	c.SetMax(40)
	assert.LessOrEqual(t, c.Size(), int64(40))
	assert.LessOrEqual(t, c.Count(), 2)
}

func TestCacheClear(t *testing.T) {
	c := New(100, nil)
	c.Add("a", 1, 20)
	c.Clear()
	assert.Equal(t, int64(0), c.Size())
	assert.Equal(t, 0, c.Count())
	assert.Empty(t, c.Keys())
}
