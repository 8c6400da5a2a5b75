package querycache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestSetAndLookup(t *testing.T) {
	c := New()
	c.Set("post/1", "sunset")

	v, ok := Lookup[string](c, "post/1")
	require.True(t, ok)
	assert.Equal(t, "sunset", v)

	_, ok = Lookup[int](c, "post/1")
	assert.False(t, ok, "wrong type")

	_, ok = c.Get("post/2")
	assert.False(t, ok)
}

func TestEntriesExpire(t *testing.T) {
	clk := newClock()
	c := New(WithTTL(time.Minute), WithClock(clk.Now))
	c.Set("post/1", 1)

	clk.Advance(59 * time.Second)
	_, ok := c.Get("post/1")
	assert.True(t, ok)

	clk.Advance(2 * time.Second)
	_, ok = c.Get("post/1")
	assert.False(t, ok)
	assert.Empty(t, c.Keys("post/"))
}

func TestUpdateKeepsAge(t *testing.T) {
	clk := newClock()
	c := New(WithTTL(time.Minute), WithClock(clk.Now))
	c.Set("feedPosts", 1)

	clk.Advance(40 * time.Second)
	assert.True(t, Modify(c, "feedPosts", func(n int) int { return n + 1 }))
	v, _ := Lookup[int](c, "feedPosts")
	assert.Equal(t, 2, v)

	clk.Advance(30 * time.Second)
	_, ok := c.Get("feedPosts")
	assert.False(t, ok, "a patch does not make stale data fresh")

	assert.False(t, c.Update("feedPosts", func(v any) any { return v }))
	_, ok = c.Get("feedPosts")
	assert.False(t, ok, "missing keys are not created")
}

func TestEviction(t *testing.T) {
	c := New(WithMaxEntries(2))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used goes first")
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"a", "c"}, c.Keys(""))
}

func TestPrefixes(t *testing.T) {
	c := New()
	c.Set("comments/1", []string{"x"})
	c.Set("comments/2", []string{"y"})
	c.Set("replies/1", []string{"z"})
	c.Set("comments/3", 7)

	n := ModifyPrefix(c, "comments/", func(key string, v []string) []string {
		return append(v, key)
	})
	assert.Equal(t, 2, n, "values of another type are skipped")
	v, _ := Lookup[[]string](c, "comments/2")
	assert.Equal(t, []string{"y", "comments/2"}, v)

	c.RemovePrefix("comments/")
	assert.Empty(t, c.Keys("comments/"))
	assert.Equal(t, []string{"replies/1"}, c.Keys(""))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
