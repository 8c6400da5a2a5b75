package pagination

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"socialclient/pkg/querycache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remote serves a fixed collection of total items, size per page.
type remote struct {
	total int
	size  int
	calls atomic.Int32
	fail  error
	gate  chan struct{}
}

func (r *remote) fetch(ctx context.Context, page int) (Page[string], error) {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if r.fail != nil {
		return Page[string]{}, r.fail
	}
	var data []string
	for i := (page - 1) * r.size; i < page*r.size && i < r.total; i++ {
		data = append(data, strconv.Itoa(i))
	}
	return Page[string]{Data: data, Count: r.total}, nil
}

func ident(s string) string { return s }

func TestNextPage(t *testing.T) {
	for _, test := range []struct {
		name  string
		pages Pages[string]
		next  int
		ok    bool
	}{
		{"nothing fetched", Pages[string]{}, 1, true},
		{"empty collection", Of(Page[string]{Count: 0, Cursor: 1}), 0, false},
		{"more to come", Of(Page[string]{Count: 25, Cursor: 1}, Page[string]{Count: 25, Cursor: 2}), 3, true},
		{"partial last page", Of(Page[string]{Count: 25, Cursor: 1}, Page[string]{Count: 25, Cursor: 2}, Page[string]{Count: 25, Cursor: 3}), 0, false},
		{"exact multiple", Of(Page[string]{Count: 20, Cursor: 1}, Page[string]{Count: 20, Cursor: 2}), 0, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			next, ok := NextPage(test.pages, 10)
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.next, next)
		})
	}
}

func TestApply(t *testing.T) {
	first := Page[string]{Data: []string{"a", "b"}, Count: 4, Cursor: 1}

	pages, ok := Pages[string]{}.Apply(first)
	require.True(t, ok)

	again, ok := pages.Apply(first)
	require.True(t, ok)
	assert.Equal(t, 1, again.Len(), "reapplying a page replaces it")
	assert.Equal(t, []string{"a", "b"}, again.Items())

	_, ok = pages.Apply(Page[string]{Data: []string{"e"}, Count: 5, Cursor: 3})
	assert.False(t, ok, "a gap is rejected")

	pages, ok = pages.Apply(Page[string]{Data: []string{"c", "d"}, Count: 5, Cursor: 2})
	require.True(t, ok)
	assert.Equal(t, 2, pages.Cursor())
	assert.Equal(t, 5, pages.Count())

	refetched, ok := pages.Apply(Page[string]{Data: []string{"z", "a"}, Count: 6, Cursor: 1})
	require.True(t, ok)
	assert.Equal(t, 6, refetched.Count())
	assert.Equal(t, []string{"z", "a", "c", "d"}, refetched.Items())
}

func TestUniqueDropsShiftedRows(t *testing.T) {
	pages := Of(
		Page[string]{Data: []string{"a", "b"}, Count: 4, Cursor: 1},
		Page[string]{Data: []string{"b", "c"}, Count: 4, Cursor: 2},
	)
	assert.Equal(t, []string{"a", "b", "c"}, pages.Unique(ident))
	assert.Len(t, pages.Items(), 4)
}

func TestFilterKeepsCounts(t *testing.T) {
	pages := Of(Page[string]{Data: []string{"a", "b"}, Count: 2, Cursor: 1})
	filtered := pages.Filter(func(s string) bool { return s != "a" })
	assert.Equal(t, []string{"b"}, filtered.Items())
	assert.Equal(t, 2, filtered.Count())
	assert.Equal(t, []string{"a", "b"}, pages.Items(), "snapshots are immutable")
}

func TestLocateAndInsertAt(t *testing.T) {
	pages := Of(
		Page[string]{Data: []string{"a", "b"}, Count: 3, Cursor: 1},
		Page[string]{Data: []string{"c"}, Count: 3, Cursor: 2},
	)
	pos, item, ok := pages.Locate(func(s string) bool { return s == "c" })
	require.True(t, ok)
	assert.Equal(t, "c", item)
	assert.Equal(t, Position{Page: 1, Index: 0}, pos)

	removed := pages.Filter(func(s string) bool { return s != "c" })
	restored := removed.InsertAt(pos, item)
	assert.Equal(t, pages.Items(), restored.Items())

	_, _, ok = pages.Locate(func(s string) bool { return s == "x" })
	assert.False(t, ok)
}

func TestPrependAndAppend(t *testing.T) {
	pages := Of(Page[string]{Data: []string{"b"}, Count: 1, Cursor: 1})
	pages = pages.Prepend("a").Append("c")
	assert.Equal(t, []string{"a", "b", "c"}, pages.Items())
	assert.Equal(t, 3, pages.Count())

	fresh := Pages[string]{}.Prepend("x")
	assert.Equal(t, 1, fresh.Cursor())
	assert.Equal(t, 1, fresh.Count())
}

func TestCoordinatorWalksToEnd(t *testing.T) {
	r := &remote{total: 25, size: 10}
	c := New[string](querycache.New(), "feedPosts", 10, r.fetch, ident)

	items, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.False(t, c.End())

	for i := 0; i < 2; i++ {
		fetched, err := c.LoadNext(context.Background())
		require.NoError(t, err)
		assert.True(t, fetched)
	}
	assert.Len(t, c.Items(), 25)
	assert.True(t, c.End())

	fetched, err := c.LoadNext(context.Background())
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.EqualValues(t, 3, r.calls.Load())

	items, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 25)
	assert.EqualValues(t, 3, r.calls.Load(), "a cached sequence is not fetched again")
}

func TestCoordinatorEmptyCollection(t *testing.T) {
	r := &remote{total: 0, size: 10}
	c := New[string](querycache.New(), "conversations", 10, r.fetch, ident)

	items, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.True(t, c.End())

	fetched, err := c.LoadNext(context.Background())
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestCoordinatorFetchError(t *testing.T) {
	r := &remote{total: 25, size: 10}
	c := New[string](querycache.New(), "feedPosts", 10, r.fetch, ident)
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	r.fail = errors.New("offline")
	fetched, err := c.LoadNext(context.Background())
	assert.Error(t, err)
	assert.False(t, fetched)
	assert.Equal(t, 1, c.Snapshot().Cursor())

	r.fail = nil
	fetched, err = c.LoadNext(context.Background())
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, 2, c.Snapshot().Cursor())
}

func TestCoordinatorConcurrentLoadNext(t *testing.T) {
	r := &remote{total: 100, size: 10, gate: make(chan struct{})}
	c := New[string](querycache.New(), "feedPosts", 10, r.fetch, ident)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.LoadNext(context.Background())
		}()
	}
	close(r.gate)
	wg.Wait()

	pages := c.Snapshot()
	items := pages.Items()
	assert.Len(t, items, pages.Len()*10, "no page is applied twice")
	for i, item := range items {
		assert.Equal(t, strconv.Itoa(i), item)
	}
	assert.LessOrEqual(t, int(r.calls.Load()), 8)
}

func TestCoordinatorKeepsPatchesWhenMerging(t *testing.T) {
	r := &remote{total: 25, size: 10}
	cache := querycache.New()
	c := New[string](cache, "feedPosts", 10, r.fetch, ident)
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	querycache.Modify(cache, "feedPosts", func(p Pages[string]) Pages[string] {
		return p.Filter(func(s string) bool { return s != "0" })
	})
	_, err = c.LoadNext(context.Background())
	require.NoError(t, err)

	items := c.Items()
	assert.Len(t, items, 19)
	assert.NotContains(t, items, "0")
}

func TestRefresh(t *testing.T) {
	r := &remote{total: 25, size: 10}
	c := New[string](querycache.New(), "feedPosts", 10, r.fetch, ident)
	_, err := c.Load(context.Background())
	require.NoError(t, err)
	_, err = c.LoadNext(context.Background())
	require.NoError(t, err)

	r.total = 30
	items, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.Equal(t, 1, c.Snapshot().Cursor())
	assert.Equal(t, 30, c.Snapshot().Count())
}
