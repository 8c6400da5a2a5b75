// Package pagination drives forward-only, offset-based page sequences
// (feed, comments, replies, conversations) and exposes them as one growing
// list kept in the query cache.
package pagination

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"socialclient/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

const (
	POSTS_PER_PAGE         = 10
	COMMENTS_PER_PAGE      = 20
	REPLIES_PER_PAGE       = 3
	CONVERSATIONS_PER_PAGE = 20
)

// FetchFunc returns the given 1-based page of a remote collection.
type FetchFunc[T any] func(ctx context.Context, page int) (Page[T], error)

// Cache is where a coordinator keeps its snapshot, shared with the cache
// patches of optimistic mutations.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Update(key string, fn func(any) any) bool
}

// NextPage returns the page to request after the snapshot, or false once
// the sequence is exhausted: the server reported nothing at all, or the
// end offset of the last page fetched reached the reported total.
func NextPage[T any](p Pages[T], size int) (int, bool) {
	if p.Len() == 0 {
		return 1, true
	}
	count, cursor := p.Count(), p.Cursor()
	if count == 0 || count <= cursor*size {
		return 0, false
	}
	return cursor + 1, true
}

type Coordinator[T any] struct {
	key   string
	size  int
	fetch FetchFunc[T]
	ident func(T) string
	cache Cache
	group singleflight.Group
	mu    sync.Mutex
	label metrics.SequenceLabel
}

// New returns a coordinator for the sequence stored under key. ident keys
// items for de-duplication across pages.
func New[T any](cache Cache, key string, size int, fetch FetchFunc[T], ident func(T) string) *Coordinator[T] {
	name, _, _ := strings.Cut(key, "/")
	return &Coordinator[T]{
		key:   key,
		size:  size,
		fetch: fetch,
		ident: ident,
		cache: cache,
		label: metrics.SequenceLabel{Sequence: name},
	}
}

func (c *Coordinator[T]) Key() string { return c.key }

func (c *Coordinator[T]) Size() int { return c.size }

// Snapshot returns the pages currently cached for the sequence.
func (c *Coordinator[T]) Snapshot() Pages[T] {
	v, ok := c.cache.Get(c.key)
	if !ok {
		return Pages[T]{}
	}
	pages, _ := v.(Pages[T])
	return pages
}

// Items returns the accumulated items without duplicates.
func (c *Coordinator[T]) Items() []T {
	return c.Snapshot().Unique(c.ident)
}

func (c *Coordinator[T]) Loaded() bool {
	return c.Snapshot().Len() > 0
}

func (c *Coordinator[T]) HasNext() bool {
	_, ok := NextPage(c.Snapshot(), c.size)
	return ok
}

// End reports the explicit end-of-content state: at least one page was
// fetched and no further page will be requested.
func (c *Coordinator[T]) End() bool {
	return c.Loaded() && !c.HasNext()
}

// Load fetches the first page unless the sequence is already cached.
func (c *Coordinator[T]) Load(ctx context.Context) ([]T, error) {
	if c.Loaded() {
		return c.Items(), nil
	}
	_, err := c.LoadNext(ctx)
	return c.Items(), err
}

// LoadNext fetches the page after the cursor. Concurrent calls asking for
// the same page share one fetch, and a page is never applied twice.
// It reports false once there is nothing left to fetch.
func (c *Coordinator[T]) LoadNext(ctx context.Context) (bool, error) {
	next, ok := NextPage(c.Snapshot(), c.size)
	if !ok {
		return false, nil
	}
	_, err, _ := c.group.Do(strconv.Itoa(next), func() (interface{}, error) {
		return nil, c.fetchAndApply(ctx, next)
	})
	if err != nil {
		return false, err
	}
	if !c.HasNext() {
		metrics.EndOfContent.Get(c.label).Inc()
	}
	return true, nil
}

// Refresh drops the accumulated pages and fetches the first page again.
func (c *Coordinator[T]) Refresh(ctx context.Context) ([]T, error) {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		page, err := c.fetch(ctx, 1)
		if err != nil {
			return nil, err
		}
		page.Cursor = 1
		metrics.PagesFetched.Get(c.label).Inc()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cache.Set(c.key, Of(page))
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return c.Items(), nil
}

func (c *Coordinator[T]) fetchAndApply(ctx context.Context, next int) error {
	page, err := c.fetch(ctx, next)
	if err != nil {
		return err
	}
	page.Cursor = next
	metrics.PagesFetched.Get(c.label).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	// merge into whatever the cache holds now, patches included
	found := c.cache.Update(c.key, func(v any) any {
		pages, _ := v.(Pages[T])
		updated, _ := pages.Apply(page)
		return updated
	})
	if !found && next == 1 {
		c.cache.Set(c.key, Of(page))
	}
	return nil
}
