package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"socialclient/pkg/backend"
	"socialclient/pkg/backend/memstore"
	"socialclient/pkg/repository"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu    sync.Mutex
	items map[string]*memcache.Item
	hits  int
}

func (c *fakeCache) Get(key string) (*memcache.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, memcache.ErrCacheMiss
	}
	c.hits++
	return item, nil
}

func (c *fakeCache) Set(item *memcache.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.Key] = item
	return nil
}

func newAuthenticator(t *testing.T) (*Authenticator, *fakeCache) {
	t.Helper()
	store := memstore.New(memstore.WithConstraints(repository.Unique...))
	cache := &fakeCache{items: map[string]*memcache.Item{}}
	return New(repository.New(store, memstore.NewObjects()), cache, "test-secret"), cache
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a, cache := newAuthenticator(t)

	id, err := a.Register(ctx, Registration{Email: "Ana@Example.com ", Password: "secret1", Username: "ana"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	token, err := a.Login(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)

	viewer, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, viewer)

	// second login is served from the credential cache
	again, err := a.Login(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.NotEqual(t, token, again, "every login issues a distinct token")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthenticator(t)
	_, err := a.Register(ctx, Registration{Email: "bo@example.com", Password: "right", Username: "bo"})
	require.NoError(t, err)

	_, err = a.Login(ctx, "bo@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Login(ctx, "nobody@example.com", "right")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthenticator(t)
	_, err := a.Register(ctx, Registration{Email: "cy@example.com", Password: "pw", Username: "cy"})
	require.NoError(t, err)

	_, err = a.Register(ctx, Registration{Email: "cy@example.com", Password: "pw", Username: "cy2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User already registered")
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthenticator(t)
	_, err := a.Register(ctx, Registration{Email: "d1@example.com", Password: "pw", Username: "dee"})
	require.NoError(t, err)

	_, err = a.Register(ctx, Registration{Email: "d2@example.com", Password: "pw", Username: "dee"})
	require.Error(t, err)
	assert.True(t, backend.IsUniqueViolation(err))
	assert.True(t, strings.Contains(err.Error(), "username"))

	// the email of the failed registration stays available
	_, err = a.Register(ctx, Registration{Email: "d2@example.com", Password: "pw", Username: "dee2"})
	assert.NoError(t, err)
}

func TestRegisterRequiresFields(t *testing.T) {
	a, _ := newAuthenticator(t)
	_, err := a.Register(context.Background(), Registration{Email: "e@example.com"})
	assert.True(t, errors.Is(err, backend.ErrMissingIdentifier))
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthenticator(t)
	_, err := a.Register(ctx, Registration{Email: "f@example.com", Password: "pw", Username: "f"})
	require.NoError(t, err)
	token, err := a.Login(ctx, "f@example.com", "pw")
	require.NoError(t, err)

	other := New(repository.New(memstore.New(), nil), nil, "another-secret")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
