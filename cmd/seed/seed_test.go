package main

import (
	"context"
	"log/slog"
	"testing"

	"socialclient/pkg/auth"
	"socialclient/pkg/backend"
	"socialclient/pkg/backend/memstore"
	"socialclient/pkg/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.WithConstraints(repository.Unique...))
	repo := repository.New(store, nil)
	a := auth.New(repo, nil, "seed")
	s := &seeder{
		repo:   repo,
		auth:   a,
		store:  storeProperties{Password: "pw", EmailDomain: "example.com"},
		counts: countProperties{Users: 4, PostsPerUser: 2, CommentsPerPost: 3, FollowsPerUser: 2},
		logger: slog.Default(),
	}
	st, err := s.run(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats{Users: 4, Follows: 8, Posts: 8, Likes: 8, Comments: 24}, st)

	n, err := store.Count(ctx, backend.From(repository.TableComment).Filter(backend.Eq("reply_origin_comment_id", "")))
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	_, err = a.Login(ctx, "user_2@example.com", "pw")
	assert.NoError(t, err)

	// seeding the same usernames again collides
	_, err = s.run(ctx)
	assert.Error(t, err)
}

func TestFollowsCappedByUsers(t *testing.T) {
	repo := repository.New(memstore.New(memstore.WithConstraints(repository.Unique...)), nil)
	s := &seeder{
		repo:   repo,
		auth:   auth.New(repo, nil, "seed"),
		store:  storeProperties{Password: "pw", EmailDomain: "example.com"},
		counts: countProperties{Users: 2, FollowsPerUser: 5},
		logger: slog.Default(),
	}
	st, err := s.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Follows)
	assert.Zero(t, st.Posts)
}

func TestCheckDriver(t *testing.T) {
	assert.ErrorIs(t, checkDriver("memory", false), errEphemeralStore)
	assert.ErrorIs(t, checkDriver("", false), errEphemeralStore)
	assert.NoError(t, checkDriver("memory", true))
	assert.NoError(t, checkDriver("mongodb", false))
	assert.NoError(t, checkDriver("postgres", false))
}
