package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialclient/pkg/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"ana", "Bruno", "carla", "duarte", "eva"} {
		require.NoError(t, s.Insert(context.Background(), "account", backend.Row{
			"id":         name,
			"username":   name,
			"created_at": base.Add(time.Duration(i) * time.Hour),
			"deleted_at": (*time.Time)(nil),
		}))
	}
}

func TestFetchPage(t *testing.T) {
	s := New()
	seed(t, s)
	q := backend.From("account").OrderBy(backend.Desc("created_at"))

	rows, count, err := s.FetchPage(context.Background(), q, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.Len(t, rows, 2)
	assert.Equal(t, "eva", rows[0]["id"])

	rows, _, err = s.FetchPage(context.Background(), q, 3, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana", rows[0]["id"])

	rows, count, err = s.FetchPage(context.Background(), q, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 5, count)

	_, _, err = s.FetchPage(context.Background(), q, 0, 2)
	assert.Error(t, err)
}

func TestMatching(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Update(ctx, "account", backend.Row{"deleted_at": &now}, backend.Eq("id", "carla")))

	n, err := s.Count(ctx, backend.From("account").Filter(backend.IsNull("deleted_at")))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rows, err := s.Select(ctx, backend.From("account").Filter(backend.In("id", []string{"ana", "eva", "zoe"})))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.Select(ctx, backend.From("account").
		Or(backend.ILike("username", "b%"), backend.ILike("username", "%RT%")).
		OrderBy(backend.Asc("username")))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bruno", rows[0]["id"])
	assert.Equal(t, "duarte", rows[1]["id"])
}

func TestRowsAreCopies(t *testing.T) {
	s := New()
	seed(t, s)
	rows, err := s.Select(context.Background(), backend.From("account").Filter(backend.Eq("id", "ana")))
	require.NoError(t, err)
	rows[0]["username"] = "changed"

	rows, _ = s.Select(context.Background(), backend.From("account").Filter(backend.Eq("id", "ana")))
	assert.Equal(t, "ana", rows[0]["username"])
}

func TestUniqueConstraint(t *testing.T) {
	s := New(WithConstraints(backend.Constraint{Table: "post_like", Fields: []string{"post_id", "account_id"}}))
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "post_like", backend.Row{"post_id": "p1", "account_id": "a1"}))
	require.NoError(t, s.Insert(ctx, "post_like", backend.Row{"post_id": "p1", "account_id": "a2"}))

	err := s.Insert(ctx, "post_like", backend.Row{"post_id": "p1", "account_id": "a1"})
	require.Error(t, err)
	assert.True(t, backend.IsUniqueViolation(err))
	assert.Contains(t, err.Error(), `"post_like_post_id_account_id_key"`)

	err = s.Insert(ctx, "post_like",
		backend.Row{"post_id": "p2", "account_id": "a1"},
		backend.Row{"post_id": "p2", "account_id": "a1"})
	assert.True(t, backend.IsUniqueViolation(err))
	n, _ := s.Count(ctx, backend.From("post_like"))
	assert.Equal(t, 2, n, "a rejected batch inserts nothing")
}

func TestDelete(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, "account", backend.In("id", []string{"ana", "eva"})))
	n, _ := s.Count(ctx, backend.From("account"))
	assert.Equal(t, 3, n)
}

func TestFailures(t *testing.T) {
	s := New(WithFailures(func(op string, table string) error {
		if op == "insert" && table == "comment" {
			return errors.New("offline")
		}
		return nil
	}))
	ctx := context.Background()
	err := s.Insert(ctx, "comment", backend.Row{"id": "1"})
	require.Error(t, err)
	var remote *backend.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "offline", remote.Message)
	require.NoError(t, s.Insert(ctx, "post", backend.Row{"id": "1"}))

	s.SetFailures(nil)
	assert.NoError(t, s.Insert(ctx, "comment", backend.Row{"id": "1"}))
}

func TestSubscribe(t *testing.T) {
	s := New()
	ctx := context.Background()
	var changes []backend.Change
	unsubscribe, err := s.Subscribe(ctx, "conversation_message", func(c backend.Change) {
		changes = append(changes, c)
	})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, "conversation_message", backend.Row{"id": "m1", "text": "hi"}))
	require.NoError(t, s.Insert(ctx, "post", backend.Row{"id": "p1"}))
	require.NoError(t, s.Update(ctx, "conversation_message", backend.Row{"text": "hey"}, backend.Eq("id", "m1")))
	require.NoError(t, s.Delete(ctx, "conversation_message", backend.Eq("id", "m1")))

	require.Len(t, changes, 3)
	assert.Equal(t, backend.Inserted, changes[0].Kind)
	assert.Equal(t, backend.Updated, changes[1].Kind)
	assert.Equal(t, "hey", changes[1].Row["text"])
	assert.Equal(t, backend.Deleted, changes[2].Kind)

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Insert(ctx, "conversation_message", backend.Row{"id": "m2"}))
	assert.Len(t, changes, 3)
}

func TestObjects(t *testing.T) {
	o := NewObjects()
	ctx := context.Background()
	_, err := o.URL(ctx, "avatars", "a.png")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, o.Upload(ctx, "avatars", "a.png", []byte("png"), "image/png"))
	url, err := o.URL(ctx, "avatars", "a.png")
	require.NoError(t, err)
	assert.Equal(t, "memory://avatars/a.png", url)

	data, contentType, ok := o.Get("avatars", "a.png")
	require.True(t, ok)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, "image/png", contentType)

	assert.ErrorIs(t, o.Upload(ctx, "avatars", "", nil, ""), backend.ErrMissingIdentifier)
}
