package repository

import (
	"context"
	"strings"
	"testing"

	"socialclient/pkg/backend"
	"socialclient/pkg/backend/memstore"
	"socialclient/pkg/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*Repository, *memstore.Store) {
	t.Helper()
	store := memstore.New(memstore.WithConstraints(Unique...))
	return New(store, memstore.NewObjects()), store
}

func newAccount(t *testing.T, r *Repository, username string) string {
	t.Helper()
	id := ids.UUID()
	require.NoError(t, r.Users.Create(context.Background(), NewAccount{ID: id, Username: username}))
	return id
}

func rows(t *testing.T, s *memstore.Store, table string) int {
	t.Helper()
	n, err := s.Count(context.Background(), backend.From(table))
	require.NoError(t, err)
	return n
}

func TestUsers(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")

	err := r.Users.Create(ctx, NewAccount{ID: ids.UUID(), Username: "ana"})
	assert.True(t, backend.IsUniqueViolation(err))

	_, err = r.Users.Get(ctx, "", "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	bio := " hello "
	require.NoError(t, r.Users.Update(ctx, ana, ProfileUpdate{Bio: &bio}))
	require.NoError(t, r.Users.SetAvatar(ctx, ana, "missing.png", "LKO2"))
	u, err := r.Users.Get(ctx, ana, ana)
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Bio)
	assert.Equal(t, "missing.png", u.AvatarURL, "paths that cannot be signed come back as is")
	assert.Equal(t, "LKO2", u.AvatarPlaceholder)
}

func TestFollows(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")
	bruno := newAccount(t, r, "bruno")
	carla := newAccount(t, r, "carla")

	require.NoError(t, r.Follows.Follow(ctx, ana, bruno))
	require.NoError(t, r.Follows.Follow(ctx, carla, bruno))
	require.NoError(t, r.Follows.Follow(ctx, ana, carla))
	assert.True(t, backend.IsUniqueViolation(r.Follows.Follow(ctx, ana, bruno)))
	assert.Error(t, r.Follows.Follow(ctx, ana, ana))

	u, err := r.Users.Get(ctx, ana, bruno)
	require.NoError(t, err)
	assert.True(t, u.IsFollowing)
	assert.EqualValues(t, 2, u.Stat.FollowerCount)
	assert.EqualValues(t, 0, u.Stat.FollowingCount)

	followers, err := r.Follows.Followers(ctx, ana, bruno)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	flags := map[string]bool{}
	for _, f := range followers {
		flags[f.Account.ID] = f.IsFollowing
	}
	assert.Equal(t, map[string]bool{ana: false, carla: true}, flags)

	require.NoError(t, r.Follows.Unfollow(ctx, ana, bruno))
	u, _ = r.Users.Get(ctx, ana, bruno)
	assert.False(t, u.IsFollowing)
	assert.EqualValues(t, 1, u.Stat.FollowerCount)
}

func TestPosts(t *testing.T) {
	r, store := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")
	bruno := newAccount(t, r, "bruno")

	album, err := r.Albums.Create(ctx, ana, "Azores")
	require.NoError(t, err)
	first, err := r.Posts.Create(ctx, NewPost{AccountID: ana, AlbumID: album.ID, Caption: "lagoon",
		Media: []NewMedia{{Path: "a.jpg"}, {Path: "b.jpg"}}})
	require.NoError(t, err)
	second, err := r.Posts.Create(ctx, NewPost{AccountID: bruno, Caption: "city"})
	require.NoError(t, err)
	assert.Equal(t, "ana", first.Account.Username)
	require.Len(t, first.Media, 2)
	assert.EqualValues(t, 1, first.Media[1].Position)

	require.NoError(t, r.Posts.Like(ctx, first.ID, bruno))
	assert.True(t, backend.IsUniqueViolation(r.Posts.Like(ctx, first.ID, bruno)))

	page, err := r.Posts.FeedPage(ctx, bruno, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Data, 2)
	assert.Equal(t, second.ID, page.Data[0].ID, "newest first")
	assert.EqualValues(t, 1, page.Data[1].LikesCount)
	assert.NotNil(t, page.Data[1].Like)

	page, _ = r.Posts.FeedPage(ctx, ana, 1, 10)
	assert.Nil(t, page.Data[1].Like, "likes are per viewer")

	media, err := r.Albums.Media(ctx, album.ID)
	require.NoError(t, err)
	assert.Len(t, media, 2)
	u, _ := r.Users.Get(ctx, ana, ana)
	assert.EqualValues(t, 1, u.Stat.TripCount)
	require.Len(t, u.Albums, 1)
	assert.EqualValues(t, 1, u.Albums[0].PostCount)

	top, err := r.Comments.Create(ctx, NewComment{AccountID: bruno, PostID: first.ID, Text: "wow"})
	require.NoError(t, err)
	require.NoError(t, r.Comments.Like(ctx, top.ID, ana))

	require.NoError(t, r.Posts.Delete(ctx, first.ID))
	_, err = r.Posts.Get(ctx, ana, first.ID)
	assert.ErrorIs(t, err, backend.ErrNotFound)
	for _, table := range []string{TablePostMedia, TablePostLike, TableComment, TableCommentLike} {
		assert.Zero(t, rows(t, store, table), table)
	}
	assert.Equal(t, 1, rows(t, store, TablePost))
}

func TestCommentThreads(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")
	bruno := newAccount(t, r, "bruno")
	post, err := r.Posts.Create(ctx, NewPost{AccountID: ana})
	require.NoError(t, err)

	top, err := r.Comments.Create(ctx, NewComment{AccountID: bruno, PostID: post.ID, Text: " great shot "})
	require.NoError(t, err)
	assert.Equal(t, "great shot", top.Text)
	assert.Empty(t, top.ReplyOriginID)
	assert.Nil(t, top.InReplyTo)

	reply, err := r.Comments.Create(ctx, NewComment{AccountID: ana, PostID: post.ID, Text: "thanks", InReplyTo: &top})
	require.NoError(t, err)
	assert.Equal(t, top.ID, reply.ReplyOriginID)
	require.NotNil(t, reply.InReplyTo)
	assert.Equal(t, "bruno", reply.InReplyTo.Account.Username)

	nested, err := r.Comments.Create(ctx, NewComment{AccountID: bruno, PostID: post.ID, Text: "anytime", InReplyTo: &reply})
	require.NoError(t, err)
	assert.Equal(t, top.ID, nested.ReplyOriginID)
	assert.Equal(t, reply.ID, nested.InReplyTo.ID)
	assert.Equal(t, "ana", nested.InReplyTo.Account.Username)

	page, err := r.Comments.Page(ctx, ana, post.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count, "replies are not top-level comments")
	require.Len(t, page.Data, 1)
	assert.EqualValues(t, 2, page.Data[0].RepliesCount)

	replies, err := r.Comments.Replies(ctx, ana, top.ID, 1, 3)
	require.NoError(t, err)
	require.Len(t, replies.Data, 2)
	assert.Equal(t, reply.ID, replies.Data[0].ID, "oldest first")

	_, err = r.Comments.Create(ctx, NewComment{AccountID: ana, PostID: post.ID, Text: strings.Repeat("x", MAX_COMMENT_LENGTH+1)})
	assert.ErrorIs(t, err, ErrCommentTooLong)

	require.NoError(t, r.Comments.Delete(ctx, top.ID))
	replies, err = r.Comments.Replies(ctx, ana, top.ID, 1, 3)
	require.NoError(t, err)
	assert.Len(t, replies.Data, 2, "replies outlive their origin")
}

func TestConversations(t *testing.T) {
	r, store := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")
	bruno := newAccount(t, r, "bruno")
	carla := newAccount(t, r, "carla")

	conv, err := r.Conversations.Create(ctx, ana, []string{bruno, carla, bruno, ana}, "")
	require.NoError(t, err)
	assert.Len(t, conv.Targets, 3)
	assert.Empty(t, conv.Messages)

	_, err = r.Conversations.Send(ctx, conv.ID, bruno, "first")
	require.NoError(t, err)
	last, err := r.Conversations.Send(ctx, conv.ID, carla, "second")
	require.NoError(t, err)

	page, err := r.Conversations.Page(ctx, ana, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Len(t, page.Data[0].Messages, 1, "lists carry the latest message only")
	assert.Equal(t, last.ID, page.Data[0].Messages[0].ID)
	assert.True(t, page.Data[0].Unread())

	require.NoError(t, r.Conversations.MarkRead(ctx, conv.ID, ana))
	full, err := r.Conversations.Get(ctx, ana, conv.ID)
	require.NoError(t, err)
	assert.Len(t, full.Messages, 2)
	assert.False(t, full.Unread())

	require.NoError(t, r.Conversations.Leave(ctx, conv.ID, ana))
	page, _ = r.Conversations.Page(ctx, ana, 1, 20)
	assert.Empty(t, page.Data)
	page, _ = r.Conversations.Page(ctx, bruno, 1, 20)
	assert.Len(t, page.Data, 1)

	require.NoError(t, r.Conversations.Leave(ctx, conv.ID, bruno))
	assert.Equal(t, 1, rows(t, store, TableConversation))
	require.NoError(t, r.Conversations.Leave(ctx, conv.ID, carla))
	assert.Zero(t, rows(t, store, TableConversation))
	assert.Zero(t, rows(t, store, TableConversationTarget))
	assert.Zero(t, rows(t, store, TableConversationMessage))
}

func TestLeaveRequiresActiveMember(t *testing.T) {
	r, store := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")
	bruno := newAccount(t, r, "bruno")
	mallory := newAccount(t, r, "mallory")

	conv, err := r.Conversations.Create(ctx, ana, []string{bruno}, "")
	require.NoError(t, err)
	_, err = r.Conversations.Send(ctx, conv.ID, bruno, "hi")
	require.NoError(t, err)
	require.NoError(t, r.Conversations.Leave(ctx, conv.ID, ana))

	assert.ErrorIs(t, r.Conversations.Leave(ctx, conv.ID, ana), backend.ErrNotFound, "leaving twice")
	assert.ErrorIs(t, r.Conversations.Leave(ctx, conv.ID, mallory), backend.ErrNotFound, "never a member")

	assert.Equal(t, 1, rows(t, store, TableConversation))
	assert.Equal(t, 1, rows(t, store, TableConversationMessage))
	page, err := r.Conversations.Page(ctx, bruno, 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestWatchFiltersOtherConversations(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()
	ana := newAccount(t, r, "ana")
	bruno := newAccount(t, r, "bruno")
	watched, err := r.Conversations.Create(ctx, ana, []string{bruno}, "")
	require.NoError(t, err)
	other, err := r.Conversations.Create(ctx, bruno, []string{ana}, "")
	require.NoError(t, err)

	var seen []backend.Change
	unsubscribe, err := r.Conversations.Watch(ctx, watched.ID, func(c backend.Change) { seen = append(seen, c) })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = r.Conversations.Send(ctx, other.ID, bruno, "elsewhere")
	require.NoError(t, err)
	assert.Empty(t, seen)

	msg, err := r.Conversations.Send(ctx, watched.ID, bruno, "here")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, msg.ID, seen[0].Row["id"])

	require.NoError(t, r.Conversations.DeleteMessage(ctx, msg.ID))
	require.Len(t, seen, 2)
	assert.Equal(t, backend.Deleted, seen[1].Kind)
}
