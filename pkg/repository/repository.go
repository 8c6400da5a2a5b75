// Package repository maps the client's entities onto backend tables. Each
// entity gets a typed repository; aggregates such as like counts are
// computed with count queries at read time.
package repository

import (
	"context"
	"errors"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	TableAccount             = "account"
	TableCredential          = "credential"
	TableFollow              = "follow"
	TableAlbum               = "album"
	TablePost                = "post"
	TablePostMedia           = "post_media"
	TablePostLike            = "post_like"
	TableComment             = "comment"
	TableCommentLike         = "comment_like"
	TableConversation        = "conversation"
	TableConversationTarget  = "conversation_target"
	TableConversationMessage = "conversation_message"
)

// Unique lists the unique constraints every store driver enforces.
var Unique = []backend.Constraint{
	{Table: TableAccount, Fields: []string{"username"}},
	{Table: TableCredential, Fields: []string{"email"}},
	{Table: TableFollow, Fields: []string{"follower_id", "following_id"}},
	{Table: TablePostLike, Fields: []string{"post_id", "account_id"}},
	{Table: TableCommentLike, Fields: []string{"comment_id", "account_id"}},
}

const (
	BucketAvatars = "avatars"
	BucketPosts   = "posts"
)

var ErrUserNotFound = errors.New("user not found")

// Repository bundles the per-entity repositories over one store.
type Repository struct {
	Users         *Users
	Follows       *Follows
	Albums        *Albums
	Posts         *Posts
	Comments      *Comments
	Conversations *Conversations
	store         backend.Store
}

func New(store backend.Store, objects backend.ObjectStore) *Repository {
	gen := ids.NewGenerator()
	now := time.Now
	users := &Users{store: store, objects: objects, now: now}
	return &Repository{
		Users:         users,
		Follows:       &Follows{store: store, users: users, now: now},
		Albums:        &Albums{store: store, objects: objects, now: now},
		Posts:         &Posts{store: store, users: users, objects: objects, now: now},
		Comments:      &Comments{store: store, users: users, ids: gen, now: now},
		Conversations: &Conversations{store: store, users: users, ids: gen, now: now},
		store:         store,
	}
}

func (r *Repository) Store() backend.Store { return r.store }

// decode converts a row into a struct through its bson tags.
func decode[T any](row backend.Row) (T, error) {
	var out T
	raw, err := bson.Marshal(bson.M(row))
	if err != nil {
		return out, err
	}
	err = bson.Unmarshal(raw, &out)
	return out, err
}

func decodeAll[T any](rows []backend.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := decode[T](row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func column(rows []backend.Row, field string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		v, ok := row[field].(string)
		if !ok || v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func required(values ...string) error {
	for _, v := range values {
		if v == "" {
			return backend.ErrMissingIdentifier
		}
	}
	return nil
}

func count(ctx context.Context, store backend.Store, table string, where ...backend.Match) (int64, error) {
	n, err := store.Count(ctx, backend.From(table).Filter(where...))
	return int64(n), err
}
