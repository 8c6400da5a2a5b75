package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"
	"socialclient/pkg/model"
	"socialclient/pkg/pagination"
)

type Posts struct {
	store   backend.Store
	users   *Users
	objects backend.ObjectStore
	now     func() time.Time
}

type NewPost struct {
	AccountID string
	AlbumID   string
	Caption   string
	Location  string
	Media     []NewMedia
}

type NewMedia struct {
	Path        string
	Placeholder string
}

// FeedPage returns one page of the feed, newest first, as seen by viewerID.
func (p *Posts) FeedPage(ctx context.Context, viewerID string, page int, size int) (pagination.Page[model.Post], error) {
	q := backend.From(TablePost).OrderBy(backend.Desc("created_at"), backend.Desc("id"))
	rows, total, err := p.store.FetchPage(ctx, q, page, size)
	if err != nil {
		return pagination.Page[model.Post]{}, backend.Label("getPosts", err)
	}
	posts, err := p.hydrate(ctx, viewerID, rows)
	if err != nil {
		return pagination.Page[model.Post]{}, backend.Label("getPosts", err)
	}
	return pagination.Page[model.Post]{Data: posts, Count: total, Cursor: page}, nil
}

func (p *Posts) Get(ctx context.Context, viewerID string, id string) (model.Post, error) {
	if err := required(id); err != nil {
		return model.Post{}, backend.Label("getPost", err)
	}
	rows, err := p.store.Select(ctx, backend.From(TablePost).Filter(backend.Eq("id", id)))
	if err != nil {
		return model.Post{}, backend.Label("getPost", err)
	}
	if len(rows) == 0 {
		return model.Post{}, backend.Label("getPost", fmt.Errorf("post %s: %w", id, backend.ErrNotFound))
	}
	posts, err := p.hydrate(ctx, viewerID, rows)
	if err != nil {
		return model.Post{}, backend.Label("getPost", err)
	}
	return posts[0], nil
}

func (p *Posts) Create(ctx context.Context, np NewPost) (model.Post, error) {
	if err := required(np.AccountID); err != nil {
		return model.Post{}, backend.Label("createPost", err)
	}
	id := ids.UUID()
	row := backend.Row{
		"id":         id,
		"account_id": np.AccountID,
		"album_id":   np.AlbumID,
		"caption":    strings.TrimSpace(np.Caption),
		"location":   strings.TrimSpace(np.Location),
		"created_at": p.now(),
	}
	if err := p.store.Insert(ctx, TablePost, row); err != nil {
		return model.Post{}, backend.Label("createPost", err)
	}
	if len(np.Media) > 0 {
		media := make([]backend.Row, 0, len(np.Media))
		for i, m := range np.Media {
			media = append(media, backend.Row{
				"id":          ids.UUID(),
				"post_id":     id,
				"path":        m.Path,
				"placeholder": m.Placeholder,
				"position":    int64(i),
			})
		}
		if err := p.store.Insert(ctx, TablePostMedia, media...); err != nil {
			return model.Post{}, backend.Label("createPostMedia", err)
		}
	}
	return p.Get(ctx, np.AccountID, id)
}

// Delete removes a post along with its media, likes and comments.
func (p *Posts) Delete(ctx context.Context, id string) error {
	if err := required(id); err != nil {
		return backend.Label("deletePost", err)
	}
	comments, err := p.store.Select(ctx, backend.From(TableComment).Filter(backend.Eq("post_id", id)))
	if err != nil {
		return backend.Label("deletePost", err)
	}
	if commentIDs := column(comments, "id"); len(commentIDs) > 0 {
		if err := p.store.Delete(ctx, TableCommentLike, backend.In("comment_id", commentIDs)); err != nil {
			return backend.Label("deletePost", err)
		}
	}
	for _, table := range []string{TableComment, TablePostLike, TablePostMedia} {
		if err := p.store.Delete(ctx, table, backend.Eq("post_id", id)); err != nil {
			return backend.Label("deletePost", err)
		}
	}
	return backend.Label("deletePost", p.store.Delete(ctx, TablePost, backend.Eq("id", id)))
}

func (p *Posts) Like(ctx context.Context, postID string, accountID string) error {
	if err := required(postID, accountID); err != nil {
		return backend.Label("likePost", err)
	}
	row := backend.Row{
		"id":         ids.UUID(),
		"post_id":    postID,
		"account_id": accountID,
		"created_at": p.now(),
	}
	return backend.Label("likePost", p.store.Insert(ctx, TablePostLike, row))
}

func (p *Posts) Unlike(ctx context.Context, postID string, accountID string) error {
	if err := required(postID, accountID); err != nil {
		return backend.Label("unlikePost", err)
	}
	return backend.Label("unlikePost", p.store.Delete(ctx, TablePostLike,
		backend.Eq("post_id", postID), backend.Eq("account_id", accountID)))
}

func (p *Posts) hydrate(ctx context.Context, viewerID string, rows []backend.Row) ([]model.Post, error) {
	posts, err := decodeAll[model.Post](rows)
	if err != nil {
		return nil, err
	}
	postIDs := column(rows, "id")
	summaries, err := p.users.Summaries(ctx, column(rows, "account_id"))
	if err != nil {
		return nil, err
	}
	media, err := mediaOf(ctx, p.store, p.objects, postIDs)
	if err != nil {
		return nil, err
	}
	liked := make(map[string]model.PostLike)
	if viewerID != "" && len(postIDs) > 0 {
		likeRows, err := p.store.Select(ctx, backend.From(TablePostLike).
			Filter(backend.In("post_id", postIDs), backend.Eq("account_id", viewerID)))
		if err != nil {
			return nil, err
		}
		likes, err := decodeAll[model.PostLike](likeRows)
		if err != nil {
			return nil, err
		}
		for _, l := range likes {
			liked[l.PostID] = l
		}
	}
	for i := range posts {
		post := &posts[i]
		post.Account = summaries[post.AccountID]
		post.Media = media[post.ID]
		if post.LikesCount, err = count(ctx, p.store, TablePostLike, backend.Eq("post_id", post.ID)); err != nil {
			return nil, err
		}
		if l, ok := liked[post.ID]; ok {
			like := l
			post.Like = &like
		}
	}
	return posts, nil
}
