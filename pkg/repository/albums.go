package repository

import (
	"context"
	"strings"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"
	"socialclient/pkg/model"
)

type Albums struct {
	store   backend.Store
	objects backend.ObjectStore
	now     func() time.Time
}

func (a *Albums) Create(ctx context.Context, accountID string, name string) (model.Album, error) {
	name = strings.TrimSpace(name)
	if err := required(accountID, name); err != nil {
		return model.Album{}, backend.Label("createAlbum", err)
	}
	album := model.Album{
		ID:        ids.UUID(),
		AccountID: accountID,
		Name:      name,
		CreatedAt: a.now(),
	}
	row := backend.Row{
		"id":         album.ID,
		"account_id": album.AccountID,
		"name":       album.Name,
		"created_at": album.CreatedAt,
	}
	if err := a.store.Insert(ctx, TableAlbum, row); err != nil {
		return model.Album{}, backend.Label("createAlbum", err)
	}
	return album, nil
}

// Media lists the media of every post in an album, newest post first.
func (a *Albums) Media(ctx context.Context, albumID string) ([]model.Media, error) {
	if err := required(albumID); err != nil {
		return nil, backend.Label("getAlbumMedia", err)
	}
	posts, err := a.store.Select(ctx, backend.From(TablePost).
		Filter(backend.Eq("album_id", albumID)).
		OrderBy(backend.Desc("created_at")))
	if err != nil {
		return nil, backend.Label("getAlbumMedia", err)
	}
	postIDs := column(posts, "id")
	byPost, err := mediaOf(ctx, a.store, a.objects, postIDs)
	if err != nil {
		return nil, backend.Label("getAlbumMedia", err)
	}
	var out []model.Media
	for _, id := range postIDs {
		out = append(out, byPost[id]...)
	}
	return out, nil
}

// mediaOf loads the media of each post ordered by position, with file URLs
// resolved against the posts bucket.
func mediaOf(ctx context.Context, store backend.Store, objects backend.ObjectStore, postIDs []string) (map[string][]model.Media, error) {
	out := make(map[string][]model.Media)
	if len(postIDs) == 0 {
		return out, nil
	}
	rows, err := store.Select(ctx, backend.From(TablePostMedia).
		Filter(backend.In("post_id", postIDs)).
		OrderBy(backend.Asc("position")))
	if err != nil {
		return nil, err
	}
	media, err := decodeAll[model.Media](rows)
	if err != nil {
		return nil, err
	}
	for _, m := range media {
		m.FileURL = m.Path
		if objects != nil {
			if url, err := objects.URL(ctx, BucketPosts, m.Path); err == nil {
				m.FileURL = url
			}
		}
		out[m.PostID] = append(out[m.PostID], m)
	}
	return out, nil
}
