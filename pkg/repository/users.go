package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/model"
)

type Users struct {
	store   backend.Store
	objects backend.ObjectStore
	now     func() time.Time
}

// NewAccount is the profile row created at registration.
type NewAccount struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Birthdate string
}

type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}

func (u *Users) Create(ctx context.Context, a NewAccount) error {
	if err := required(a.ID, a.Username); err != nil {
		return backend.Label("createAccount", err)
	}
	row := backend.Row{
		"id":                 a.ID,
		"username":           strings.TrimSpace(a.Username),
		"first_name":         strings.TrimSpace(a.FirstName),
		"last_name":          strings.TrimSpace(a.LastName),
		"bio":                "",
		"avatar_url":         "",
		"avatar_placeholder": "",
		"birthdate":          a.Birthdate,
		"created_at":         u.now(),
	}
	return backend.Label("createAccount", u.store.Insert(ctx, TableAccount, row))
}

// Get returns a full profile as seen by viewerID.
func (u *Users) Get(ctx context.Context, viewerID string, id string) (model.User, error) {
	if err := required(id); err != nil {
		return model.User{}, backend.Label("getAccount", err)
	}
	rows, err := u.store.Select(ctx, backend.From(TableAccount).Filter(backend.Eq("id", id)))
	if err != nil {
		return model.User{}, backend.Label("getAccount", err)
	}
	if len(rows) == 0 {
		return model.User{}, backend.Label("getAccount", fmt.Errorf("account %s: %w", id, ErrUserNotFound))
	}
	user, err := decode[model.User](rows[0])
	if err != nil {
		return model.User{}, backend.Label("getAccount", err)
	}
	if err := u.stats(ctx, &user); err != nil {
		return model.User{}, backend.Label("getAccount", err)
	}
	if viewerID != "" && viewerID != id {
		n, err := count(ctx, u.store, TableFollow, backend.Eq("follower_id", viewerID), backend.Eq("following_id", id))
		if err != nil {
			return model.User{}, backend.Label("getAccount", err)
		}
		user.IsFollowing = n > 0
	}
	user.AvatarURL = u.resolve(ctx, BucketAvatars, user.AvatarURL)
	return user, nil
}

func (u *Users) stats(ctx context.Context, user *model.User) error {
	var err error
	if user.Stat.FollowerCount, err = count(ctx, u.store, TableFollow, backend.Eq("following_id", user.ID)); err != nil {
		return err
	}
	if user.Stat.FollowingCount, err = count(ctx, u.store, TableFollow, backend.Eq("follower_id", user.ID)); err != nil {
		return err
	}
	rows, err := u.store.Select(ctx, backend.From(TableAlbum).
		Filter(backend.Eq("account_id", user.ID)).
		OrderBy(backend.Desc("created_at")))
	if err != nil {
		return err
	}
	albums, err := decodeAll[model.Album](rows)
	if err != nil {
		return err
	}
	for i := range albums {
		if albums[i].PostCount, err = count(ctx, u.store, TablePost, backend.Eq("album_id", albums[i].ID)); err != nil {
			return err
		}
	}
	user.Albums = albums
	user.Stat.TripCount = int64(len(albums))
	return nil
}

// Summaries returns the summary projection of each account id found.
func (u *Users) Summaries(ctx context.Context, ids []string) (map[string]model.AccountSummary, error) {
	out := make(map[string]model.AccountSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := u.store.Select(ctx, backend.From(TableAccount).Filter(backend.In("id", ids)))
	if err != nil {
		return nil, err
	}
	summaries, err := decodeAll[model.AccountSummary](rows)
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		s.AvatarURL = u.resolve(ctx, BucketAvatars, s.AvatarURL)
		out[s.ID] = s
	}
	return out, nil
}

// Search matches term against usernames and names.
func (u *Users) Search(ctx context.Context, term string, limit int) ([]model.AccountSummary, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	pattern := "%" + term + "%"
	q := backend.From(TableAccount).
		Or(backend.ILike("username", pattern), backend.ILike("first_name", pattern), backend.ILike("last_name", pattern)).
		OrderBy(backend.Asc("username"))
	rows, _, err := u.store.FetchPage(ctx, q, 1, limit)
	if err != nil {
		return nil, backend.Label("searchUsers", err)
	}
	summaries, err := decodeAll[model.AccountSummary](rows)
	if err != nil {
		return nil, backend.Label("searchUsers", err)
	}
	for i := range summaries {
		summaries[i].AvatarURL = u.resolve(ctx, BucketAvatars, summaries[i].AvatarURL)
	}
	return summaries, nil
}

func (u *Users) Update(ctx context.Context, id string, p ProfileUpdate) error {
	if err := required(id); err != nil {
		return backend.Label("updateProfile", err)
	}
	fields := backend.Row{}
	if p.Username != nil {
		fields["username"] = strings.TrimSpace(*p.Username)
	}
	if p.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*p.LastName)
	}
	if p.Bio != nil {
		fields["bio"] = strings.TrimSpace(*p.Bio)
	}
	if len(fields) == 0 {
		return nil
	}
	return backend.Label("updateProfile", u.store.Update(ctx, TableAccount, fields, backend.Eq("id", id)))
}

// SetAvatar points the account at an uploaded avatar object.
func (u *Users) SetAvatar(ctx context.Context, id string, path string, placeholder string) error {
	if err := required(id, path); err != nil {
		return backend.Label("updateAvatar", err)
	}
	fields := backend.Row{"avatar_url": path, "avatar_placeholder": placeholder}
	return backend.Label("updateAvatar", u.store.Update(ctx, TableAccount, fields, backend.Eq("id", id)))
}

// resolve turns a stored object path into a URL. Paths that cannot be
// signed are returned unchanged.
func (u *Users) resolve(ctx context.Context, bucket string, path string) string {
	if path == "" || u.objects == nil || strings.Contains(path, "://") {
		return path
	}
	url, err := u.objects.URL(ctx, bucket, path)
	if err != nil {
		return path
	}
	return url
}
