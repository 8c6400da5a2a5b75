package repository

import (
	"context"
	"fmt"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"
	"socialclient/pkg/model"
)

type Follows struct {
	store backend.Store
	users *Users
	now   func() time.Time
}

func (f *Follows) Follow(ctx context.Context, followerID string, followingID string) error {
	if err := required(followerID, followingID); err != nil {
		return backend.Label("followUser", err)
	}
	if followerID == followingID {
		return backend.Label("followUser", fmt.Errorf("account %s cannot follow itself", followerID))
	}
	row := backend.Row{
		"id":           ids.UUID(),
		"follower_id":  followerID,
		"following_id": followingID,
		"created_at":   f.now(),
	}
	return backend.Label("followUser", f.store.Insert(ctx, TableFollow, row))
}

func (f *Follows) Unfollow(ctx context.Context, followerID string, followingID string) error {
	if err := required(followerID, followingID); err != nil {
		return backend.Label("unfollowUser", err)
	}
	return backend.Label("unfollowUser", f.store.Delete(ctx, TableFollow,
		backend.Eq("follower_id", followerID), backend.Eq("following_id", followingID)))
}

// Followers lists the accounts following userID, flagged with whether the
// viewer follows each of them.
func (f *Follows) Followers(ctx context.Context, viewerID string, userID string) ([]model.UserFollow, error) {
	return f.list(ctx, "getFollowers", viewerID, "following_id", userID, "follower_id")
}

// Following lists the accounts userID follows.
func (f *Follows) Following(ctx context.Context, viewerID string, userID string) ([]model.UserFollow, error) {
	return f.list(ctx, "getFollowing", viewerID, "follower_id", userID, "following_id")
}

func (f *Follows) list(ctx context.Context, op string, viewerID string, byField string, userID string, otherField string) ([]model.UserFollow, error) {
	if err := required(userID); err != nil {
		return nil, backend.Label(op, err)
	}
	rows, err := f.store.Select(ctx, backend.From(TableFollow).
		Filter(backend.Eq(byField, userID)).
		OrderBy(backend.Desc("created_at")))
	if err != nil {
		return nil, backend.Label(op, err)
	}
	accountIDs := column(rows, otherField)
	summaries, err := f.users.Summaries(ctx, accountIDs)
	if err != nil {
		return nil, backend.Label(op, err)
	}
	followed, err := f.followedBy(ctx, viewerID, accountIDs)
	if err != nil {
		return nil, backend.Label(op, err)
	}
	out := make([]model.UserFollow, 0, len(accountIDs))
	for _, id := range accountIDs {
		summary, ok := summaries[id]
		if !ok {
			continue
		}
		_, following := followed[id]
		out = append(out, model.UserFollow{Account: summary, IsFollowing: following})
	}
	return out, nil
}

// followedBy returns which of accountIDs the viewer follows.
func (f *Follows) followedBy(ctx context.Context, viewerID string, accountIDs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if viewerID == "" || len(accountIDs) == 0 {
		return out, nil
	}
	rows, err := f.store.Select(ctx, backend.From(TableFollow).
		Filter(backend.Eq("follower_id", viewerID), backend.In("following_id", accountIDs)))
	if err != nil {
		return nil, err
	}
	for _, id := range column(rows, "following_id") {
		out[id] = struct{}{}
	}
	return out, nil
}
