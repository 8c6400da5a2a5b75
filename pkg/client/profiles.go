package client

import (
	"context"
	"strings"

	"socialclient/pkg/model"
	"socialclient/pkg/mutation"
	"socialclient/pkg/objects"
	"socialclient/pkg/querycache"
	"socialclient/pkg/repository"
)

// SEARCH_LIMIT caps the accounts returned by a user search.
const SEARCH_LIMIT = 20

func (s *Session) Account(ctx context.Context, userID string) (model.User, error) {
	s.logger.Debug("entering Account", "user_id", userID)
	if u, ok := querycache.Lookup[model.User](s.cache, accountKey(userID)); ok {
		return u, nil
	}
	u, err := s.repo.Users.Get(ctx, s.viewerID, userID)
	if err != nil {
		return model.User{}, s.report(ctx, "getAccount", err)
	}
	if on, ok := s.engine.State(followEntity(userID)); ok {
		u.IsFollowing = on
	}
	s.cache.Set(accountKey(userID), u)
	return u, nil
}

func (s *Session) Followers(ctx context.Context, userID string) ([]model.UserFollow, error) {
	s.state.SetFollowList(FollowList{UserID: userID, Kind: FollowersList})
	return s.followList(ctx, "getFollowers", followersKey(userID), func(ctx context.Context) ([]model.UserFollow, error) {
		return s.repo.Follows.Followers(ctx, s.viewerID, userID)
	})
}

func (s *Session) Following(ctx context.Context, userID string) ([]model.UserFollow, error) {
	s.state.SetFollowList(FollowList{UserID: userID, Kind: FollowingList})
	return s.followList(ctx, "getFollowing", followingKey(userID), func(ctx context.Context) ([]model.UserFollow, error) {
		return s.repo.Follows.Following(ctx, s.viewerID, userID)
	})
}

func (s *Session) followList(ctx context.Context, label string, key string, fetch func(context.Context) ([]model.UserFollow, error)) ([]model.UserFollow, error) {
	if list, ok := querycache.Lookup[[]model.UserFollow](s.cache, key); ok {
		return list, nil
	}
	list, err := fetch(ctx)
	if err != nil {
		return nil, s.report(ctx, label, err)
	}
	s.cache.Set(key, list)
	return list, nil
}

// IsFollowing reports whether the viewer follows userID as shown by the
// client.
func (s *Session) IsFollowing(userID string) bool {
	if on, ok := s.engine.State(followEntity(userID)); ok {
		return on
	}
	if u, ok := querycache.Lookup[model.User](s.cache, accountKey(userID)); ok {
		return u.IsFollowing
	}
	for _, prefix := range []string{prefixFollowers, prefixFollowing} {
		for _, key := range s.cache.Keys(prefix) {
			list, _ := querycache.Lookup[[]model.UserFollow](s.cache, key)
			for _, f := range list {
				if f.Account.ID == userID {
					return f.IsFollowing
				}
			}
		}
	}
	return false
}

// ToggleFollow follows or unfollows userID. It returns the new state.
func (s *Session) ToggleFollow(ctx context.Context, userID string) (bool, error) {
	s.logger.Debug("entering ToggleFollow", "user_id", userID)
	return s.engine.Toggle(ctx, mutation.Toggle{
		Label:   "followUser",
		Entity:  followEntity(userID),
		Initial: func() bool { return s.IsFollowing(userID) },
		On:      func(ctx context.Context) error { return s.repo.Follows.Follow(ctx, s.viewerID, userID) },
		Off:     func(ctx context.Context) error { return s.repo.Follows.Unfollow(ctx, s.viewerID, userID) },
		Patch:   func(on bool) mutation.Patch { return follow(s.viewerID, userID, on) },
	})
}

func (s *Session) SearchUsers(ctx context.Context, term string) ([]model.AccountSummary, error) {
	s.logger.Debug("entering SearchUsers", "term", term)
	found, err := s.repo.Users.Search(ctx, term, SEARCH_LIMIT)
	return found, s.report(ctx, "searchUsers", err)
}

// UpdateProfile edits the viewer's profile, showing the edit right away.
func (s *Session) UpdateProfile(ctx context.Context, update repository.ProfileUpdate) error {
	s.logger.Debug("entering UpdateProfile")
	return s.engine.Run(ctx, mutation.Mutation{
		Label:  "updateProfile",
		Entity: profileEntity(s.viewerID),
		Remote: func(ctx context.Context) error { return s.repo.Users.Update(ctx, s.viewerID, update) },
		Patch: profileEdited(s.viewerID, func(u model.User) model.User {
			if update.Username != nil {
				u.Username = strings.TrimSpace(*update.Username)
			}
			if update.FirstName != nil {
				u.FirstName = strings.TrimSpace(*update.FirstName)
			}
			if update.LastName != nil {
				u.LastName = strings.TrimSpace(*update.LastName)
			}
			if update.Bio != nil {
				u.Bio = strings.TrimSpace(*update.Bio)
			}
			return u
		}),
	})
}

// UploadAvatar stores a new avatar for the viewer. Images above 2MB are
// rejected before anything is uploaded.
func (s *Session) UploadAvatar(ctx context.Context, img Image) error {
	s.logger.Debug("entering UploadAvatar", "size", len(img.Data))
	if err := objects.CheckSize(img.Data); err != nil {
		return s.report(ctx, "uploadAvatar", err)
	}
	name := objects.ContentName(img.Data, strings.ToLower(img.Filename))
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:    "uploadAvatar",
		Entity:   profileEntity(s.viewerID),
		AfterAck: true,
		Remote: func(ctx context.Context) error {
			if err := s.objects.Upload(ctx, repository.BucketAvatars, name, img.Data, img.ContentType); err != nil {
				return err
			}
			return s.repo.Users.SetAvatar(ctx, s.viewerID, name, img.Placeholder)
		},
		Patch: mutation.Funcs{OnApply: func(c *querycache.Cache) {
			c.Remove(accountKey(s.viewerID))
			c.Remove(avatarKey(s.viewerID))
		}},
	})
	if err == nil {
		s.state.SetUploadURI("")
	}
	return err
}

// AvatarURL returns a displayable URL of an account's avatar.
func (s *Session) AvatarURL(ctx context.Context, userID string) (string, error) {
	if url, ok := querycache.Lookup[string](s.cache, avatarKey(userID)); ok {
		return url, nil
	}
	summaries, err := s.repo.Users.Summaries(ctx, []string{userID})
	if err != nil {
		return "", s.report(ctx, "getAvatar", err)
	}
	summary, ok := summaries[userID]
	if !ok {
		return "", s.report(ctx, "getAvatar", repository.ErrUserNotFound)
	}
	s.cache.Set(avatarKey(userID), summary.AvatarURL)
	return summary.AvatarURL, nil
}
