package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"socialclient/pkg/auth"
	"socialclient/pkg/model"
	"socialclient/pkg/repository"
)

var captions = []string{
	"golden hour at the pier",
	"first snow of the year",
	"coffee and a good book",
	"weekend hike",
	"new record on the climbing wall",
	"city lights",
}

var locations = []string{"Lisbon", "Porto", "Berlin", "Kyoto", ""}

type stats struct {
	Users    int
	Follows  int
	Posts    int
	Likes    int
	Comments int
}

type seeder struct {
	repo   *repository.Repository
	auth   *auth.Authenticator
	store  storeProperties
	counts countProperties
	logger *slog.Logger
	rand   *rand.Rand
}

func (s *seeder) run(ctx context.Context) (stats, error) {
	var st stats
	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(1))
	}

	users := make([]string, 0, s.counts.Users)
	for i := 0; i < s.counts.Users; i++ {
		n := s.store.UsernameStart + i
		username := fmt.Sprintf("user_%d", n)
		id, err := s.auth.Register(ctx, auth.Registration{
			Email:     fmt.Sprintf("%s@%s", username, s.store.EmailDomain),
			Password:  s.store.Password,
			Username:  username,
			FirstName: "User",
			LastName:  fmt.Sprint(n),
		})
		if err != nil {
			return st, fmt.Errorf("register %s: %w", username, err)
		}
		users = append(users, id)
		s.logger.Debug("registered user", "username", username, "id", id)
	}
	st.Users = len(users)

	// user i follows the next FollowsPerUser users, wrapping around
	for i, follower := range users {
		for j := 1; j <= s.counts.FollowsPerUser && j < len(users); j++ {
			if err := s.repo.Follows.Follow(ctx, follower, users[(i+j)%len(users)]); err != nil {
				return st, err
			}
			st.Follows++
		}
	}

	var posts []model.Post
	for _, author := range users {
		for k := 0; k < s.counts.PostsPerUser; k++ {
			p, err := s.repo.Posts.Create(ctx, repository.NewPost{
				AccountID: author,
				Caption:   captions[s.rand.Intn(len(captions))],
				Location:  locations[s.rand.Intn(len(locations))],
			})
			if err != nil {
				return st, err
			}
			posts = append(posts, p)
		}
	}
	st.Posts = len(posts)

	for _, p := range posts {
		var top *model.Comment
		for k := 0; k < s.counts.CommentsPerPost; k++ {
			author := users[s.rand.Intn(len(users))]
			c, err := s.repo.Comments.Create(ctx, repository.NewComment{
				AccountID: author,
				PostID:    p.ID,
				Text:      fmt.Sprintf("comment %d", k),
				InReplyTo: top,
			})
			if err != nil {
				return st, err
			}
			st.Comments++
			// every other comment replies to the first one
			if top == nil {
				top = &c
			} else {
				top = nil
			}
		}
		liker := users[s.rand.Intn(len(users))]
		if err := s.repo.Posts.Like(ctx, p.ID, liker); err != nil {
			return st, err
		}
		st.Likes++
	}
	return st, nil
}
