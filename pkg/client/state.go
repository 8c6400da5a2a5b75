package client

import (
	"sync"

	"socialclient/pkg/model"
)

type FollowListKind string

const (
	FollowersList FollowListKind = "followers"
	FollowingList FollowListKind = "following"
)

// FollowList is the follow list the viewer has open.
type FollowList struct {
	UserID string         `json:"user_id"`
	Kind   FollowListKind `json:"kind"`
}

// State is the application state shared between screens of one session.
// It is passed around explicitly and cleared on logout.
type State struct {
	mu         sync.Mutex
	recipients []model.AccountSummary
	viewedPost string
	followList FollowList
	uploadURI  string
}

// StateSnapshot is a copy of State for rendering.
type StateSnapshot struct {
	Recipients []model.AccountSummary `json:"recipients"`
	ViewedPost string                 `json:"viewed_post"`
	FollowList FollowList             `json:"follow_list"`
	UploadURI  string                 `json:"upload_uri"`
}

func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		Recipients: append([]model.AccountSummary(nil), s.recipients...),
		ViewedPost: s.viewedPost,
		FollowList: s.followList,
		UploadURI:  s.uploadURI,
	}
}

// AddRecipient adds an account to the recipients chosen for a new
// conversation. Adding the same account twice is a no-op.
func (s *State) AddRecipient(a model.AccountSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recipients {
		if r.ID == a.ID {
			return
		}
	}
	s.recipients = append(s.recipients, a)
}

func (s *State) RemoveRecipient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.recipients[:0:0]
	for _, r := range s.recipients {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.recipients = out
}

func (s *State) Recipients() []model.AccountSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AccountSummary(nil), s.recipients...)
}

func (s *State) ClearRecipients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = nil
}

func (s *State) SetViewedPost(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewedPost = id
}

func (s *State) ViewedPost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewedPost
}

func (s *State) SetFollowList(l FollowList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followList = l
}

func (s *State) SetUploadURI(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadURI = uri
}

func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = nil
	s.viewedPost = ""
	s.followList = FollowList{}
	s.uploadURI = ""
}
