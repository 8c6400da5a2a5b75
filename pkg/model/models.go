package model

import (
	"time"
)

// AccountSummary is the reduced projection of an account embedded in
// posts, comments, messages and follow lists.
type AccountSummary struct {
	ID                string `json:"id" bson:"id"`
	Username          string `json:"username" bson:"username"`
	FirstName         string `json:"first_name" bson:"first_name"`
	LastName          string `json:"last_name" bson:"last_name"`
	AvatarURL         string `json:"avatar_url" bson:"avatar_url"`
	AvatarPlaceholder string `json:"avatar_placeholder" bson:"avatar_placeholder"`
}

type AccountStat struct {
	FollowerCount  int64 `json:"follower_count" bson:"follower_count"`
	FollowingCount int64 `json:"following_count" bson:"following_count"`
	TripCount      int64 `json:"trip_count" bson:"trip_count"`
}

type Album struct {
	ID        string    `json:"id" bson:"id"`
	AccountID string    `json:"account_id" bson:"account_id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	PostCount int64     `json:"post_count" bson:"-"`
	CoverURL  string    `json:"cover_url" bson:"-"`
}

// User is a full account profile as seen by the viewing user.
// IsFollowing is derived from the follow table and never stored.
type User struct {
	ID                string      `json:"id" bson:"id"`
	Username          string      `json:"username" bson:"username"`
	FirstName         string      `json:"first_name" bson:"first_name"`
	LastName          string      `json:"last_name" bson:"last_name"`
	Bio               string      `json:"bio" bson:"bio"`
	AvatarURL         string      `json:"avatar_url" bson:"avatar_url"`
	AvatarPlaceholder string      `json:"avatar_placeholder" bson:"avatar_placeholder"`
	Birthdate         string      `json:"birthdate" bson:"birthdate"`
	CreatedAt         time.Time   `json:"created_at" bson:"created_at"`
	Stat              AccountStat `json:"account_stat" bson:"-"`
	Albums            []Album     `json:"album" bson:"-"`
	IsFollowing       bool        `json:"is_following" bson:"-"`
}

func (u User) Summary() AccountSummary {
	return AccountSummary{
		ID:                u.ID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		AvatarURL:         u.AvatarURL,
		AvatarPlaceholder: u.AvatarPlaceholder,
	}
}

// UserFollow is one row of a followers/following list.
type UserFollow struct {
	Account     AccountSummary `json:"account"`
	IsFollowing bool           `json:"is_following"`
}

type Media struct {
	ID          string `json:"id" bson:"id"`
	PostID      string `json:"post_id" bson:"post_id"`
	Path        string `json:"path" bson:"path"`
	Placeholder string `json:"placeholder" bson:"placeholder"`
	Position    int64  `json:"position" bson:"position"`
	FileURL     string `json:"file_url" bson:"-"`
}

type PostLike struct {
	ID        string    `json:"id" bson:"id"`
	PostID    string    `json:"post_id" bson:"post_id"`
	AccountID string    `json:"account_id" bson:"account_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type Post struct {
	ID         string         `json:"id" bson:"id"`
	AccountID  string         `json:"account_id" bson:"account_id"`
	AlbumID    string         `json:"album_id" bson:"album_id"`
	Caption    string         `json:"caption" bson:"caption"`
	Location   string         `json:"location" bson:"location"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
	Account    AccountSummary `json:"account" bson:"-"`
	Media      []Media        `json:"post_media" bson:"-"`
	LikesCount int64          `json:"likes_count" bson:"-"`
	// Like is the viewer's like record, nil when the viewer has not liked the post.
	Like *PostLike `json:"post_like" bson:"-"`
}

type CommentLike struct {
	ID        string    `json:"id" bson:"id"`
	CommentID string    `json:"comment_id" bson:"comment_id"`
	AccountID string    `json:"account_id" bson:"account_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ReplyTarget identifies the comment, and its author, a reply addresses.
type ReplyTarget struct {
	ID      string         `json:"id"`
	Account AccountSummary `json:"account"`
}

// Comment is either a top-level comment (ReplyOriginID empty) or a reply
// hanging off the top-level comment named by ReplyOriginID.
type Comment struct {
	ID            string         `json:"id" bson:"id"`
	PostID        string         `json:"post_id" bson:"post_id"`
	AccountID     string         `json:"account_id" bson:"account_id"`
	Text          string         `json:"text" bson:"text"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
	ReplyOriginID string         `json:"reply_origin_comment_id" bson:"reply_origin_comment_id"`
	InReplyToID   string         `json:"-" bson:"in_reply_to_comment_id"`
	InReplyTo     *ReplyTarget   `json:"in_reply_to_comment_id" bson:"-"`
	Account       AccountSummary `json:"account" bson:"-"`
	LikesCount    int64          `json:"likes_count" bson:"-"`
	RepliesCount  int64          `json:"replies_count" bson:"-"`
	Like          *CommentLike   `json:"comment_like" bson:"-"`
}

func (c Comment) IsReply() bool {
	return c.ReplyOriginID != ""
}

type Message struct {
	ID             string         `json:"id" bson:"id"`
	ConversationID string         `json:"conversation_id" bson:"conversation_id"`
	AccountID      string         `json:"account_id" bson:"account_id"`
	Text           string         `json:"text" bson:"text"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" bson:"updated_at"`
	Sender         AccountSummary `json:"account" bson:"-"`
}

// ConversationTarget is one account's membership in a conversation.
// A nil DeletedAt marks the membership as active.
type ConversationTarget struct {
	ID             string         `json:"id" bson:"id"`
	ConversationID string         `json:"conversation_id" bson:"conversation_id"`
	AccountID      string         `json:"account_id" bson:"account_id"`
	LastRead       *time.Time     `json:"last_read" bson:"last_read"`
	DeletedAt      *time.Time     `json:"deleted_at" bson:"deleted_at"`
	Account        AccountSummary `json:"account" bson:"-"`
}

type Conversation struct {
	ID              string               `json:"id" bson:"id"`
	OriginAccountID string               `json:"origin_account_id" bson:"origin_account_id"`
	CreatedAt       time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" bson:"updated_at"`
	Targets         []ConversationTarget `json:"conversation_target" bson:"-"`
	Messages        []Message            `json:"messages" bson:"-"`
	// LastRead is the viewer's last read timestamp.
	LastRead *time.Time `json:"last_read" bson:"-"`
}

// Latest returns the most recent message, if any.
func (c Conversation) Latest() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Unread reports whether a message arrived after the viewer last read the conversation.
func (c Conversation) Unread() bool {
	latest, ok := c.Latest()
	if !ok {
		return false
	}
	if c.LastRead == nil {
		return true
	}
	return latest.CreatedAt.After(*c.LastRead)
}

// Recipients returns the active targets other than the viewer.
func (c Conversation) Recipients(viewerID string) []AccountSummary {
	var out []AccountSummary
	for _, t := range c.Targets {
		if t.AccountID == viewerID || t.DeletedAt != nil {
			continue
		}
		out = append(out, t.Account)
	}
	return out
}
