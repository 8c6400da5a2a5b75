package client

import (
	"strings"
	"time"

	"socialclient/pkg/model"
	"socialclient/pkg/mutation"
	"socialclient/pkg/pagination"
	"socialclient/pkg/querycache"
)

type (
	postPages         = pagination.Pages[model.Post]
	commentPages      = pagination.Pages[model.Comment]
	conversationPages = pagination.Pages[model.Conversation]
)

// postLike moves the viewer's like on a post to on wherever the post is
// cached.
func postLike(postID string, viewerID string, on bool) mutation.Patch {
	return mutation.Funcs{
		OnApply:  func(c *querycache.Cache) { setPostLike(c, postID, viewerID, on) },
		OnRevert: func(c *querycache.Cache) { setPostLike(c, postID, viewerID, !on) },
	}
}

func setPostLike(c *querycache.Cache, postID string, viewerID string, on bool) {
	update := func(p model.Post) model.Post {
		if p.ID != postID || (p.Like != nil) == on {
			return p
		}
		if on {
			p.Like = &model.PostLike{PostID: postID, AccountID: viewerID}
			p.LikesCount++
		} else {
			p.Like = nil
			if p.LikesCount > 0 {
				p.LikesCount--
			}
		}
		return p
	}
	querycache.Modify(c, keyFeed, func(pages postPages) postPages { return pages.Map(update) })
	querycache.Modify(c, postKey(postID), update)
}

// commentLike moves the viewer's like on a comment or reply to on.
func commentLike(commentID string, viewerID string, on bool) mutation.Patch {
	return mutation.Funcs{
		OnApply:  func(c *querycache.Cache) { setCommentLike(c, commentID, viewerID, on) },
		OnRevert: func(c *querycache.Cache) { setCommentLike(c, commentID, viewerID, !on) },
	}
}

func setCommentLike(c *querycache.Cache, commentID string, viewerID string, on bool) {
	update := func(cm model.Comment) model.Comment {
		if cm.ID != commentID || (cm.Like != nil) == on {
			return cm
		}
		if on {
			cm.Like = &model.CommentLike{CommentID: commentID, AccountID: viewerID}
			cm.LikesCount++
		} else {
			cm.Like = nil
			if cm.LikesCount > 0 {
				cm.LikesCount--
			}
		}
		return cm
	}
	modifyComments(c, func(_ string, pages commentPages) commentPages { return pages.Map(update) })
}

func modifyComments(c *querycache.Cache, fn func(key string, pages commentPages) commentPages) {
	querycache.ModifyPrefix(c, prefixComments, fn)
	querycache.ModifyPrefix(c, prefixReplies, fn)
}

// follow flips the viewer's follow of userID on profiles and follow lists.
func follow(viewerID string, userID string, on bool) mutation.Patch {
	return mutation.Funcs{
		OnApply:  func(c *querycache.Cache) { setFollow(c, viewerID, userID, on) },
		OnRevert: func(c *querycache.Cache) { setFollow(c, viewerID, userID, !on) },
	}
}

func setFollow(c *querycache.Cache, viewerID string, userID string, on bool) {
	querycache.Modify(c, accountKey(userID), func(u model.User) model.User {
		if u.IsFollowing == on {
			return u
		}
		u.IsFollowing = on
		u.Stat.FollowerCount += delta(on)
		return u
	})
	querycache.Modify(c, accountKey(viewerID), func(u model.User) model.User {
		u.Stat.FollowingCount += delta(on)
		if u.Stat.FollowingCount < 0 {
			u.Stat.FollowingCount = 0
		}
		return u
	})
	flip := func(_ string, list []model.UserFollow) []model.UserFollow {
		out := make([]model.UserFollow, len(list))
		for i, f := range list {
			if f.Account.ID == userID {
				f.IsFollowing = on
			}
			out[i] = f
		}
		return out
	}
	querycache.ModifyPrefix(c, prefixFollowers, flip)
	querycache.ModifyPrefix(c, prefixFollowing, flip)
}

func delta(on bool) int64 {
	if on {
		return 1
	}
	return -1
}

// removal drops the first item matching match from a paginated snapshot
// and puts it back at the same position on revert.
func removal[T any](key string, match func(T) bool) mutation.Patch {
	var (
		pos     pagination.Position
		removed T
		found   bool
	)
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			querycache.Modify(c, key, func(pages pagination.Pages[T]) pagination.Pages[T] {
				pos, removed, found = pages.Locate(match)
				if !found {
					return pages
				}
				return pages.Filter(func(t T) bool { return !match(t) })
			})
		},
		OnRevert: func(c *querycache.Cache) {
			if !found {
				return
			}
			querycache.Modify(c, key, func(pages pagination.Pages[T]) pagination.Pages[T] {
				return pages.InsertAt(pos, removed)
			})
		},
	}
}

// drop removes a cache entry and restores it on revert.
func drop(key string) mutation.Patch {
	var (
		saved any
		had   bool
	)
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			saved, had = c.Get(key)
			c.Remove(key)
		},
		OnRevert: func(c *querycache.Cache) {
			if had {
				c.Set(key, saved)
			}
		},
	}
}

// postUnlisted takes a deleted post out of the album media lists and
// lowers its album's post count on the owner's profile. albumID may be
// empty when the post was not cached; it is then taken from the album list
// that held the post's media.
func postUnlisted(ownerID string, albumID string, postID string) mutation.Patch {
	var (
		saved   map[string][]model.Media
		counted string
	)
	count := func(c *querycache.Cache, n int64) {
		querycache.Modify(c, accountKey(ownerID), func(u model.User) model.User {
			albums := make([]model.Album, len(u.Albums))
			for i, a := range u.Albums {
				if a.ID == counted {
					a.PostCount += n
					if a.PostCount < 0 {
						a.PostCount = 0
					}
				}
				albums[i] = a
			}
			u.Albums = albums
			return u
		})
	}
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			saved = make(map[string][]model.Media)
			counted = albumID
			querycache.ModifyPrefix(c, prefixAlbumMedia, func(key string, media []model.Media) []model.Media {
				kept := make([]model.Media, 0, len(media))
				for _, m := range media {
					if m.PostID != postID {
						kept = append(kept, m)
					}
				}
				if len(kept) == len(media) {
					return media
				}
				saved[key] = media
				if counted == "" {
					counted = strings.TrimPrefix(key, prefixAlbumMedia)
				}
				return kept
			})
			if counted != "" {
				count(c, -1)
			}
		},
		OnRevert: func(c *querycache.Cache) {
			for key, media := range saved {
				c.Set(key, media)
			}
			if counted != "" {
				count(c, 1)
			}
		},
	}
}

// replyCount adjusts the replies count shown on a top-level comment.
func replyCount(postID string, originID string, n int64) mutation.Patch {
	apply := func(n int64) func(c *querycache.Cache) {
		return func(c *querycache.Cache) {
			querycache.Modify(c, commentsKey(postID), func(pages commentPages) commentPages {
				return pages.Map(func(cm model.Comment) model.Comment {
					if cm.ID == originID {
						cm.RepliesCount += n
						if cm.RepliesCount < 0 {
							cm.RepliesCount = 0
						}
					}
					return cm
				})
			})
		}
	}
	return mutation.Funcs{OnApply: apply(n), OnRevert: apply(-n)}
}

// commentAdded shows a freshly created comment: top-level comments go on
// top of the post's comments, replies at the end of their thread.
func commentAdded(created *model.Comment) mutation.Patch {
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			cm := *created
			if !cm.IsReply() {
				querycache.Modify(c, commentsKey(cm.PostID), func(pages commentPages) commentPages {
					return pages.Prepend(cm)
				})
				return
			}
			querycache.Modify(c, repliesKey(cm.ReplyOriginID), func(pages commentPages) commentPages {
				return pages.Append(cm)
			})
			replyCount(cm.PostID, cm.ReplyOriginID, 1).Apply(c)
		},
	}
}

// postAdded puts a freshly created post on top of the feed.
func postAdded(created *model.Post) mutation.Patch {
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			p := *created
			querycache.Modify(c, keyFeed, func(pages postPages) postPages { return pages.Prepend(p) })
			c.Set(postKey(p.ID), p)
		},
	}
}

// conversationRead moves the viewer's last read mark of a conversation.
func conversationRead(conversationID string, at time.Time) mutation.Patch {
	var (
		previous *time.Time
		had      bool
	)
	set := func(c *querycache.Cache, v *time.Time) {
		update := func(conv model.Conversation) model.Conversation {
			if conv.ID == conversationID {
				conv.LastRead = v
			}
			return conv
		}
		querycache.Modify(c, conversationKey(conversationID), update)
		querycache.Modify(c, keyConversations, func(pages conversationPages) conversationPages {
			return pages.Map(update)
		})
	}
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			if conv, ok := querycache.Lookup[model.Conversation](c, conversationKey(conversationID)); ok {
				previous, had = conv.LastRead, true
			} else if pages, ok := querycache.Lookup[conversationPages](c, keyConversations); ok {
				_, conv, found := pages.Locate(func(conv model.Conversation) bool { return conv.ID == conversationID })
				previous, had = conv.LastRead, found
			}
			read := at
			set(c, &read)
		},
		OnRevert: func(c *querycache.Cache) {
			if had {
				set(c, previous)
			}
		},
	}
}

// messageAdded appends a sent message to the open conversation and makes
// it the latest message of the conversation list entry.
func messageAdded(sent *model.Message) mutation.Patch {
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			msg := *sent
			read := msg.CreatedAt
			querycache.Modify(c, conversationKey(msg.ConversationID), func(conv model.Conversation) model.Conversation {
				for _, m := range conv.Messages {
					if m.ID == msg.ID {
						return conv
					}
				}
				conv.Messages = append(append([]model.Message(nil), conv.Messages...), msg)
				conv.UpdatedAt = msg.CreatedAt
				conv.LastRead = &read
				return conv
			})
			querycache.Modify(c, keyConversations, func(pages conversationPages) conversationPages {
				return pages.Map(func(conv model.Conversation) model.Conversation {
					if conv.ID == msg.ConversationID {
						conv.Messages = []model.Message{msg}
						conv.UpdatedAt = msg.CreatedAt
						conv.LastRead = &read
					}
					return conv
				})
			})
		},
	}
}

// messageRemoved drops a message from an open conversation.
func messageRemoved(conversationID string, messageID string) mutation.Patch {
	var (
		index   int
		removed model.Message
		found   bool
	)
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			querycache.Modify(c, conversationKey(conversationID), func(conv model.Conversation) model.Conversation {
				msgs := make([]model.Message, 0, len(conv.Messages))
				for i, m := range conv.Messages {
					if m.ID == messageID {
						index, removed, found = i, m, true
						continue
					}
					msgs = append(msgs, m)
				}
				conv.Messages = msgs
				return conv
			})
		},
		OnRevert: func(c *querycache.Cache) {
			if !found {
				return
			}
			querycache.Modify(c, conversationKey(conversationID), func(conv model.Conversation) model.Conversation {
				i := index
				if i > len(conv.Messages) {
					i = len(conv.Messages)
				}
				msgs := make([]model.Message, 0, len(conv.Messages)+1)
				msgs = append(msgs, conv.Messages[:i]...)
				msgs = append(msgs, removed)
				msgs = append(msgs, conv.Messages[i:]...)
				conv.Messages = msgs
				return conv
			})
		},
	}
}

// profileEdited applies a profile update to the viewer's cached account.
func profileEdited(viewerID string, apply func(u model.User) model.User) mutation.Patch {
	var (
		previous model.User
		had      bool
	)
	return mutation.Funcs{
		OnApply: func(c *querycache.Cache) {
			querycache.Modify(c, accountKey(viewerID), func(u model.User) model.User {
				previous, had = u, true
				return apply(u)
			})
		},
		OnRevert: func(c *querycache.Cache) {
			if had {
				c.Update(accountKey(viewerID), func(any) any { return previous })
			}
		},
	}
}
