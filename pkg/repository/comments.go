package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"
	"socialclient/pkg/model"
	"socialclient/pkg/pagination"
)

// MAX_COMMENT_LENGTH is the longest comment text accepted, in runes.
const MAX_COMMENT_LENGTH = 500

var ErrCommentTooLong = errors.New("comment is too long")

type Comments struct {
	store backend.Store
	users *Users
	ids   *ids.Generator
	now   func() time.Time
}

type NewComment struct {
	AccountID string
	PostID    string
	Text      string
	// InReplyTo is the comment being answered, nil for a top-level comment.
	InReplyTo *model.Comment
}

// Page returns top-level comments of a post, newest first.
func (c *Comments) Page(ctx context.Context, viewerID string, postID string, page int, size int) (pagination.Page[model.Comment], error) {
	if err := required(postID); err != nil {
		return pagination.Page[model.Comment]{}, backend.Label("getComments", err)
	}
	q := backend.From(TableComment).
		Filter(backend.Eq("post_id", postID), backend.Eq("reply_origin_comment_id", "")).
		OrderBy(backend.Desc("created_at"), backend.Desc("id"))
	return c.page(ctx, "getComments", viewerID, q, page, size)
}

// Replies returns the replies hanging off a top-level comment, oldest first.
func (c *Comments) Replies(ctx context.Context, viewerID string, originID string, page int, size int) (pagination.Page[model.Comment], error) {
	if err := required(originID); err != nil {
		return pagination.Page[model.Comment]{}, backend.Label("getReplies", err)
	}
	q := backend.From(TableComment).
		Filter(backend.Eq("reply_origin_comment_id", originID)).
		OrderBy(backend.Asc("created_at"), backend.Asc("id"))
	return c.page(ctx, "getReplies", viewerID, q, page, size)
}

func (c *Comments) page(ctx context.Context, op string, viewerID string, q backend.Query, page int, size int) (pagination.Page[model.Comment], error) {
	rows, total, err := c.store.FetchPage(ctx, q, page, size)
	if err != nil {
		return pagination.Page[model.Comment]{}, backend.Label(op, err)
	}
	comments, err := c.hydrate(ctx, viewerID, rows)
	if err != nil {
		return pagination.Page[model.Comment]{}, backend.Label(op, err)
	}
	return pagination.Page[model.Comment]{Data: comments, Count: total, Cursor: page}, nil
}

func (c *Comments) Get(ctx context.Context, viewerID string, id string) (model.Comment, error) {
	if err := required(id); err != nil {
		return model.Comment{}, backend.Label("getComment", err)
	}
	rows, err := c.store.Select(ctx, backend.From(TableComment).Filter(backend.Eq("id", id)))
	if err != nil {
		return model.Comment{}, backend.Label("getComment", err)
	}
	if len(rows) == 0 {
		return model.Comment{}, backend.Label("getComment", fmt.Errorf("comment %s: %w", id, backend.ErrNotFound))
	}
	comments, err := c.hydrate(ctx, viewerID, rows)
	if err != nil {
		return model.Comment{}, backend.Label("getComment", err)
	}
	return comments[0], nil
}

// Create stores a comment. Replies are kept one level deep: a reply to a
// reply hangs off the same top-level comment as its target.
func (c *Comments) Create(ctx context.Context, nc NewComment) (model.Comment, error) {
	if err := required(nc.AccountID, nc.PostID); err != nil {
		return model.Comment{}, backend.Label("createComment", err)
	}
	text := strings.TrimSpace(nc.Text)
	if utf8.RuneCountInString(text) > MAX_COMMENT_LENGTH {
		return model.Comment{}, ErrCommentTooLong
	}
	id, err := c.ids.Next()
	if err != nil {
		return model.Comment{}, backend.Label("createComment", err)
	}
	origin, inReplyTo := "", ""
	if nc.InReplyTo != nil {
		inReplyTo = nc.InReplyTo.ID
		origin = nc.InReplyTo.ReplyOriginID
		if origin == "" {
			origin = nc.InReplyTo.ID
		}
	}
	row := backend.Row{
		"id":                      id,
		"post_id":                 nc.PostID,
		"account_id":              nc.AccountID,
		"text":                    text,
		"reply_origin_comment_id": origin,
		"in_reply_to_comment_id":  inReplyTo,
		"created_at":              c.now(),
	}
	if err := c.store.Insert(ctx, TableComment, row); err != nil {
		return model.Comment{}, backend.Label("createComment", err)
	}
	return c.Get(ctx, nc.AccountID, id)
}

// Delete removes a comment and its likes. Replies of a deleted top-level
// comment are left in place.
func (c *Comments) Delete(ctx context.Context, id string) error {
	if err := required(id); err != nil {
		return backend.Label("deleteComment", err)
	}
	if err := c.store.Delete(ctx, TableCommentLike, backend.Eq("comment_id", id)); err != nil {
		return backend.Label("deleteComment", err)
	}
	return backend.Label("deleteComment", c.store.Delete(ctx, TableComment, backend.Eq("id", id)))
}

func (c *Comments) Like(ctx context.Context, commentID string, accountID string) error {
	if err := required(commentID, accountID); err != nil {
		return backend.Label("likeComment", err)
	}
	row := backend.Row{
		"id":         ids.UUID(),
		"comment_id": commentID,
		"account_id": accountID,
		"created_at": c.now(),
	}
	return backend.Label("likeComment", c.store.Insert(ctx, TableCommentLike, row))
}

func (c *Comments) Unlike(ctx context.Context, commentID string, accountID string) error {
	if err := required(commentID, accountID); err != nil {
		return backend.Label("unlikeComment", err)
	}
	return backend.Label("unlikeComment", c.store.Delete(ctx, TableCommentLike,
		backend.Eq("comment_id", commentID), backend.Eq("account_id", accountID)))
}

func (c *Comments) hydrate(ctx context.Context, viewerID string, rows []backend.Row) ([]model.Comment, error) {
	comments, err := decodeAll[model.Comment](rows)
	if err != nil {
		return nil, err
	}
	commentIDs := column(rows, "id")

	// authors of the comments being answered
	targetAuthors := make(map[string]string)
	if targetIDs := column(rows, "in_reply_to_comment_id"); len(targetIDs) > 0 {
		targets, err := c.store.Select(ctx, backend.From(TableComment).Filter(backend.In("id", targetIDs)))
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			id, _ := t["id"].(string)
			author, _ := t["account_id"].(string)
			targetAuthors[id] = author
		}
	}
	accountIDs := column(rows, "account_id")
	for _, author := range targetAuthors {
		accountIDs = append(accountIDs, author)
	}
	summaries, err := c.users.Summaries(ctx, accountIDs)
	if err != nil {
		return nil, err
	}

	liked := make(map[string]model.CommentLike)
	if viewerID != "" && len(commentIDs) > 0 {
		likeRows, err := c.store.Select(ctx, backend.From(TableCommentLike).
			Filter(backend.In("comment_id", commentIDs), backend.Eq("account_id", viewerID)))
		if err != nil {
			return nil, err
		}
		likes, err := decodeAll[model.CommentLike](likeRows)
		if err != nil {
			return nil, err
		}
		for _, l := range likes {
			liked[l.CommentID] = l
		}
	}

	for i := range comments {
		comment := &comments[i]
		comment.Account = summaries[comment.AccountID]
		if comment.InReplyToID != "" {
			comment.InReplyTo = &model.ReplyTarget{
				ID:      comment.InReplyToID,
				Account: summaries[targetAuthors[comment.InReplyToID]],
			}
		}
		if comment.LikesCount, err = count(ctx, c.store, TableCommentLike, backend.Eq("comment_id", comment.ID)); err != nil {
			return nil, err
		}
		if !comment.IsReply() {
			if comment.RepliesCount, err = count(ctx, c.store, TableComment, backend.Eq("reply_origin_comment_id", comment.ID)); err != nil {
				return nil, err
			}
		}
		if l, ok := liked[comment.ID]; ok {
			like := l
			comment.Like = &like
		}
	}
	return comments, nil
}
