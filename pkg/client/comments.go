package client

import (
	"context"
	"strings"
	"unicode/utf8"

	"socialclient/pkg/model"
	"socialclient/pkg/mutation"
	"socialclient/pkg/pagination"
	"socialclient/pkg/querycache"
	"socialclient/pkg/repository"
)

func (s *Session) commentsOf(postID string) *pagination.Coordinator[model.Comment] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[postID]
	if !ok {
		c = pagination.New[model.Comment](s.cache, commentsKey(postID), pagination.COMMENTS_PER_PAGE,
			func(ctx context.Context, page int) (pagination.Page[model.Comment], error) {
				return s.repo.Comments.Page(ctx, s.viewerID, postID, page, pagination.COMMENTS_PER_PAGE)
			}, commentID)
		s.comments[postID] = c
	}
	return c
}

func (s *Session) repliesOf(originID string) *pagination.Coordinator[model.Comment] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.replies[originID]
	if !ok {
		c = pagination.New[model.Comment](s.cache, repliesKey(originID), pagination.REPLIES_PER_PAGE,
			func(ctx context.Context, page int) (pagination.Page[model.Comment], error) {
				return s.repo.Comments.Replies(ctx, s.viewerID, originID, page, pagination.REPLIES_PER_PAGE)
			}, commentID)
		s.replies[originID] = c
	}
	return c
}

// Comments returns the top-level comments of a post loaded so far.
func (s *Session) Comments(ctx context.Context, postID string) ([]model.Comment, error) {
	s.logger.Debug("entering Comments", "post_id", postID)
	comments, err := s.commentsOf(postID).Load(ctx)
	return comments, s.report(ctx, "getComments", err)
}

func (s *Session) NextCommentsPage(ctx context.Context, postID string) (bool, error) {
	fetched, err := s.commentsOf(postID).LoadNext(ctx)
	return fetched, s.report(ctx, "getComments", err)
}

func (s *Session) CommentsEnd(postID string) bool {
	return s.commentsOf(postID).End()
}

// Replies shows the thread of a top-level comment, loading its first page
// of replies when hidden.
func (s *Session) Replies(ctx context.Context, originID string) ([]model.Comment, error) {
	s.logger.Debug("entering Replies", "comment_id", originID)
	replies, err := s.repliesOf(originID).Load(ctx)
	return replies, s.report(ctx, "getReplies", err)
}

func (s *Session) NextRepliesPage(ctx context.Context, originID string) (bool, error) {
	fetched, err := s.repliesOf(originID).LoadNext(ctx)
	return fetched, s.report(ctx, "getReplies", err)
}

func (s *Session) RepliesEnd(originID string) bool {
	return s.repliesOf(originID).End()
}

// HideReplies collapses a thread. Showing it again starts from its first
// page.
func (s *Session) HideReplies(originID string) {
	s.cache.Remove(repliesKey(originID))
}

// Comment finds a cached comment or reply.
func (s *Session) Comment(id string) (model.Comment, bool) {
	for _, prefix := range []string{prefixComments, prefixReplies} {
		for _, key := range s.cache.Keys(prefix) {
			pages, ok := querycache.Lookup[commentPages](s.cache, key)
			if !ok {
				continue
			}
			if _, c, hit := pages.Locate(func(c model.Comment) bool { return c.ID == id }); hit {
				return c, true
			}
		}
	}
	return model.Comment{}, false
}

// CreateComment posts a comment on a post, or a reply when inReplyTo is
// set. Empty text is ignored.
func (s *Session) CreateComment(ctx context.Context, postID string, text string, inReplyTo *model.Comment) (model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Comment{}, nil
	}
	s.logger.Debug("entering CreateComment", "post_id", postID, "reply", inReplyTo != nil)
	if utf8.RuneCountInString(text) > repository.MAX_COMMENT_LENGTH {
		return model.Comment{}, s.report(ctx, "createComment", repository.ErrCommentTooLong)
	}
	var created model.Comment
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:    "createComment",
		AfterAck: true,
		Remote: func(ctx context.Context) error {
			var err error
			created, err = s.repo.Comments.Create(ctx, repository.NewComment{
				AccountID: s.viewerID,
				PostID:    postID,
				Text:      text,
				InReplyTo: inReplyTo,
			})
			return err
		},
		Patch: commentAdded(&created),
	})
	return created, err
}

func (s *Session) IsCommentLiked(id string) bool {
	if on, ok := s.engine.State(commentEntity(id)); ok {
		return on
	}
	c, ok := s.Comment(id)
	return ok && c.Like != nil
}

func (s *Session) ToggleCommentLike(ctx context.Context, id string) (bool, error) {
	s.logger.Debug("entering ToggleCommentLike", "comment_id", id)
	return s.engine.Toggle(ctx, mutation.Toggle{
		Label:   "likeComment",
		Entity:  commentEntity(id),
		Initial: func() bool { return s.IsCommentLiked(id) },
		On:      func(ctx context.Context) error { return s.repo.Comments.Like(ctx, id, s.viewerID) },
		Off:     func(ctx context.Context) error { return s.repo.Comments.Unlike(ctx, id, s.viewerID) },
		Patch:   func(on bool) mutation.Patch { return commentLike(id, s.viewerID, on) },
	})
}

// TapComment feeds one tap on a comment. Only double taps do anything:
// they like the comment.
func (s *Session) TapComment(id string) {
	b := s.tap(commentEntity(id), func() { s.ToggleCommentLike(context.Background(), id) }, nil)
	if b.OnPress != nil {
		b.OnPress()
	}
}

// DeleteComment deletes a comment or reply. Deleting a top-level comment
// collapses its thread; its replies stay in the backend.
func (s *Session) DeleteComment(ctx context.Context, id string) error {
	s.logger.Debug("entering DeleteComment", "comment_id", id)
	comment, cached := s.Comment(id)
	match := func(c model.Comment) bool { return c.ID == id }
	var patch mutation.Patches
	if cached {
		if comment.IsReply() {
			patch = append(patch,
				removal(repliesKey(comment.ReplyOriginID), match),
				replyCount(comment.PostID, comment.ReplyOriginID, -1))
		} else {
			patch = append(patch, removal(commentsKey(comment.PostID), match))
		}
	}
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:  "deleteComment",
		Entity: commentEntity(id),
		Remote: func(ctx context.Context) error { return s.repo.Comments.Delete(ctx, id) },
		Patch:  patch,
	})
	if err != nil {
		return err
	}
	s.engine.Forget(commentEntity(id))
	s.HideReplies(id)
	return nil
}
