package gateway

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"socialclient/pkg/backend"
	"socialclient/pkg/client"
	"socialclient/pkg/model"

	"github.com/gorilla/mux"
)

func (h *handler) feed(w http.ResponseWriter, r *http.Request, s *client.Session) {
	ctx := r.Context()
	var err error
	switch {
	case flag(r, "refresh"):
		_, err = s.RefreshFeed(ctx)
	case flag(r, "more"):
		if _, err = s.Feed(ctx); err == nil {
			_, err = s.NextFeedPage(ctx)
		}
	default:
		_, err = s.Feed(ctx)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(s.FeedItems(), s.FeedEnd()))
}

func (h *handler) getPost(w http.ResponseWriter, r *http.Request, s *client.Session) {
	p, err := s.Post(r.Context(), mux.Vars(r)["postId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// images reads the files of a multipart field. Placeholders are matched to
// files by position.
func images(form *multipart.Form, field string) ([]client.Image, error) {
	placeholders := form.Value["placeholder"]
	var out []client.Image
	for i, fh := range form.File[field] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		img := client.Image{
			Data:        data,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
		}
		if i < len(placeholders) {
			img.Placeholder = placeholders[i]
		}
		out = append(out, img)
	}
	return out, nil
}

func parseUpload(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MAX_UPLOAD_BYTES)
	if err := r.ParseMultipartForm(MAX_UPLOAD_BYTES); err != nil {
		return nil, backend.Label("parseUpload", errors.Join(backend.ErrMissingIdentifier, err))
	}
	return r.MultipartForm, nil
}

func (h *handler) createPost(w http.ResponseWriter, r *http.Request, s *client.Session) {
	form, err := parseUpload(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	imgs, err := images(form, "images")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(imgs) == 0 {
		h.writeError(w, backend.Label("createPost", fmt.Errorf("a post needs at least one image: %w", backend.ErrMissingIdentifier)))
		return
	}
	p, err := s.CreatePost(r.Context(), client.NewPost{
		AlbumID:  r.FormValue("album_id"),
		Caption:  r.FormValue("caption"),
		Location: r.FormValue("location"),
		Images:   imgs,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) deletePost(w http.ResponseWriter, r *http.Request, s *client.Session) {
	if err := s.DeletePost(r.Context(), mux.Vars(r)["postId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) likePost(w http.ResponseWriter, r *http.Request, s *client.Session) {
	liked, err := s.TogglePostLike(r.Context(), mux.Vars(r)["postId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

// tapPost feeds one tap to the post's double-tap detector. A second tap
// within the window likes the post.
func (h *handler) tapPost(w http.ResponseWriter, r *http.Request, s *client.Session) {
	s.TapPost(mux.Vars(r)["postId"])
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) comments(w http.ResponseWriter, r *http.Request, s *client.Session) {
	ctx := r.Context()
	postID := mux.Vars(r)["postId"]
	comments, err := s.Comments(ctx, postID)
	if err == nil && flag(r, "more") {
		if _, err = s.NextCommentsPage(ctx, postID); err == nil {
			comments, err = s.Comments(ctx, postID)
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(comments, s.CommentsEnd(postID)))
}

type commentRequest struct {
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to"`
}

func (h *handler) createComment(w http.ResponseWriter, r *http.Request, s *client.Session) {
	ctx := r.Context()
	var req commentRequest
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	var target *model.Comment
	if req.InReplyTo != "" {
		c, ok := s.Comment(req.InReplyTo)
		if !ok {
			var err error
			if c, err = h.repo.Comments.Get(ctx, s.ViewerID(), req.InReplyTo); err != nil {
				h.writeError(w, err)
				return
			}
		}
		target = &c
	}
	created, err := s.CreateComment(ctx, mux.Vars(r)["postId"], req.Text, target)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if created.ID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) replies(w http.ResponseWriter, r *http.Request, s *client.Session) {
	ctx := r.Context()
	originID := mux.Vars(r)["commentId"]
	replies, err := s.Replies(ctx, originID)
	if err == nil && flag(r, "more") {
		if _, err = s.NextRepliesPage(ctx, originID); err == nil {
			replies, err = s.Replies(ctx, originID)
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page(replies, s.RepliesEnd(originID)))
}

func (h *handler) hideReplies(w http.ResponseWriter, r *http.Request, s *client.Session) {
	s.HideReplies(mux.Vars(r)["commentId"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) likeComment(w http.ResponseWriter, r *http.Request, s *client.Session) {
	liked, err := s.ToggleCommentLike(r.Context(), mux.Vars(r)["commentId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func (h *handler) tapComment(w http.ResponseWriter, r *http.Request, s *client.Session) {
	s.TapComment(mux.Vars(r)["commentId"])
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) deleteComment(w http.ResponseWriter, r *http.Request, s *client.Session) {
	if err := s.DeleteComment(r.Context(), mux.Vars(r)["commentId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
