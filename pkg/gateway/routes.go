package gateway

import (
	"net/http"

	"socialclient/pkg/auth"
	"socialclient/pkg/client"
	"socialclient/pkg/notify"

	"github.com/ServiceWeaver/weaver"
	"github.com/gorilla/mux"
)

// route registers fn under path for the given methods, instrumented under
// label.
func route(r *mux.Router, label string, path string, fn http.HandlerFunc, methods ...string) {
	r.Handle(path, weaver.InstrumentHandlerFunc(label, fn)).Methods(methods...)
}

func (h *handler) routes() http.Handler {
	r := mux.NewRouter()
	a := h.authenticated

	route(r, "register", "/register", h.register, http.MethodPost)
	route(r, "login", "/login", h.login, http.MethodPost)
	route(r, "logout", "/logout", a(h.logout), http.MethodPost)

	route(r, "feed", "/feed", a(h.feed), http.MethodGet)
	route(r, "create_post", "/posts", a(h.createPost), http.MethodPost)
	route(r, "get_post", "/posts/{postId}", a(h.getPost), http.MethodGet)
	route(r, "delete_post", "/posts/{postId}", a(h.deletePost), http.MethodDelete)
	route(r, "like_post", "/posts/{postId}/like", a(h.likePost), http.MethodPost)
	route(r, "tap_post", "/posts/{postId}/tap", a(h.tapPost), http.MethodPost)

	route(r, "comments", "/posts/{postId}/comments", a(h.comments), http.MethodGet)
	route(r, "create_comment", "/posts/{postId}/comments", a(h.createComment), http.MethodPost)
	route(r, "replies", "/comments/{commentId}/replies", a(h.replies), http.MethodGet)
	route(r, "hide_replies", "/comments/{commentId}/replies", a(h.hideReplies), http.MethodDelete)
	route(r, "like_comment", "/comments/{commentId}/like", a(h.likeComment), http.MethodPost)
	route(r, "tap_comment", "/comments/{commentId}/tap", a(h.tapComment), http.MethodPost)
	route(r, "delete_comment", "/comments/{commentId}", a(h.deleteComment), http.MethodDelete)

	route(r, "get_user", "/users/{userId}", a(h.getUser), http.MethodGet)
	route(r, "followers", "/users/{userId}/followers", a(h.followers), http.MethodGet)
	route(r, "following", "/users/{userId}/following", a(h.following), http.MethodGet)
	route(r, "follow", "/users/{userId}/follow", a(h.follow), http.MethodPost)
	route(r, "search", "/search", a(h.search), http.MethodGet)
	route(r, "update_profile", "/profile", a(h.updateProfile), http.MethodPatch)
	route(r, "upload_avatar", "/profile/avatar", a(h.uploadAvatar), http.MethodPut)
	route(r, "create_album", "/albums", a(h.createAlbum), http.MethodPost)
	route(r, "album_media", "/albums/{albumId}", a(h.albumMedia), http.MethodGet)

	route(r, "conversations", "/conversations", a(h.conversations), http.MethodGet)
	route(r, "start_conversation", "/conversations", a(h.startConversation), http.MethodPost)
	route(r, "get_conversation", "/conversations/{conversationId}", a(h.getConversation), http.MethodGet)
	route(r, "leave_conversation", "/conversations/{conversationId}", a(h.leaveConversation), http.MethodDelete)
	route(r, "send_message", "/conversations/{conversationId}/messages", a(h.sendMessage), http.MethodPost)
	route(r, "delete_message", "/conversations/{conversationId}/messages/{messageId}", a(h.deleteMessage), http.MethodDelete)
	route(r, "mark_read", "/conversations/{conversationId}/read", a(h.markRead), http.MethodPost)
	route(r, "live_conversation", "/conversations/{conversationId}/live", a(h.live), http.MethodGet)
	route(r, "add_recipient", "/recipients/{userId}", a(h.addRecipient), http.MethodPost)
	route(r, "remove_recipient", "/recipients/{userId}", a(h.removeRecipient), http.MethodDelete)

	route(r, "state", "/state", a(h.state), http.MethodGet)
	route(r, "notifications", "/notifications", a(h.notifications), http.MethodGet)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Debug("entering register", "username", req.Username)
	id, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// logout revokes the token it was called with and closes the viewer's
// session. Other tokens of the viewer stay valid.
func (h *handler) logout(w http.ResponseWriter, r *http.Request, s *client.Session) {
	h.revoked.revoke(bearer(r))
	h.sessions.Drop(s.ViewerID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) state(w http.ResponseWriter, r *http.Request, s *client.Session) {
	writeJSON(w, http.StatusOK, s.State().Snapshot())
}

// notifications returns what was pushed to the viewer's inbox followed by
// what the session kept locally when a push failed.
func (h *handler) notifications(w http.ResponseWriter, r *http.Request, s *client.Session) {
	pushed, err := h.inbox.Drain(r.Context(), s.ViewerID())
	if err != nil {
		h.logger.Error("error draining inbox", "viewer", s.ViewerID(), "msg", err.Error())
	}
	all := append(pushed, s.Notifications()...)
	if all == nil {
		all = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, all)
}
