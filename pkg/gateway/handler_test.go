package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"socialclient/pkg/auth"
	"socialclient/pkg/backend"
	"socialclient/pkg/backend/memstore"
	"socialclient/pkg/client"
	"socialclient/pkg/model"
	"socialclient/pkg/notify"
	"socialclient/pkg/objects"
	"socialclient/pkg/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type localAuth struct {
	*auth.Authenticator
}

func (a localAuth) Verify(ctx context.Context, token string) (string, error) {
	return a.Authenticator.Verify(token)
}

type fakeInbox struct {
	mu      sync.Mutex
	pending map[string][]notify.Notification
}

func (f *fakeInbox) Push(ctx context.Context, viewerID string, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[viewerID] = append(f.pending[viewerID], n)
	return nil
}

func (f *fakeInbox) Drain(ctx context.Context, viewerID string) ([]notify.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending[viewerID]
	delete(f.pending, viewerID)
	return out, nil
}

type env struct {
	ctx      context.Context
	store    *memstore.Store
	repo     *repository.Repository
	sessions *client.Registry
	server   *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New(memstore.WithConstraints(repository.Unique...))
	objs := memstore.NewObjects()
	repo := repository.New(store, objs)
	inbox := &fakeInbox{pending: map[string][]notify.Notification{}}
	sessions := client.NewRegistry(client.Options{Repository: repo, Objects: objs, Pusher: inbox})
	h := newHandler(repo, localAuth{auth.New(repo, nil, "gateway-secret")}, inbox, sessions, slog.Default())
	server := httptest.NewServer(h.routes())
	t.Cleanup(server.Close)
	return &env{ctx: context.Background(), store: store, repo: repo, sessions: sessions, server: server}
}

func (e *env) do(t *testing.T, method string, path string, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type file struct {
	field string
	name  string
	data  []byte
}

func (e *env) upload(t *testing.T, method string, path string, token string, fields map[string]string, files ...file) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// signup registers and logs in a user, returning its id and token.
func (e *env) signup(t *testing.T, username string) (string, string) {
	t.Helper()
	email := username + "@example.com"
	resp := e.do(t, http.MethodPost, "/register", "", auth.Registration{Email: email, Password: "secret1", Username: username})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[map[string]string](t, resp)["id"]
	resp = e.do(t, http.MethodPost, "/login", "", loginRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return id, decode[map[string]string](t, resp)["token"]
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t)
	_, token := e.signup(t, "ana")

	resp := e.do(t, http.MethodPost, "/register", "", auth.Registration{Email: "ana@example.com", Password: "other1", Username: "ana2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "This Email Is Already Taken", decode[errorResponse](t, resp).Notification.Title)

	resp = e.do(t, http.MethodPost, "/login", "", loginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Oops!", decode[errorResponse](t, resp).Notification.Title)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/state", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/state", "not-a-token", nil).StatusCode)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/state", token, nil).StatusCode)
	assert.Equal(t, 1, e.sessions.Len())

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/logout", token, nil).StatusCode)
	assert.Equal(t, 0, e.sessions.Len())
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/state", token, nil).StatusCode, "signed out token")
	assert.Equal(t, 0, e.sessions.Len())

	resp = e.do(t, http.MethodPost, "/login", "", loginRequest{Email: "ana@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fresh := decode[map[string]string](t, resp)["token"]
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/state", fresh, nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, e.do(t, http.MethodGet, "/login", "", nil).StatusCode)
}

func TestPostLifecycle(t *testing.T) {
	e := newEnv(t)
	_, token := e.signup(t, "ana")

	resp := e.upload(t, http.MethodPost, "/posts", token,
		map[string]string{"caption": "sunset", "placeholder": "LKO2?U%2Tw=w"},
		file{field: "images", name: "sunset.JPG", data: []byte("jpeg bytes")})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.Post](t, resp)
	require.Len(t, created.Media, 1)
	assert.True(t, strings.HasPrefix(created.Media[0].FileURL, "memory://posts/"))
	assert.True(t, strings.HasSuffix(created.Media[0].Path, ".jpg"))
	assert.Equal(t, "LKO2?U%2Tw=w", created.Media[0].Placeholder)

	resp = e.upload(t, http.MethodPost, "/posts", token, map[string]string{"caption": "no images"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	feed := decode[pageResponse[model.Post]](t, e.do(t, http.MethodGet, "/feed", token, nil))
	require.Len(t, feed.Items, 1)
	assert.True(t, feed.End)
	assert.Equal(t, "sunset", feed.Items[0].Caption)

	resp = e.do(t, http.MethodPost, "/posts/"+created.ID+"/like", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[map[string]bool](t, resp)["liked"])
	post := decode[model.Post](t, e.do(t, http.MethodGet, "/posts/"+created.ID, token, nil))
	assert.EqualValues(t, 1, post.LikesCount)
	assert.NotNil(t, post.Like)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/posts/"+created.ID, token, nil).StatusCode)
	feed = decode[pageResponse[model.Post]](t, e.do(t, http.MethodGet, "/feed?refresh=1", token, nil))
	assert.Empty(t, feed.Items)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/posts/"+created.ID, token, nil).StatusCode)
}

func TestFeedPaging(t *testing.T) {
	e := newEnv(t)
	viewer, token := e.signup(t, "ana")
	for i := 0; i < 15; i++ {
		_, err := e.repo.Posts.Create(e.ctx, repository.NewPost{AccountID: viewer, Caption: fmt.Sprintf("post %d", i)})
		require.NoError(t, err)
	}

	feed := decode[pageResponse[model.Post]](t, e.do(t, http.MethodGet, "/feed", token, nil))
	assert.Len(t, feed.Items, 10)
	assert.False(t, feed.End)

	feed = decode[pageResponse[model.Post]](t, e.do(t, http.MethodGet, "/feed?more=1", token, nil))
	assert.Len(t, feed.Items, 15)
	assert.True(t, feed.End)
}

func TestFailedLikeIsNotified(t *testing.T) {
	e := newEnv(t)
	viewer, token := e.signup(t, "ana")
	p, err := e.repo.Posts.Create(e.ctx, repository.NewPost{AccountID: viewer, Caption: "hello"})
	require.NoError(t, err)

	e.store.SetFailures(func(op string, table string) error {
		if table == repository.TablePostLike {
			return errors.New("offline")
		}
		return nil
	})
	resp := e.do(t, http.MethodPost, "/posts/"+p.ID+"/like", token, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Contains(t, body.Error, "offline")
	assert.Equal(t, "Something went wrong", body.Notification.Title)

	pending := decode[[]notify.Notification](t, e.do(t, http.MethodGet, "/notifications", token, nil))
	require.Len(t, pending, 1)
	assert.Equal(t, "Something went wrong", pending[0].Title)
	assert.Empty(t, decode[[]notify.Notification](t, e.do(t, http.MethodGet, "/notifications", token, nil)))

	post := decode[model.Post](t, e.do(t, http.MethodGet, "/posts/"+p.ID, token, nil))
	assert.Zero(t, post.LikesCount)
	assert.Nil(t, post.Like)
}

func TestCommentRoutes(t *testing.T) {
	e := newEnv(t)
	viewer, token := e.signup(t, "ana")
	p, err := e.repo.Posts.Create(e.ctx, repository.NewPost{AccountID: viewer, Caption: "hello"})
	require.NoError(t, err)
	path := "/posts/" + p.ID + "/comments"

	resp := e.do(t, http.MethodPost, path, token, commentRequest{Text: "nice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	top := decode[model.Comment](t, resp)

	resp = e.do(t, http.MethodPost, path, token, commentRequest{Text: "thanks", InReplyTo: top.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reply := decode[model.Comment](t, resp)
	assert.Equal(t, top.ID, reply.ReplyOriginID)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, path, token, commentRequest{Text: "   "}).StatusCode)

	resp = e.do(t, http.MethodPost, path, token, commentRequest{Text: strings.Repeat("a", repository.MAX_COMMENT_LENGTH+1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Comment is too long", decode[errorResponse](t, resp).Notification.Title)

	comments := decode[pageResponse[model.Comment]](t, e.do(t, http.MethodGet, path, token, nil))
	require.Len(t, comments.Items, 1)
	assert.Equal(t, top.ID, comments.Items[0].ID)
	assert.True(t, comments.End)

	replies := decode[pageResponse[model.Comment]](t, e.do(t, http.MethodGet, "/comments/"+top.ID+"/replies", token, nil))
	require.Len(t, replies.Items, 1)
	assert.Equal(t, reply.ID, replies.Items[0].ID)

	resp = e.do(t, http.MethodPost, "/comments/"+reply.ID+"/like", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[map[string]bool](t, resp)["liked"])

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/comments/"+top.ID+"/replies", token, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/comments/"+reply.ID, token, nil).StatusCode)
	replies = decode[pageResponse[model.Comment]](t, e.do(t, http.MethodGet, "/comments/"+top.ID+"/replies", token, nil))
	assert.Empty(t, replies.Items)
}

func TestProfileRoutes(t *testing.T) {
	e := newEnv(t)
	ana, anaToken := e.signup(t, "ana")
	_, bobToken := e.signup(t, "bob")

	bio := "hello there"
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPatch, "/profile", anaToken, repository.ProfileUpdate{Bio: &bio}).StatusCode)
	u := decode[model.User](t, e.do(t, http.MethodGet, "/users/"+ana, anaToken, nil))
	assert.Equal(t, "hello there", u.Bio)

	resp := e.upload(t, http.MethodPut, "/profile/avatar", anaToken, nil, file{field: "avatar", name: "me.png", data: []byte("png bytes")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, resp)["avatar_url"], "memory://avatars/"))

	resp = e.upload(t, http.MethodPut, "/profile/avatar", anaToken, nil,
		file{field: "avatar", name: "huge.png", data: bytes.Repeat([]byte{1}, objects.MAX_AVATAR_BYTES+1)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "Image is too large", decode[errorResponse](t, resp).Notification.Title)

	resp = e.do(t, http.MethodPost, "/users/"+ana+"/follow", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[map[string]bool](t, resp)["following"])
	followers := decode[pageResponse[model.UserFollow]](t, e.do(t, http.MethodGet, "/users/"+ana+"/followers", bobToken, nil))
	require.Len(t, followers.Items, 1)
	assert.Equal(t, "bob", followers.Items[0].Account.Username)

	state := decode[client.StateSnapshot](t, e.do(t, http.MethodGet, "/state", bobToken, nil))
	assert.Equal(t, client.FollowList{UserID: ana, Kind: client.FollowersList}, state.FollowList)

	found := decode[pageResponse[model.AccountSummary]](t, e.do(t, http.MethodGet, "/search?q=AN", bobToken, nil))
	require.Len(t, found.Items, 1)
	assert.Equal(t, ana, found.Items[0].ID)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/users/missing", bobToken, nil).StatusCode)
}

func TestConversationRoutes(t *testing.T) {
	e := newEnv(t)
	_, anaToken := e.signup(t, "ana")
	bob, bobToken := e.signup(t, "bob")

	resp := e.do(t, http.MethodPost, "/conversations", anaToken, messageRequest{Text: "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	recipients := decode[[]model.AccountSummary](t, e.do(t, http.MethodPost, "/recipients/"+bob, anaToken, nil))
	require.Len(t, recipients, 1)
	assert.Equal(t, "bob", recipients[0].Username)

	resp = e.do(t, http.MethodPost, "/conversations", anaToken, messageRequest{Text: "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decode[model.Conversation](t, resp)
	state := decode[client.StateSnapshot](t, e.do(t, http.MethodGet, "/state", anaToken, nil))
	assert.Empty(t, state.Recipients)

	inbox := decode[pageResponse[model.Conversation]](t, e.do(t, http.MethodGet, "/conversations", bobToken, nil))
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, conv.ID, inbox.Items[0].ID)

	resp = e.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", bobToken, messageRequest{Text: "hello ana"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[model.Message](t, resp)

	opened := decode[model.Conversation](t, e.do(t, http.MethodGet, "/conversations/"+conv.ID, bobToken, nil))
	assert.Len(t, opened.Messages, 2)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/conversations/"+conv.ID+"/messages/"+sent.ID, bobToken, nil).StatusCode)
	opened = decode[model.Conversation](t, e.do(t, http.MethodGet, "/conversations/"+conv.ID, bobToken, nil))
	assert.Len(t, opened.Messages, 1)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/conversations/"+conv.ID+"/read", bobToken, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/conversations/"+conv.ID, bobToken, nil).StatusCode)
	inbox = decode[pageResponse[model.Conversation]](t, e.do(t, http.MethodGet, "/conversations", bobToken, nil))
	assert.Empty(t, inbox.Items)
}

func TestLiveConversation(t *testing.T) {
	e := newEnv(t)
	ana, anaToken := e.signup(t, "ana")
	bob, bobToken := e.signup(t, "bob")
	conv, err := e.repo.Conversations.Create(e.ctx, bob, []string{ana}, "first")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/conversations/" + conv.ID + "/live?token=" + anaToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial model.Conversation
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Len(t, initial.Messages, 1)

	resp := e.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", bobToken, messageRequest{Text: "second"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var update model.Conversation
	require.NoError(t, conn.ReadJSON(&update))
	require.Len(t, update.Messages, 2)
	assert.Equal(t, "second", update.Messages[1].Text)
}

func TestStatusOf(t *testing.T) {
	for _, test := range []struct {
		err  error
		want int
	}{
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{backend.Label("getPost", backend.ErrNotFound), http.StatusNotFound},
		{repository.ErrUserNotFound, http.StatusNotFound},
		{objects.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{repository.ErrCommentTooLong, http.StatusBadRequest},
		{backend.Label("likePost", backend.UniqueViolation("post_like_post_id_account_id_key", nil)), http.StatusConflict},
		{&backend.RemoteError{Code: auth.CODE_ALREADY_REGISTERED}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		assert.Equal(t, test.want, statusOf(test.err), test.err.Error())
	}
}

func TestRevocationsExpire(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newRevocations(func() time.Time { return now })
	r.revoke("a")
	assert.True(t, r.has("a"))
	assert.False(t, r.has("b"))

	now = now.Add(auth.TOKEN_TTL)
	assert.False(t, r.has("a"))
	r.revoke("b")
	assert.Len(t, r.until, 1, "expired entries are pruned")
}
