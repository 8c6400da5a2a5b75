package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"socialclient/pkg/auth"
	"socialclient/pkg/backend"
	"socialclient/pkg/client"
	"socialclient/pkg/notify"
	"socialclient/pkg/objects"
	"socialclient/pkg/repository"

	"github.com/gorilla/websocket"
)

// MAX_UPLOAD_BYTES bounds the multipart bodies of post and avatar uploads.
const MAX_UPLOAD_BYTES = 32 << 20

type Authenticator interface {
	Register(ctx context.Context, r auth.Registration) (string, error)
	Login(ctx context.Context, email string, password string) (string, error)
	Verify(ctx context.Context, token string) (string, error)
}

// Inbox keeps the notifications of every viewer until the shell polls them.
type Inbox interface {
	notify.Pusher
	Drain(ctx context.Context, viewerID string) ([]notify.Notification, error)
}

type handler struct {
	repo     *repository.Repository
	auth     Authenticator
	inbox    Inbox
	sessions *client.Registry
	revoked  *revocations
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newHandler(repo *repository.Repository, a Authenticator, inbox Inbox, sessions *client.Registry, logger *slog.Logger) *handler {
	return &handler{
		repo:     repo,
		auth:     a,
		inbox:    inbox,
		sessions: sessions,
		revoked:  newRevocations(time.Now),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *client.Session)

// authenticated resolves the bearer token of a request to the viewer's
// session. Websocket clients cannot set headers and pass the token as a
// query parameter instead.
func (h *handler) authenticated(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" || h.revoked.has(token) {
			h.writeError(w, auth.ErrInvalidCredentials)
			return
		}
		viewerID, err := h.auth.Verify(r.Context(), token)
		if err != nil {
			h.logger.Debug("rejected token", "path", r.URL.Path, "msg", err.Error())
			h.writeError(w, auth.ErrInvalidCredentials)
			return
		}
		fn(w, r, h.sessions.Get(viewerID))
	}
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// revocations holds the tokens signed out through /logout until they would
// have expired anyway.
type revocations struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func newRevocations(now func() time.Time) *revocations {
	return &revocations{until: make(map[string]time.Time), now: now}
}

func (r *revocations) revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for t, until := range r.until {
		if !now.Before(until) {
			delete(r.until, t)
		}
	}
	r.until[token] = now.Add(auth.TOKEN_TTL)
}

func (r *revocations) has(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.until[token]
	return ok && r.now().Before(until)
}

type errorResponse struct {
	Error        string              `json:"error"`
	Notification notify.Notification `json:"notification"`
}

type pageResponse[T any] struct {
	Items []T  `json:"items"`
	End   bool `json:"end"`
}

func page[T any](items []T, end bool) pageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return pageResponse[T]{Items: items, End: end}
}

func statusOf(err error) int {
	var remote *backend.RemoteError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, objects.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, repository.ErrCommentTooLong), errors.Is(err, backend.ErrMissingIdentifier):
		return http.StatusBadRequest
	case errors.As(err, &remote):
		if remote.Code == backend.CodeUniqueViolation || remote.Code == auth.CODE_ALREADY_REGISTERED {
			return http.StatusConflict
		}
		if remote.Code == backend.CodeNotFound {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("error handling request", "msg", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Notification: notify.FromError(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes a request body. An empty body leaves v untouched.
func readJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return backend.Label("decodeRequest", errors.Join(backend.ErrMissingIdentifier, err))
	}
	return nil
}

func flag(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true":
		return true
	}
	return false
}
