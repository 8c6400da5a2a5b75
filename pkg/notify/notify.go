// Package notify turns failed operations into the user-facing notifications
// shown by the client shell.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"socialclient/pkg/auth"
	"socialclient/pkg/backend"
	"socialclient/pkg/metrics"
	"socialclient/pkg/objects"
	"socialclient/pkg/repository"

	"github.com/ServiceWeaver/weaver"
)

type Notification struct {
	weaver.AutoMarshal
	Title   string `json:"title"`
	Message string `json:"message"`
}

var (
	usernameTaken = Notification{
		Title:   "This Username Is Already Taken",
		Message: "Please choose a new username and try again.",
	}
	emailTaken = Notification{
		Title:   "This Email Is Already Taken",
		Message: "Perhaps you need to reset your password and try again.",
	}
	badLogin = Notification{
		Title:   "Oops!",
		Message: "It looks like something went wrong with your login attempt. Please verify your username and password and try again.",
	}
	tooLarge = Notification{
		Title:   "Image is too large",
		Message: "Please select an image under 2MB.",
	}
	userNotFound = Notification{
		Title:   "User not found",
		Message: "The user you are looking for does not exist.",
	}
	missingIdentifier = Notification{
		Title:   "Something went wrong",
		Message: "The item you are looking for is no longer available.",
	}
	commentTooLong = Notification{
		Title:   "Comment is too long",
		Message: "Please keep comments under 500 characters.",
	}
	generic = Notification{
		Title:   "Something went wrong",
		Message: "Please try again later.",
	}
)

// FromError maps an error to the notification shown for it.
func FromError(err error) Notification {
	var remote *backend.RemoteError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return badLogin
	case errors.Is(err, objects.ErrTooLarge):
		return tooLarge
	case errors.Is(err, repository.ErrUserNotFound):
		return userNotFound
	case errors.Is(err, repository.ErrCommentTooLong):
		return commentTooLong
	case errors.Is(err, backend.ErrMissingIdentifier):
		return missingIdentifier
	case errors.As(err, &remote):
		if remote.Code == auth.CODE_ALREADY_REGISTERED || strings.Contains(err.Error(), "User already registered") {
			return emailTaken
		}
		if remote.Code == backend.CodeUniqueViolation {
			msg := err.Error()
			switch {
			case strings.Contains(msg, "credential_email_key"):
				return emailTaken
			case strings.Contains(msg, "username"):
				return usernameTaken
			}
		}
	}
	return generic
}

// CENTER_CAPACITY bounds the notifications a Center keeps before dropping
// the oldest.
const CENTER_CAPACITY = 32

// Center collects the notifications of one session until the shell drains
// them.
type Center struct {
	mu      sync.Mutex
	pending []Notification
}

func NewCenter() *Center {
	return &Center{}
}

func (c *Center) Report(ctx context.Context, label string, err error) {
	if err == nil {
		return
	}
	metrics.Notifications.Inc()
	c.Add(FromError(err))
}

// Add queues a notification raised elsewhere.
func (c *Center) Add(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, n)
	if len(c.pending) > CENTER_CAPACITY {
		c.pending = c.pending[len(c.pending)-CENTER_CAPACITY:]
	}
}

// Drain returns and forgets the pending notifications, oldest first.
func (c *Center) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// Pusher delivers notifications outside the process.
type Pusher interface {
	Push(ctx context.Context, viewerID string, n Notification) error
}

// Forwarder reports to a Pusher on behalf of one viewer, keeping a local
// copy in a Center when the push fails.
type Forwarder struct {
	viewerID string
	pusher   Pusher
	fallback *Center
}

func NewForwarder(viewerID string, pusher Pusher, fallback *Center) *Forwarder {
	return &Forwarder{viewerID: viewerID, pusher: pusher, fallback: fallback}
}

func (f *Forwarder) Report(ctx context.Context, label string, err error) {
	if err == nil {
		return
	}
	if perr := f.pusher.Push(ctx, f.viewerID, FromError(err)); perr != nil && f.fallback != nil {
		f.fallback.Report(ctx, label, err)
		return
	}
	metrics.Notifications.Inc()
}
