package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"socialclient/pkg/auth"
	"socialclient/pkg/backend"
	"socialclient/pkg/objects"
	"socialclient/pkg/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"username taken", backend.Label("createAccount", backend.UniqueViolation("account_username_key", nil)), "This Username Is Already Taken"},
		{"email registered", &backend.RemoteError{Op: "register", Code: auth.CODE_ALREADY_REGISTERED, Message: "User already registered"}, "This Email Is Already Taken"},
		{"email constraint", backend.Label("register", backend.UniqueViolation("credential_email_key", nil)), "This Email Is Already Taken"},
		{"bad login", fmt.Errorf("login: %w", auth.ErrInvalidCredentials), "Oops!"},
		{"too large", objects.ErrTooLarge, "Image is too large"},
		{"missing user", backend.Label("getAccount", fmt.Errorf("account x: %w", repository.ErrUserNotFound)), "User not found"},
		{"missing id", backend.Label("likePost", backend.ErrMissingIdentifier), "Something went wrong"},
		{"duplicate like", backend.Label("likePost", backend.UniqueViolation("post_like_post_id_account_id_key", nil)), "Something went wrong"},
		{"anything else", errors.New("boom"), "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.title, FromError(tt.err).Title)
		})
	}
}

func TestCenterDrain(t *testing.T) {
	c := NewCenter()
	c.Report(context.Background(), "likePost", nil)
	assert.Empty(t, c.Drain())

	for i := 0; i < CENTER_CAPACITY+5; i++ {
		c.Report(context.Background(), "likePost", objects.ErrTooLarge)
	}
	got := c.Drain()
	assert.Len(t, got, CENTER_CAPACITY)
	assert.Equal(t, "Image is too large", got[0].Title)
	assert.Empty(t, c.Drain())
}

type fakePusher struct {
	pushed []Notification
	err    error
}

func (p *fakePusher) Push(ctx context.Context, viewerID string, n Notification) error {
	if p.err != nil {
		return p.err
	}
	p.pushed = append(p.pushed, n)
	return nil
}

func TestForwarder(t *testing.T) {
	pusher := &fakePusher{}
	fallback := NewCenter()
	f := NewForwarder("viewer", pusher, fallback)

	f.Report(context.Background(), "login", auth.ErrInvalidCredentials)
	require.Len(t, pusher.pushed, 1)
	assert.Equal(t, "Oops!", pusher.pushed[0].Title)
	assert.Empty(t, fallback.Drain())

	pusher.err = errors.New("redis down")
	f.Report(context.Background(), "login", auth.ErrInvalidCredentials)
	assert.Len(t, fallback.Drain(), 1)
}
