// Package gateway exposes the per-viewer client core to the UI shell over
// HTTP and websockets.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"socialclient/pkg/auth"
	"socialclient/pkg/client"
	"socialclient/pkg/querycache"
	"socialclient/pkg/repository"
	"socialclient/pkg/services"
	"socialclient/pkg/storage"

	"github.com/ServiceWeaver/weaver"
)

type server struct {
	weaver.Implements[weaver.Main]
	weaver.WithConfig[serverOptions]
	userService         weaver.Ref[services.UserService]
	mediaService        weaver.Ref[services.MediaService]
	notificationService weaver.Ref[services.NotificationService]
	lis                 weaver.Listener `weaver:"gateway"`
}

type serverOptions struct {
	storage.Options
	CacheTTL        string `toml:"cache_ttl"`
	CacheMaxEntries int    `toml:"cache_max_entries"`
}

func (o serverOptions) cache() ([]querycache.Option, error) {
	var opts []querycache.Option
	if o.CacheTTL != "" {
		ttl, err := time.ParseDuration(o.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache_ttl %q: %w", o.CacheTTL, err)
		}
		opts = append(opts, querycache.WithTTL(ttl))
	}
	if o.CacheMaxEntries > 0 {
		opts = append(opts, querycache.WithMaxEntries(o.CacheMaxEntries))
	}
	return opts, nil
}

// authenticator adapts the user service to the handler's Authenticator.
type authenticator struct {
	services.UserService
}

func (a authenticator) Register(ctx context.Context, r auth.Registration) (string, error) {
	return a.UserService.Register(ctx, r.Email, r.Password, r.Username, r.FirstName, r.LastName, r.Birthdate)
}

func Serve(ctx context.Context, s *server) error {
	logger := s.Logger(ctx)
	cacheOpts, err := s.Config().cache()
	if err != nil {
		return err
	}
	store, release, err := storage.OpenStore(ctx, s.Config().Options, logger)
	if err != nil {
		logger.Error("error opening store", "msg", err.Error())
		return err
	}
	defer release()

	objects := s.mediaService.Get()
	inbox := s.notificationService.Get()
	repo := repository.New(store, objects)
	sessions := client.NewRegistry(client.Options{
		Repository: repo,
		Objects:    objects,
		Pusher:     inbox,
		Logger:     logger,
		Cache:      cacheOpts,
	})
	h := newHandler(repo, authenticator{s.userService.Get()}, inbox, sessions, logger)
	logger.Info("gateway available", "addr", s.lis, "store_driver", s.Config().Driver)
	return http.Serve(s.lis, h.routes())
}
