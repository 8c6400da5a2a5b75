package services

import (
	"context"
	"fmt"

	"socialclient/pkg/auth"
	"socialclient/pkg/repository"
	"socialclient/pkg/storage"

	"github.com/ServiceWeaver/weaver"
)

type UserService interface {
	Register(ctx context.Context, email string, password string, username string, firstName string, lastName string, birthdate string) (string, error)
	Login(ctx context.Context, email string, password string) (string, error)
	Verify(ctx context.Context, token string) (string, error)
}

type userService struct {
	weaver.Implements[UserService]
	weaver.WithConfig[userServiceOptions]
	mediaService  weaver.Ref[MediaService]
	authenticator *auth.Authenticator
	release       func()
}

type userServiceOptions struct {
	storage.Options
	MemCachedAddr string `toml:"memcached_address"`
	MemCachedPort int    `toml:"memcached_port"`
	Secret        string `toml:"jwt_secret"`
}

func (u *userService) Init(ctx context.Context) error {
	logger := u.Logger(ctx)
	if u.Config().Secret == "" {
		err := fmt.Errorf("jwt_secret must be set")
		logger.Error(err.Error())
		return err
	}
	store, release, err := storage.OpenStore(ctx, u.Config().Options, logger)
	if err != nil {
		logger.Error("error opening store", "msg", err.Error())
		return err
	}
	u.release = release

	var cache auth.Cache
	if client := storage.MemCachedClient(u.Config().MemCachedAddr, u.Config().MemCachedPort); client != nil {
		cache = client
	}
	repo := repository.New(store, u.mediaService.Get())
	u.authenticator = auth.New(repo, cache, u.Config().Secret)

	logger.Info("user service running!",
		"store_driver", u.Config().Driver,
		"memcached_addr", u.Config().MemCachedAddr, "memcached_port", u.Config().MemCachedPort,
	)
	return nil
}

func (u *userService) Shutdown(ctx context.Context) error {
	if u.release != nil {
		u.release()
	}
	return nil
}

func (u *userService) Register(ctx context.Context, email string, password string, username string, firstName string, lastName string, birthdate string) (string, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering Register", "email", email, "username", username)
	id, err := u.authenticator.Register(ctx, auth.Registration{
		Email:     email,
		Password:  password,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Birthdate: birthdate,
	})
	if err != nil {
		logger.Error("error registering user", "username", username, "msg", err.Error())
		return "", err
	}
	return id, nil
}

func (u *userService) Login(ctx context.Context, email string, password string) (string, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering Login", "email", email)
	token, err := u.authenticator.Login(ctx, email, password)
	if err != nil {
		logger.Debug("login rejected", "email", email, "msg", err.Error())
		return "", err
	}
	return token, nil
}

func (u *userService) Verify(ctx context.Context, token string) (string, error) {
	return u.authenticator.Verify(token)
}
