package services

import (
	"context"

	"socialclient/pkg/backend"
	"socialclient/pkg/backend/memstore"
	"socialclient/pkg/objects"
	"socialclient/pkg/repository"
	"socialclient/pkg/storage"

	"github.com/ServiceWeaver/weaver"
	"github.com/redis/go-redis/v9"
)

// MediaService stores avatars and post images and signs their URLs.
type MediaService interface {
	Upload(ctx context.Context, bucket string, name string, data []byte, contentType string) error
	URL(ctx context.Context, bucket string, name string) (string, error)
}

type mediaService struct {
	weaver.Implements[MediaService]
	weaver.WithConfig[mediaServiceOptions]
	store backend.ObjectStore
}

type mediaServiceOptions struct {
	MinioEndpoint  string `toml:"minio_endpoint"`
	MinioAccessKey string `toml:"minio_access_key"`
	MinioSecretKey string `toml:"minio_secret_key"`
	MinioUseSSL    bool   `toml:"minio_use_ssl"`
	RedisAddr      string `toml:"redis_address"`
	RedisPort      int    `toml:"redis_port"`
}

func (m *mediaService) Init(ctx context.Context) error {
	logger := m.Logger(ctx)
	cfg := m.Config()
	if cfg.MinioEndpoint == "" {
		m.store = memstore.NewObjects()
		logger.Info("media service running!", "objects", "memory")
		return nil
	}

	client, err := storage.MinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	var cache redis.Cmdable
	if rc := storage.RedisClient(cfg.RedisAddr, cfg.RedisPort); rc != nil {
		cache = rc
	}
	store := objects.New(client, cache)
	if err := store.EnsureBuckets(ctx, repository.BucketAvatars, repository.BucketPosts); err != nil {
		logger.Error("error creating buckets", "msg", err.Error())
		return err
	}
	m.store = store
	logger.Info("media service running!", "minio_endpoint", cfg.MinioEndpoint, "redis_addr", cfg.RedisAddr, "redis_port", cfg.RedisPort)
	return nil
}

func (m *mediaService) Upload(ctx context.Context, bucket string, name string, data []byte, contentType string) error {
	logger := m.Logger(ctx)
	logger.Debug("entering Upload", "bucket", bucket, "name", name, "size", len(data))
	if err := m.store.Upload(ctx, bucket, name, data, contentType); err != nil {
		logger.Error("error uploading object", "bucket", bucket, "name", name, "msg", err.Error())
		return err
	}
	return nil
}

func (m *mediaService) URL(ctx context.Context, bucket string, name string) (string, error) {
	return m.store.URL(ctx, bucket, name)
}
