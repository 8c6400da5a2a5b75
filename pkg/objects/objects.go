// Package objects stores images in S3-compatible buckets and hands out
// presigned URLs, remembering each URL in Redis until shortly before it
// expires.
package objects

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
)

// MAX_AVATAR_BYTES is the largest avatar accepted for upload.
const MAX_AVATAR_BYTES = 2 * 1024 * 1024

const (
	URL_EXPIRY         = 24 * time.Hour
	URL_EXPIRY_MARGIN  = time.Minute
	defaultContentType = "application/octet-stream"
)

var ErrTooLarge = errors.New("image is too large")

// Client is the subset of the minio client used by Store.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

type Store struct {
	client Client
	cache  redis.Cmdable
	expiry time.Duration
}

// New returns a Store over client. cache may be nil, in which case every
// URL request presigns a fresh URL.
func New(client Client, cache redis.Cmdable) *Store {
	return &Store{client: client, cache: cache, expiry: URL_EXPIRY}
}

// EnsureBuckets creates the named buckets when missing.
func (s *Store) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("checking bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, bucket string, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err := s.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", bucket, name, err)
	}
	if s.cache != nil {
		s.cache.Del(ctx, cacheKey(bucket, name))
	}
	return nil
}

// URL returns a presigned GET URL for an object.
func (s *Store) URL(ctx context.Context, bucket string, name string) (string, error) {
	key := cacheKey(bucket, name)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("reading signed url of %s/%s: %w", bucket, name, err)
		}
	}
	signed, err := s.client.PresignedGetObject(ctx, bucket, name, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("signing %s/%s: %w", bucket, name, err)
	}
	out := signed.String()
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, out, s.expiry-URL_EXPIRY_MARGIN).Err(); err != nil {
			return "", fmt.Errorf("caching signed url of %s/%s: %w", bucket, name, err)
		}
	}
	return out, nil
}

func cacheKey(bucket string, name string) string {
	return "signed-url:" + bucket + "/" + name
}

// CheckSize rejects avatars above MAX_AVATAR_BYTES.
func CheckSize(data []byte) error {
	if len(data) > MAX_AVATAR_BYTES {
		return ErrTooLarge
	}
	return nil
}

// ContentName names an object after the SHA-256 of its bytes, keeping the
// extension of the original file name.
func ContentName(data []byte, filename string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + path.Ext(filename)
}
