package memstore

import (
	"context"
	"fmt"
	"sync"

	"socialclient/pkg/backend"
)

type object struct {
	data        []byte
	contentType string
}

// Objects keeps uploaded objects in memory.
type Objects struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewObjects() *Objects {
	return &Objects{objects: make(map[string]object)}
}

func (o *Objects) Upload(ctx context.Context, bucket string, path string, data []byte, contentType string) error {
	if path == "" {
		return backend.ErrMissingIdentifier
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[bucket+"/"+path] = object{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (o *Objects) URL(ctx context.Context, bucket string, path string) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if _, ok := o.objects[bucket+"/"+path]; !ok {
		return "", fmt.Errorf("object %s/%s: %w", bucket, path, backend.ErrNotFound)
	}
	return fmt.Sprintf("memory://%s/%s", bucket, path), nil
}

// Get returns an uploaded object.
func (o *Objects) Get(bucket string, path string) ([]byte, string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[bucket+"/"+path]
	return obj.data, obj.contentType, ok
}
