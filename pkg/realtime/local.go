package realtime

import (
	"context"
	"sync"

	"socialclient/pkg/backend"
)

// Local delivers changes to subscribers in the same process.
type Local struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(backend.Change)
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[int]func(backend.Change))}
}

func (l *Local) Publish(ctx context.Context, change backend.Change) error {
	l.mu.RLock()
	fns := make([]func(backend.Change), 0, len(l.subs[change.Table]))
	for _, fn := range l.subs[change.Table] {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(change)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, table string, fn func(backend.Change)) (backend.Unsubscribe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	if l.subs[table] == nil {
		l.subs[table] = make(map[int]func(backend.Change))
	}
	l.subs[table][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[table], id)
		})
	}, nil
}
