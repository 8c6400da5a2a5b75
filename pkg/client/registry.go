package client

import (
	"sync"
)

// Registry hands out one session per signed-in viewer.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
}

func NewRegistry(opts Options) *Registry {
	return &Registry{sessions: make(map[string]*Session), opts: opts}
}

// Get returns the viewer's session, creating it on first use.
func (r *Registry) Get(viewerID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[viewerID]
	if !ok {
		s = NewSession(viewerID, r.opts)
		r.sessions[viewerID] = s
	}
	return s
}

// Drop closes and forgets the viewer's session, e.g. on logout.
func (r *Registry) Drop(viewerID string) {
	r.mu.Lock()
	s, ok := r.sessions[viewerID]
	delete(r.sessions, viewerID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
