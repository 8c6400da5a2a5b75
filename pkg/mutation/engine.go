// Package mutation applies optimistic cache patches around remote writes.
// A patch is applied before the remote call and reverted when the call
// fails; failures are handed to a single Reporter.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"socialclient/pkg/metrics"
	"socialclient/pkg/querycache"
)

var ErrNoRemote = errors.New("mutation has no remote call")

// Patch edits cached snapshots. Revert must undo exactly what Apply did.
type Patch interface {
	Apply(c *querycache.Cache)
	Revert(c *querycache.Cache)
}

// Funcs adapts a pair of functions to Patch.
type Funcs struct {
	OnApply  func(c *querycache.Cache)
	OnRevert func(c *querycache.Cache)
}

func (f Funcs) Apply(c *querycache.Cache) {
	if f.OnApply != nil {
		f.OnApply(c)
	}
}

func (f Funcs) Revert(c *querycache.Cache) {
	if f.OnRevert != nil {
		f.OnRevert(c)
	}
}

// Patches applies in order and reverts in reverse order.
type Patches []Patch

func (ps Patches) Apply(c *querycache.Cache) {
	for _, p := range ps {
		p.Apply(c)
	}
}

func (ps Patches) Revert(c *querycache.Cache) {
	for i := len(ps) - 1; i >= 0; i-- {
		ps[i].Revert(c)
	}
}

// Reporter is the one path every failed mutation goes through.
type Reporter interface {
	Report(ctx context.Context, label string, err error)
}

type Mutation struct {
	Label string
	// Entity serializes mutations touching the same entity, e.g. "post/<id>".
	Entity string
	Remote func(ctx context.Context) error
	Patch  Patch
	// AfterAck defers the patch until the remote write succeeded, for
	// creates whose rows only exist once the server assigned them.
	AfterAck bool
	// Feedback is a fire-and-forget cue that never gates the mutation.
	Feedback func()
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

type Engine struct {
	cache    *querycache.Cache
	reporter Reporter
	logger   *slog.Logger

	mu      sync.Mutex
	locks   map[string]*entityLock
	toggles map[string]bool
}

func NewEngine(cache *querycache.Cache, reporter Reporter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cache:    cache,
		reporter: reporter,
		logger:   logger,
		locks:    make(map[string]*entityLock),
		toggles:  make(map[string]bool),
	}
}

func (e *Engine) Cache() *querycache.Cache { return e.cache }

// Run executes m while holding its entity lock.
func (e *Engine) Run(ctx context.Context, m Mutation) error {
	unlock := e.lock(m.Entity)
	defer unlock()
	return e.run(ctx, m)
}

func (e *Engine) run(ctx context.Context, m Mutation) error {
	if m.Remote == nil {
		return ErrNoRemote
	}
	logger := e.logger
	logger.Debug("entering mutation", "label", m.Label, "entity", m.Entity)
	metrics.Mutations.Get(metrics.MutationLabel{Mutation: m.Label}).Inc()

	if m.Feedback != nil {
		go m.Feedback()
	}
	optimistic := m.Patch != nil && !m.AfterAck
	if optimistic {
		m.Patch.Apply(e.cache)
	}
	err := m.Remote(ctx)
	if err != nil {
		if optimistic {
			m.Patch.Revert(e.cache)
			metrics.Rollbacks.Get(metrics.MutationLabel{Mutation: m.Label}).Inc()
		}
		logger.Error("error running mutation", "label", m.Label, "entity", m.Entity, "msg", err.Error())
		if e.reporter != nil {
			e.reporter.Report(ctx, m.Label, err)
		}
		return err
	}
	if m.Patch != nil && m.AfterAck {
		m.Patch.Apply(e.cache)
	}
	return nil
}

// Toggle flips a boolean relationship (like, follow) held by an entity.
type Toggle struct {
	Label  string
	Entity string
	// Initial derives the state from the cached relationship record the
	// first time the entity is toggled.
	Initial func() bool
	On      func(ctx context.Context) error
	Off     func(ctx context.Context) error
	// Patch returns the cache patch moving the entity to state on.
	Patch    func(on bool) Patch
	Feedback func()
}

// Toggle flips the local state of t.Entity and issues the matching remote
// write. The state is never re-read from the server; a failed write puts
// it back. It returns the state after the call.
func (e *Engine) Toggle(ctx context.Context, t Toggle) (bool, error) {
	unlock := e.lock(t.Entity)
	defer unlock()

	current, ok := e.State(t.Entity)
	if !ok && t.Initial != nil {
		current = t.Initial()
	}
	next := !current
	remote := t.Off
	if next {
		remote = t.On
	}
	var patch Patch
	if t.Patch != nil {
		patch = t.Patch(next)
	}
	e.setState(t.Entity, next)
	err := e.run(ctx, Mutation{
		Label:    t.Label,
		Entity:   t.Entity,
		Remote:   remote,
		Patch:    patch,
		Feedback: t.Feedback,
	})
	if err != nil {
		e.setState(t.Entity, current)
		return current, err
	}
	return next, nil
}

// State returns the local toggle state of an entity, if it was ever toggled.
func (e *Engine) State(entity string) (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.toggles[entity]
	return v, ok
}

func (e *Engine) setState(entity string, v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toggles[entity] = v
}

// Forget drops the local toggle state of an entity, e.g. once it was deleted.
func (e *Engine) Forget(entity string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.toggles, entity)
}

// Reset drops every local toggle state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toggles = make(map[string]bool)
}

func (e *Engine) lock(entity string) func() {
	if entity == "" {
		return func() {}
	}
	e.mu.Lock()
	l, ok := e.locks[entity]
	if !ok {
		l = &entityLock{}
		e.locks[entity] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, entity)
		}
		e.mu.Unlock()
	}
}
