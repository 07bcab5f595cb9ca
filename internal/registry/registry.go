// Package registry implements the connection registry (component H): a thread-safe
// id-to-session map with an alias cache, generalized over any session-like type.
//
// Grounded on original_source/backend/application/connection_registry.py's
// _ConnectionRegistryBase[T] (a Python Generic[T] keyed by a HasId protocol) — Go
// generics give the same "one base, typed by the concrete session" shape without an
// unsafe interface{} registry.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"csms-gateway/internal/settings"
)

// HasID is the minimal shape a registry entry must have: a stable station identity.
type HasID interface {
	ID() string
}

// Closer is implemented by session types that can be forcibly evicted.
type Closer interface {
	Close()
}

// AliasAware is implemented by session types that accept an alias restored from the
// registry's cache on Register (SPEC_FULL.md §4.H: "a cached alias for that id is
// injected into the new session's settings").
type AliasAware interface {
	InjectAlias(alias string)
}

// Registry is a thread-safe id -> session map with an alias side-cache mirrored to a
// settings repository. T is intentionally unconstrained beyond HasID so both OCPP 1.6
// and 2.0.1 sessions (and test doubles) can share one registry implementation.
type Registry[T HasID] struct {
	logger *slog.Logger
	repo   settings.Repository

	mu       sync.RWMutex
	sessions map[string]T
	aliases  map[string]string // charge point id -> alias
}

// New constructs an empty registry backed by repo for alias persistence.
func New[T HasID](logger *slog.Logger, repo settings.Repository) *Registry[T] {
	return &Registry[T]{
		logger:   logger,
		repo:     repo,
		sessions: make(map[string]T),
		aliases:  make(map[string]string),
	}
}

// Register adds a session under its ID, evicting any prior session with the same ID
// first (duplicate-identity reconnect, SPEC_FULL.md §4.H). The evicted session's Close
// is invoked if it implements Closer.
func (r *Registry[T]) Register(s T) {
	id := s.ID()

	r.mu.Lock()
	prev, existed := r.sessions[id]
	r.sessions[id] = s
	alias, hasAlias := r.aliases[id]
	r.mu.Unlock()

	if hasAlias {
		if aa, ok := any(s).(AliasAware); ok {
			aa.InjectAlias(alias)
		}
	}

	if existed {
		r.logger.Info("registry evicting prior session on reconnect", "id", id)
		if c, ok := any(prev).(Closer); ok {
			c.Close()
		}
	}
}

// Deregister removes the session with the given id, if its stored value still equals s
// (guards against a deregister racing a newer Register call for the same id). Returns
// true if this call actually removed an entry — callers use that to publish
// ChargePointDisconnected exactly once (SPEC_FULL.md §3 invariant).
func (r *Registry[T]) Deregister(s T) bool {
	id := s.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && any(cur) == any(s) {
		delete(r.sessions, id)
		return true
	}
	return false
}

// Get returns the session registered under id, if any.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns a snapshot of all currently registered sessions.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of currently registered sessions.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Alias returns the cached alias for a charge point id, if one is set.
func (r *Registry[T]) Alias(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.aliases[id]
	return a, ok
}

// RememberAlias updates the in-memory alias cache and persists it to the settings
// repository. The cache is updated first so concurrent readers never observe a gap
// between an acknowledged SetAlias call and the next GetAllChargePoints read.
func (r *Registry[T]) RememberAlias(ctx context.Context, id, alias string) error {
	r.mu.Lock()
	r.aliases[id] = alias
	r.mu.Unlock()

	if r.repo == nil {
		return nil
	}
	return r.repo.SetAlias(ctx, id, alias)
}

// LoadAliases seeds the in-memory alias cache from the settings repository. Call once
// at startup before any session registers.
func (r *Registry[T]) LoadAliases(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	all, err := r.repo.AllAliases(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, alias := range all {
		r.aliases[id] = alias
	}
	return nil
}
