// Package session tracks live voice sessions keyed by opaque ids.
//
// The registry is the only state shared across client connections. Its mutex
// guards only the map itself and is never held across network I/O: session
// construction and teardown both happen outside the critical section, with a
// placeholder entry keeping concurrent lookups for the same id from building
// the session twice.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTTL is the inactivity window after which a session expires.
const DefaultTTL = time.Hour

// Session is the per-client state the registry manages. Close must release
// every resource the session owns and be safe to call once.
type Session interface {
	ID() string
	Close(ctx context.Context) error
}

// Factory constructs the session for an id on first reference.
type Factory func(ctx context.Context, id string) (Session, error)

// Option is a functional option for configuring a Registry.
type Option func(*Registry)

// WithTTL sets the inactivity TTL. Zero or negative disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// entry is one registry slot. ready is closed once construction finishes;
// until then sess and err are not readable.
type entry struct {
	ready      chan struct{}
	sess       Session
	err        error
	lastAccess time.Time
}

// Registry creates, looks up and expires sessions. Safe for concurrent use.
type Registry struct {
	factory Factory
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewRegistry returns a Registry that builds sessions with factory.
func NewRegistry(factory Factory, opts ...Option) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("session: factory must not be nil")
	}
	r := &Registry{
		factory:  factory,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// GetOrCreate returns the session for id, building it on first reference.
// A hit refreshes the session's TTL. Concurrent calls for the same id share
// one construction; a failed construction is not cached.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (Session, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, errors.New("session: registry is closed")
		}
		if e, ok := r.sessions[id]; ok {
			if !r.expiredLocked(e) {
				r.mu.Unlock()
				return r.await(ctx, id, e)
			}
			// Expired entry found on the lookup path: evict and fall
			// through to fresh construction.
			delete(r.sessions, id)
			r.mu.Unlock()
			r.closeExpired(e)
			continue
		}
		e := &entry{ready: make(chan struct{}), lastAccess: r.now()}
		r.sessions[id] = e
		r.mu.Unlock()

		sess, err := r.factory(ctx, id)

		r.mu.Lock()
		if err != nil {
			delete(r.sessions, id)
			e.err = err
			r.mu.Unlock()
			close(e.ready)
			return nil, fmt.Errorf("session: create %s: %w", id, err)
		}
		e.sess = sess
		e.lastAccess = r.now()
		r.mu.Unlock()
		close(e.ready)
		return sess, nil
	}
}

// await blocks until the entry's construction finishes, then refreshes the
// TTL and returns the session.
func (r *Registry) await(ctx context.Context, id string, e *entry) (Session, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, fmt.Errorf("session: create %s: %w", id, e.err)
	}
	r.mu.Lock()
	if cur, ok := r.sessions[id]; ok && cur == e {
		e.lastAccess = r.now()
	}
	r.mu.Unlock()
	return e.sess, nil
}

// Remove drops the session for id and releases its resources. Removing an
// absent id is a no-op. If construction is still in flight when ctx ends,
// Remove returns and the session is torn down in the background once built.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
		r.closeExpired(e)
		return
	}
	if e.sess == nil {
		return
	}
	if err := e.sess.Close(ctx); err != nil {
		r.logger.Warn("session close failed", "session_id", id, "error", err)
	}
}

// ActiveCount reports the number of live sessions, evicting expired ones as
// it counts. Counting does not refresh any session's TTL.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	var expired []*entry
	for id, e := range r.sessions {
		if r.expiredLocked(e) {
			delete(r.sessions, id)
			expired = append(expired, e)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, e := range expired {
		r.closeExpired(e)
	}
	return n
}

// CloseAll tears down every session, best-effort: one session's close failure
// does not stop the others. The registry rejects new sessions afterwards.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := make(map[string]*entry, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	// Plain group, no shared cancellation: one failed close must not abort
	// the siblings.
	var g errgroup.Group
	for id, e := range entries {
		g.Go(func() error {
			<-e.ready
			if e.sess == nil {
				return nil
			}
			if err := e.sess.Close(ctx); err != nil {
				return fmt.Errorf("session: close %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// expiredLocked reports whether e has outlived the TTL. Callers hold r.mu.
func (r *Registry) expiredLocked(e *entry) bool {
	if r.ttl <= 0 {
		return false
	}
	select {
	case <-e.ready:
	default:
		// Still constructing; never expire mid-build.
		return false
	}
	return r.now().Sub(e.lastAccess) > r.ttl
}

// closeExpired releases a lazily-evicted session in the background so the
// caller is not blocked on teardown I/O.
func (r *Registry) closeExpired(e *entry) {
	go func() {
		<-e.ready
		if e.sess == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.sess.Close(ctx); err != nil {
			r.logger.Warn("expired session close failed", "session_id", e.sess.ID(), "error", err)
		}
	}()
}
