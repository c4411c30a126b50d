package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubSession is a minimal Session with close bookkeeping.
type stubSession struct {
	id       string
	mu       sync.Mutex
	closed   int
	closeErr error
}

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *stubSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func stubFactory() Factory {
	return func(ctx context.Context, id string) (Session, error) {
		return &stubSession{id: id}, nil
	}
}

func TestNewRegistryRequiresFactory(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Error("NewRegistry(nil) error = nil, want non-nil")
	}
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	r, _ := NewRegistry(stubFactory())
	ctx := context.Background()

	a, err := r.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	b, err := r.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if a != b {
		t.Error("GetOrCreate() returned different sessions for the same id")
	}
	if got := r.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestGetOrCreateConcurrentSameID(t *testing.T) {
	var builds atomic.Int32
	factory := func(ctx context.Context, id string) (Session, error) {
		builds.Add(1)
		time.Sleep(10 * time.Millisecond) // widen the construction window
		return &stubSession{id: id}, nil
	}
	r, _ := NewRegistry(factory)

	const n = 16
	sessions := make([]Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.GetOrCreate(context.Background(), "shared")
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			sessions[i] = s
		}()
	}
	wg.Wait()

	if got := builds.Load(); got != 1 {
		t.Errorf("factory ran %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if sessions[i] != sessions[0] {
			t.Fatalf("goroutine %d got a different session", i)
		}
	}
}

func TestGetOrCreateFactoryErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	factory := func(ctx context.Context, id string) (Session, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("upstream down")
		}
		return &stubSession{id: id}, nil
	}
	r, _ := NewRegistry(factory)

	if _, err := r.GetOrCreate(context.Background(), "s1"); err == nil {
		t.Fatal("GetOrCreate() error = nil, want factory error")
	}
	// The failure must not poison the slot.
	if _, err := r.GetOrCreate(context.Background(), "s1"); err != nil {
		t.Fatalf("GetOrCreate() retry error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("factory ran %d times, want 2", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	r, _ := NewRegistry(stubFactory(), WithTTL(time.Minute), WithNow(clock))
	ctx := context.Background()

	first, _ := r.GetOrCreate(ctx, "s1")

	// Within the TTL the same session survives, and the lookup refreshes it.
	advance(45 * time.Second)
	again, _ := r.GetOrCreate(ctx, "s1")
	if again != first {
		t.Fatal("session replaced before TTL elapsed")
	}

	// 45s after the refresh it is still alive: the refresh counted.
	advance(45 * time.Second)
	if got := r.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1 (lookup refreshed TTL)", got)
	}

	// ActiveCount must not have counted as an access: 46s more pushes the
	// session past the TTL measured from the last GetOrCreate.
	advance(46 * time.Second)
	if got := r.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after expiry", got)
	}

	// A new lookup builds a fresh session.
	replacement, err := r.GetOrCreate(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if replacement == first {
		t.Error("expired session was resurrected instead of rebuilt")
	}
}

func TestTTLDisabled(t *testing.T) {
	now := time.Now()
	r, _ := NewRegistry(stubFactory(), WithTTL(0), WithNow(func() time.Time { return now }))
	ctx := context.Background()

	first, _ := r.GetOrCreate(ctx, "s1")
	now = now.Add(1000 * time.Hour)
	if got := r.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1 with expiry disabled", got)
	}
	again, _ := r.GetOrCreate(ctx, "s1")
	if again != first {
		t.Error("session replaced despite disabled TTL")
	}
}

func TestRemove(t *testing.T) {
	r, _ := NewRegistry(stubFactory())
	ctx := context.Background()

	s, _ := r.GetOrCreate(ctx, "s1")
	stub := s.(*stubSession)

	r.Remove(ctx, "s1")
	if got := stub.closeCount(); got != 1 {
		t.Errorf("close count = %d, want 1", got)
	}
	if got := r.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
	// Removing an absent id is a no-op.
	r.Remove(ctx, "s1")
	r.Remove(ctx, "never-existed")
	if got := stub.closeCount(); got != 1 {
		t.Errorf("close count after repeat removes = %d, want 1", got)
	}
}

func TestRemoveDuringConstruction(t *testing.T) {
	release := make(chan struct{})
	built := make(chan struct{})
	stub := &stubSession{id: "slow"}
	factory := func(ctx context.Context, id string) (Session, error) {
		close(built)
		<-release
		return stub, nil
	}
	r, _ := NewRegistry(factory)

	go func() {
		_, _ = r.GetOrCreate(context.Background(), "slow")
	}()
	<-built

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		r.Remove(ctx, "slow")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Remove blocked on an in-flight construction")
	}

	// Once construction finishes the session is still torn down.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for stub.closeCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session built after Remove was never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseAllBestEffort(t *testing.T) {
	sessions := map[string]*stubSession{
		"a": {id: "a", closeErr: errors.New("a failed")},
		"b": {id: "b"},
		"c": {id: "c"},
	}
	factory := func(ctx context.Context, id string) (Session, error) {
		return sessions[id], nil
	}
	r, _ := NewRegistry(factory)
	ctx := context.Background()
	for id := range sessions {
		if _, err := r.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("GetOrCreate(%s) error = %v", id, err)
		}
	}

	err := r.CloseAll(ctx)
	if err == nil {
		t.Error("CloseAll() error = nil, want the failing session's error")
	}
	// Every session was closed despite one failing.
	for id, s := range sessions {
		if got := s.closeCount(); got != 1 {
			t.Errorf("session %s close count = %d, want 1", id, got)
		}
	}
	if got := r.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
	// The registry refuses new sessions after shutdown.
	if _, err := r.GetOrCreate(ctx, "late"); err == nil {
		t.Error("GetOrCreate() after CloseAll error = nil, want non-nil")
	}
}
