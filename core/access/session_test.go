package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evodigital/academia/core/user"
)

// blockingFetcher parks each fetch until its identity's gate is released.
type blockingFetcher struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	profiles map[string]user.User
	done     map[string]chan struct{}
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{
		gates:    make(map[string]chan struct{}),
		profiles: make(map[string]user.User),
		done:     make(map[string]chan struct{}),
	}
}

func (f *blockingFetcher) add(id string, usr user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[id] = make(chan struct{})
	f.profiles[id] = usr
	f.done[id] = make(chan struct{})
}

func (f *blockingFetcher) fetch(_ context.Context, id string) (user.User, error) {
	f.mu.Lock()
	gate := f.gates[id]
	usr := f.profiles[id]
	f.mu.Unlock()
	<-gate
	return usr, nil
}

// release unparks the fetch for id and waits long enough for the session
// goroutine to have applied (or discarded) the result.
func (f *blockingFetcher) release(id string) {
	f.mu.Lock()
	gate := f.gates[id]
	f.mu.Unlock()
	close(gate)
}

func waitResolved(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Resolved() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never resolved")
}

func TestSessionLoadingToResolved(t *testing.T) {
	fetcher := newBlockingFetcher()
	fetcher.add("t1", user.User{ID: "t1", Role: user.RoleTeacher, IsApproved: true})

	s := NewSession(NewPolicy(testOwners), fetcher.fetch)

	// unauthenticated: protected categories redirect to login
	if d := s.Decide(CategoryTeacher); d != denyRedirect(RedirectLogin) {
		t.Fatalf("Decide() = %+v, want login redirect", d)
	}

	s.SignIn(context.Background(), Identity{ID: "t1", Email: "t@y.com"})

	// fetch outstanding: decision must not be terminal
	if d := s.Decide(CategoryTeacher); d.Terminal() {
		t.Fatalf("Decide() terminal while profile loading: %+v", d)
	}

	fetcher.release("t1")
	waitResolved(t, s)

	if d := s.Decide(CategoryTeacher); !d.Granted() {
		t.Errorf("Decide() = %+v, want grant", d)
	}
	if got := s.RoleLabel(); got != "Teacher" {
		t.Errorf("RoleLabel() = %q, want %q", got, "Teacher")
	}
}

// A profile fetched for a previous identity must never be applied to a newer
// identity's decision.
func TestSessionStaleFetchDiscard(t *testing.T) {
	fetcher := newBlockingFetcher()
	fetcher.add("a", user.User{ID: "a", Role: user.RoleTeacher, IsApproved: true})
	fetcher.add("b", user.User{ID: "b", Role: user.RoleStudent})

	s := NewSession(NewPolicy(testOwners), fetcher.fetch)

	s.SignIn(context.Background(), Identity{ID: "a", Email: "a@y.com"})
	// identity changes while a's fetch is still outstanding
	s.SignIn(context.Background(), Identity{ID: "b", Email: "b@y.com"})

	// a's result resolves late and must be discarded
	fetcher.release("a")
	fetcher.release("b")
	waitResolved(t, s)

	// if a's teacher profile had leaked into b's session, this would grant
	if d := s.Decide(CategoryTeacher); d != denyRedirect(RedirectHome) {
		t.Errorf("Decide() = %+v, want home redirect for student", d)
	}
	if got := s.RoleLabel(); got != "Student" {
		t.Errorf("RoleLabel() = %q, want %q", got, "Student")
	}
}

func TestSessionSignOutDiscardsFetch(t *testing.T) {
	fetcher := newBlockingFetcher()
	fetcher.add("a", user.User{ID: "a", Role: user.RoleTeacher, IsApproved: true})

	s := NewSession(NewPolicy(testOwners), fetcher.fetch)

	s.SignIn(context.Background(), Identity{ID: "a", Email: "a@y.com"})
	s.SignOut()
	fetcher.release("a")

	// give the stale resolve a chance to (wrongly) land
	time.Sleep(50 * time.Millisecond)

	if d := s.Decide(CategoryTeacher); d != denyRedirect(RedirectLogin) {
		t.Errorf("Decide() = %+v, want login redirect after sign-out", d)
	}
	if got := s.Links(); len(got) != 3 || got[0] != NavExplore || got[1] != NavLogin || got[2] != NavRegister {
		t.Errorf("Links() = %v, want unauthenticated set", got)
	}
}

// Collaborator failure degrades to an unresolved profile: protected
// decisions stay closed, they never fail open.
func TestSessionFetchErrorFailsClosed(t *testing.T) {
	fetch := func(_ context.Context, id string) (user.User, error) {
		return user.User{}, user.ErrNotFound
	}
	s := NewSession(NewPolicy(testOwners), fetch)

	s.SignIn(context.Background(), Identity{ID: "a", Email: "a@y.com"})
	waitResolved(t, s)

	if d := s.Decide(CategoryTeacher); d.Granted() {
		t.Errorf("Decide() granted on fetch failure: %+v", d)
	}
}
