package access

import (
	"context"
	"sync"

	"github.com/evodigital/academia/core/user"
)

// FetchProfileFunc fetches the profile row backing an identity.
// It must return user.ErrNotFound when no row exists.
type FetchProfileFunc func(ctx context.Context, identityID string) (user.User, error)

// Session is the caller-side navigation state for one authenticated principal.
// Per protected route there are three reachable states: Loading,
// Resolved-Grant and Resolved-Deny; transitions happen on profile-fetch
// completion, and Resolved-Deny is terminal for that navigation attempt.
//
// Identity resolution is ordered before any protected-route decision: while
// the profile is being fetched, Decide returns a non-terminal DecisionDefer.
// If the identity changes while a fetch for the previous identity is
// outstanding, that fetch's result is discarded; stale profile data is never
// applied to a newer identity's decision.
type Session struct {
	policy *Policy
	fetch  FetchProfileFunc

	mu       sync.Mutex
	epoch    uint64
	identity *Identity
	profile  ProfileRef
}

func NewSession(policy *Policy, fetch FetchProfileFunc) *Session {
	return &Session{
		policy:  policy,
		fetch:   fetch,
		profile: AbsentProfile(),
	}
}

// SignIn installs the authenticated identity and starts resolving its
// profile. Any outstanding fetch for a previous identity is invalidated.
func (s *Session) SignIn(ctx context.Context, identity Identity) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	id := identity
	s.identity = &id
	s.profile = PendingProfile()
	s.mu.Unlock()

	if s.fetch == nil {
		return
	}
	go func() {
		usr, err := s.fetch(ctx, identity.ID)
		if err != nil {
			// NotFound and collaborator failures both degrade to an absent
			// profile: protected decisions stay unresolved, never fail open.
			s.resolve(epoch, AbsentProfile())
			return
		}
		s.resolve(epoch, ResolvedProfile(usr))
	}()
}

// SignOut clears the session. Results of any in-flight profile fetch are
// discarded.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.identity = nil
	s.profile = AbsentProfile()
}

func (s *Session) resolve(epoch uint64, profile ProfileRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return // stale fetch; a newer identity is current
	}
	s.profile = profile
}

// Resolved reports whether the profile fetch has completed for the current
// identity.
func (s *Session) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity == nil || s.profile.Status != ProfileStatusPending
}

// Decide evaluates the policy against the current session snapshot.
func (s *Session) Decide(category Category) Decision {
	s.mu.Lock()
	identity, profile := s.identity, s.profile
	s.mu.Unlock()
	return s.policy.Decide(identity, profile, category)
}

// Links returns the visible navigation entries for the current session.
func (s *Session) Links() []NavEntry {
	s.mu.Lock()
	identity, profile := s.identity, s.profile
	s.mu.Unlock()
	return s.policy.Links(identity, profile)
}

// RoleLabel returns the role badge label for the current session.
func (s *Session) RoleLabel() string {
	s.mu.Lock()
	identity, profile := s.identity, s.profile
	s.mu.Unlock()
	return s.policy.RoleLabel(identity, profile)
}
