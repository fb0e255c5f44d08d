// Package access decides, for a navigation attempt, whether to render the
// destination, redirect, or show a blocking notice; and which navigation
// affordances apply. Decisions are pure data: the caller performs the actual
// navigation or render. These checks are advisory and UX-oriented only; any
// privileged operation must be re-validated server-side independently of this
// package.
package access

import (
	"github.com/evodigital/academia/core/user"
)

// Category is a coarse classification of navigable destinations used to
// select which check applies. Public routes have no restriction.
type Category string

const (
	CategoryPublic  Category = "public"
	CategoryTeacher Category = "teacher"
	CategoryAdmin   Category = "admin"
)

// Redirect targets returned with DecisionDenyRedirect.
const (
	RedirectLogin = "/login"
	RedirectHome  = "/"
)

// Identity is the authenticated principal for a session, independent of any
// application-level profile. A nil *Identity means unauthenticated.
type Identity struct {
	ID    string
	Email string
}

// ProfileStatus tracks the resolution of the profile row backing an identity.
type ProfileStatus int

const (
	// ProfileStatusAbsent means the profile row is known not to exist
	// (eg. right after sign-up, or the store reported NotFound).
	ProfileStatusAbsent ProfileStatus = iota
	// ProfileStatusPending means the profile fetch has not completed.
	ProfileStatusPending
	ProfileStatusResolved
)

// ProfileRef is a profile in one of three input states: absent, pending or
// resolved. Absent degrades to pending for decision purposes: a missing
// profile is never an error, only an unresolved input.
type ProfileRef struct {
	Status  ProfileStatus
	Profile user.User
}

func AbsentProfile() ProfileRef  { return ProfileRef{Status: ProfileStatusAbsent} }
func PendingProfile() ProfileRef { return ProfileRef{Status: ProfileStatusPending} }
func ResolvedProfile(u user.User) ProfileRef {
	return ProfileRef{Status: ProfileStatusResolved, Profile: u}
}

func (pr ProfileRef) resolved() bool { return pr.Status == ProfileStatusResolved }

type DecisionKind int

const (
	// DecisionGrant allows the navigation.
	DecisionGrant DecisionKind = iota
	// DecisionDenyRedirect denies and redirects to Decision.RedirectTarget
	// without explanation.
	DecisionDenyRedirect
	// DecisionDenyPendingApproval denies with a blocking informational view:
	// the teacher account exists but has not been approved yet.
	DecisionDenyPendingApproval
	// DecisionDefer is the non-terminal outcome returned while the profile is
	// still unresolved; the caller must render a loading state and re-evaluate
	// once resolution completes.
	DecisionDefer
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionGrant:
		return "grant"
	case DecisionDenyRedirect:
		return "deny_redirect"
	case DecisionDenyPendingApproval:
		return "deny_pending_approval"
	case DecisionDefer:
		return "defer"
	}
	return "unknown"
}

// Decision is the output of the policy for a given (identity, profile,
// requested category). It is never persisted and is recomputed per navigation.
type Decision struct {
	Kind           DecisionKind
	RedirectTarget string // set iff Kind == DecisionDenyRedirect
}

// Terminal reports whether the decision is final for this navigation attempt.
func (d Decision) Terminal() bool { return d.Kind != DecisionDefer }

func (d Decision) Granted() bool { return d.Kind == DecisionGrant }

var (
	granted         = Decision{Kind: DecisionGrant}
	deferred        = Decision{Kind: DecisionDefer}
	pendingApproval = Decision{Kind: DecisionDenyPendingApproval}
)

func denyRedirect(target string) Decision {
	return Decision{Kind: DecisionDenyRedirect, RedirectTarget: target}
}

// Policy holds the owner allow-list: a process-wide constant set of email
// addresses granted unconditional elevated privilege. It is immutable after
// construction; evaluation is a pure function of its inputs.
type Policy struct {
	owners map[string]struct{}
}

func NewPolicy(ownerEmails []string) *Policy {
	owners := make(map[string]struct{}, len(ownerEmails))
	for _, e := range ownerEmails {
		owners[e] = struct{}{}
	}
	return &Policy{owners: owners}
}

// IsOwner reports allow-list membership for the identity's email.
// The match is exact and case-sensitive.
func (p *Policy) IsOwner(identity *Identity) bool {
	if identity == nil {
		return false
	}
	_, ok := p.owners[identity.Email]
	return ok
}

// Decide evaluates a navigation attempt. Checks short-circuit in order:
// unauthenticated, unresolved profile, owner bypass, category rules.
// The owner is implicitly a "super teacher": role and approval are never
// checked for allow-list members.
func (p *Policy) Decide(identity *Identity, profile ProfileRef, category Category) Decision {
	if category == CategoryPublic {
		return granted
	}
	if identity == nil {
		return denyRedirect(RedirectLogin)
	}
	if !profile.resolved() {
		return deferred
	}

	isOwner := p.IsOwner(identity)

	switch category {
	case CategoryAdmin:
		if isOwner {
			return granted
		}
		return denyRedirect(RedirectHome)

	case CategoryTeacher:
		if isOwner {
			// owner is always implicitly approved
			return granted
		}
		if profile.Profile.Role == user.RoleTeacher {
			if !profile.Profile.IsApproved {
				return pendingApproval
			}
			return granted
		}
		return denyRedirect(RedirectHome)
	}
	return denyRedirect(RedirectHome)
}

// Navigation entries. A display filter, not a gate: which links and
// affordances the caller should show for the current session.
type NavEntry string

const (
	NavExplore                NavEntry = "explore"
	NavLogin                  NavEntry = "login"
	NavRegister               NavEntry = "register"
	NavAdminDashboard         NavEntry = "admin_dashboard"
	NavTeacherDashboard       NavEntry = "teacher_dashboard"
	NavTeacherProfileSettings NavEntry = "teacher_profile_settings"
	NavSignOut                NavEntry = "sign_out"
)

// Links derives the set of visible navigation entries for a session.
// Teacher-only entries are suppressed for the owner to avoid duplicate
// affordances.
func (p *Policy) Links(identity *Identity, profile ProfileRef) []NavEntry {
	if identity == nil {
		return []NavEntry{NavExplore, NavLogin, NavRegister}
	}
	if p.IsOwner(identity) {
		return []NavEntry{NavExplore, NavAdminDashboard, NavTeacherDashboard, NavSignOut}
	}
	if profile.resolved() && profile.Profile.Role == user.RoleTeacher {
		return []NavEntry{NavExplore, NavTeacherDashboard, NavTeacherProfileSettings, NavSignOut}
	}
	return []NavEntry{NavExplore, NavSignOut}
}

// RoleLabel returns the badge label for the identity's effective role.
func (p *Policy) RoleLabel(identity *Identity, profile ProfileRef) string {
	if p.IsOwner(identity) {
		return "Owner"
	}
	if profile.resolved() && profile.Profile.Role == user.RoleTeacher {
		return "Teacher"
	}
	return "Student"
}
