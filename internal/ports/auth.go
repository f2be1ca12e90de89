package ports

// Package ports defines interfaces (hexagonal ports) for session and authorization behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/siprak/portal/internal/domain/auth"
)

// SessionHandler receives gateway session events.
type SessionHandler func(ctx context.Context, ev domainauth.SessionEvent)

// Subscription is a cancellation handle. Close is synchronous and idempotent;
// no callback fires after it returns.
type Subscription interface {
	Close()
}

// CredentialGateway is the external identity service: it owns passwords and tokens and
// emits session lifecycle events.
type CredentialGateway interface {
	// SignIn authenticates with credentials and emits SignedIn on success.
	SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error)

	// SignUp creates a credential and returns the new subject id. It does not sign in.
	SignUp(ctx context.Context, creds domainauth.Credentials) (string, error)

	// SignOut ends the current session and emits SignedOut on success.
	SignOut(ctx context.Context) error

	// CurrentSession returns the active session, or ok=false when there is none.
	CurrentSession(ctx context.Context) (sess domainauth.Session, ok bool, err error)

	// OnSessionChange registers h for session events until the returned handle is closed.
	OnSessionChange(h SessionHandler) Subscription

	// ResetPasswordForEmail requests a reset link that lands on redirectURL.
	ResetPasswordForEmail(ctx context.Context, email, redirectURL string) error
}

// SessionRefresher is implemented by gateways that can renew the current session.
// A successful refresh emits TokenRefreshed.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// ErrSessionNotFound is returned by SessionStore.Get for missing or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists and retrieves credential sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionRevoker is implemented by stores that can drop every session of a subject.
type SessionRevoker interface {
	DeleteBySubject(ctx context.Context, subjectID string) error
}

// ProfileRepository reads and writes users_profile rows.
type ProfileRepository interface {
	GetByID(ctx context.Context, subjectID string) (*domainauth.Profile, error)
	Create(ctx context.Context, req domainauth.CreateProfileRequest) (*domainauth.Profile, error)
	Update(ctx context.Context, subjectID string, patch domainauth.ProfilePatch) (*domainauth.Profile, error)
	TouchLastLogin(ctx context.Context, subjectID string) error
}

// RoleRepository reads role definitions and assignments.
type RoleRepository interface {
	// ListActiveAssignments returns the subject's active assignments joined to their role
	// definitions. Role is nil when the definition no longer exists.
	ListActiveAssignments(ctx context.Context, subjectID string) ([]domainauth.RoleAssignment, error)
	GetByCode(ctx context.Context, code domainauth.RoleCode) (*domainauth.Role, error)
	Assign(ctx context.Context, subjectID, roleID string) error
}

// PermissionRepository reads role-permission grants.
type PermissionRepository interface {
	ListCodesByRoleIDs(ctx context.Context, roleIDs []string) ([]domainauth.PermissionGrant, error)
}

// SnapshotResolver assembles an authorization snapshot for a subject.
type SnapshotResolver interface {
	Resolve(ctx context.Context, subjectID string) (domainauth.Snapshot, error)
}

// Navigator performs route changes.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// RouteMapper picks the landing route for a resolved snapshot.
type RouteMapper interface {
	Map(snap domainauth.Snapshot) string
}

// ResetSender delivers password reset links.
type ResetSender interface {
	SendReset(ctx context.Context, email, link string) error
}
