package auth

// Package auth contains domain-level types for identity, authorization snapshots and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// RoleCode is the closed set of portal roles.
// Keep string form for easy persistence; valid values are defined as constants below.
type RoleCode string

const (
	RoleAdmin    RoleCode = "ADMIN"
	RoleLecturer RoleCode = "LECTURER"
	RoleStudent  RoleCode = "STUDENT"
	RoleLabStaff RoleCode = "LAB_STAFF"
)

// RolePrecedence orders role codes for landing-route selection; the first match wins.
var RolePrecedence = []RoleCode{RoleAdmin, RoleLecturer, RoleStudent, RoleLabStaff}

// Valid reports whether the role code is one of the known portal roles.
func (c RoleCode) Valid() bool {
	switch c {
	case RoleAdmin, RoleLecturer, RoleStudent, RoleLabStaff:
		return true
	default:
		return false
	}
}

// ParseRoleCode normalizes a role code string and reports whether it is supported.
func ParseRoleCode(value string) (RoleCode, bool) {
	code := RoleCode(strings.ToUpper(strings.TrimSpace(value)))
	if code.Valid() {
		return code, true
	}
	return "", false
}

// UnmarshalText implements encoding.TextUnmarshaler for RoleCode.
func (c *RoleCode) UnmarshalText(text []byte) error {
	code, ok := ParseRoleCode(string(text))
	if !ok {
		return fmt.Errorf("invalid role code: %q (valid options: ADMIN, LECTURER, STUDENT, LAB_STAFF)", string(text))
	}
	*c = code
	return nil
}

// Role is a role definition as assigned to a subject.
type Role struct {
	ID          string    `json:"id"                    db:"id"`
	Code        RoleCode  `json:"role_code"             db:"role_code"`
	Name        string    `json:"role_name"             db:"role_name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Active      bool      `json:"is_active"             db:"is_active"`
	CreatedAt   time.Time `json:"created_at"            db:"created_at"`
}

// NewRole validates the required fields of a role definition.
func NewRole(id string, code RoleCode, name string, active bool) (Role, error) {
	if strings.TrimSpace(id) == "" {
		return Role{}, errors.New("role id is required")
	}
	if !code.Valid() {
		return Role{}, fmt.Errorf("invalid role code %q", code)
	}
	return Role{ID: id, Code: code, Name: strings.TrimSpace(name), Active: active}, nil
}

// RoleAssignment is an active user_roles row. Role is nil when the assignment points at a
// role definition that no longer exists.
type RoleAssignment struct {
	ID     string
	RoleID string
	Role   *Role
}

// Profile is the portal profile row of a subject.
type Profile struct {
	ID            string     `json:"id"                   db:"id"`
	Email         string     `json:"email"                db:"email"`
	Username      *string    `json:"username,omitempty"   db:"username"`
	FullName      string     `json:"full_name"            db:"full_name"`
	NimNip        *string    `json:"nim_nip,omitempty"    db:"nim_nip"`
	Phone         *string    `json:"phone,omitempty"      db:"phone"`
	AvatarURL     *string    `json:"avatar_url,omitempty" db:"avatar_url"`
	BirthDate     *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Address       *string    `json:"address,omitempty"    db:"address"`
	Active        bool       `json:"is_active"            db:"is_active"`
	EmailVerified bool       `json:"email_verified"       db:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt     time.Time  `json:"created_at"           db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"           db:"updated_at"`
}

// Validate checks the fields every persisted profile must carry.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("profile email is required")
	}
	if strings.TrimSpace(p.FullName) == "" {
		return errors.New("profile full name is required")
	}
	return nil
}

// CreateProfileRequest carries the fields written when a subject registers.
type CreateProfileRequest struct {
	ID       string
	Email    string
	FullName string
	NimNip   string
}

// Validate ensures the request can be inserted.
func (r CreateProfileRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("profile id is required")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.FullName) == "" {
		return errors.New("full name is required")
	}
	return nil
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Username  *string
	FullName  *string
	NimNip    *string
	Phone     *string
	AvatarURL *string
	BirthDate *time.Time
	Address   *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.FullName == nil && p.NimNip == nil && p.Phone == nil &&
		p.AvatarURL == nil && p.BirthDate == nil && p.Address == nil
}

// Validate rejects patches that would blank required fields.
func (p ProfilePatch) Validate() error {
	if p.Empty() {
		return errors.New("profile patch is empty")
	}
	if p.FullName != nil && strings.TrimSpace(*p.FullName) == "" {
		return errors.New("full name cannot be empty")
	}
	return nil
}

// PermissionGrant links a role to a permission code.
type PermissionGrant struct {
	RoleID string `db:"role_id"`
	Code   string `db:"permission_code"`
}

// Snapshot is the immutable authorization view of one subject: profile, roles and the
// permission set derived from the active roles. It is replaced wholesale on every resolution.
type Snapshot struct {
	subjectID   string
	email       string
	profile     Profile
	roles       []Role
	permissions map[string]struct{}
}

// SnapshotInput groups the reads a resolution produces.
type SnapshotInput struct {
	SubjectID string
	Profile   *Profile
	Roles     []Role
	Grants    []PermissionGrant
}

// NewSnapshot assembles a Snapshot. Grants count only when they belong to an active role in Roles.
func NewSnapshot(in SnapshotInput) (Snapshot, error) {
	if strings.TrimSpace(in.SubjectID) == "" {
		return Snapshot{}, errors.New("subject id is required")
	}
	if in.Profile == nil {
		return Snapshot{}, errors.New("profile is required")
	}

	roles := make([]Role, 0, len(in.Roles))
	active := make(map[string]struct{}, len(in.Roles))
	seen := make(map[string]struct{}, len(in.Roles))
	for _, r := range in.Roles {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		roles = append(roles, r)
		if r.Active {
			active[r.ID] = struct{}{}
		}
	}

	perms := make(map[string]struct{})
	for _, g := range in.Grants {
		code := strings.TrimSpace(g.Code)
		if code == "" {
			continue
		}
		if _, ok := active[g.RoleID]; ok {
			perms[code] = struct{}{}
		}
	}

	email := in.Profile.Email
	return Snapshot{
		subjectID:   in.SubjectID,
		email:       email,
		profile:     *in.Profile,
		roles:       roles,
		permissions: perms,
	}, nil
}

// SubjectID returns the stable subject identifier.
func (s Snapshot) SubjectID() string { return s.subjectID }

// Email returns the subject's email.
func (s Snapshot) Email() string { return s.email }

// Profile returns a copy of the profile.
func (s Snapshot) Profile() Profile { return s.profile }

// IsZero reports whether the snapshot was never assembled.
func (s Snapshot) IsZero() bool { return s.subjectID == "" }

// Roles returns a copy of the ordered roles.
func (s Snapshot) Roles() []Role {
	return append([]Role(nil), s.roles...)
}

// Permissions returns the permission codes in sorted order.
func (s Snapshot) Permissions() []string {
	out := make([]string, 0, len(s.permissions))
	for p := range s.permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasPermission reports whether any active role grants code.
func (s Snapshot) HasPermission(code string) bool {
	_, ok := s.permissions[code]
	return ok
}

// HasRole reports whether the subject holds code through an active role.
func (s Snapshot) HasRole(code RoleCode) bool {
	for _, r := range s.roles {
		if r.Code == code && r.Active {
			return true
		}
	}
	return false
}

// PrimaryRole returns the highest-precedence active role.
func (s Snapshot) PrimaryRole() (RoleCode, bool) {
	for _, code := range RolePrecedence {
		if s.HasRole(code) {
			return code, true
		}
	}
	return "", false
}

// Credentials are what a subject presents to sign in.
type Credentials struct {
	Email    string
	Password string
}

// Validate checks the credentials are well-formed before hitting the gateway.
func (c Credentials) Validate() error {
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// RegisterData carries a self-registration request.
type RegisterData struct {
	Credentials
	FullName string
	NimNip   string
	Role     RoleCode
}

// Validate checks every field needed by the three registration writes.
func (r RegisterData) Validate() error {
	if err := r.Credentials.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.FullName) == "" {
		return errors.New("full name is required")
	}
	if !r.Role.Valid() {
		return fmt.Errorf("invalid role code %q", r.Role)
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email %q", email)
	}
	at := strings.LastIndexByte(email, '@')
	if _, err := idna.Lookup.ToASCII(email[at+1:]); err != nil {
		return fmt.Errorf("invalid email domain %q: %w", email[at+1:], err)
	}
	return nil
}

// Session is the credential-level session a gateway hands out.
// ID is an opaque session identifier (e.g., random URL-safe string).
type Session struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// EventKind enumerates the gateway session lifecycle events.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// SessionEvent is delivered by a credential gateway on session changes.
// SubjectID is empty for EventSignedOut.
type SessionEvent struct {
	Kind      EventKind
	SubjectID string
}

// SignedIn builds a sign-in event.
func SignedIn(subjectID string) SessionEvent {
	return SessionEvent{Kind: EventSignedIn, SubjectID: subjectID}
}

// SignedOut builds a sign-out event.
func SignedOut() SessionEvent { return SessionEvent{Kind: EventSignedOut} }

// TokenRefreshed builds a token refresh event.
func TokenRefreshed(subjectID string) SessionEvent {
	return SessionEvent{Kind: EventTokenRefreshed, SubjectID: subjectID}
}

// Gateway outcomes shared by every credential gateway adapter.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailRegistered    = errors.New("user already registered")
	ErrNoSession          = errors.New("no active session")
)
