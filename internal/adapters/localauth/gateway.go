// Package localauth is a self-hosted credential gateway: bcrypt password hashes in Postgres,
// HS256 access tokens, and server-side sessions in a SessionStore.
package localauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/siprak/portal/internal/adapters/sessionhub"
	"github.com/siprak/portal/internal/data"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

var (
	_ ports.CredentialGateway = (*Gateway)(nil)
	_ ports.SessionRefresher  = (*Gateway)(nil)
)

const (
	accessAudience = "portal"
	resetAudience  = "password-reset"

	// MinPasswordLength mirrors the hosted identity service default.
	MinPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// ErrInvalidResetToken is returned when a reset token is malformed, expired, or already used.
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// CredentialStore is the credential persistence the gateway needs.
type CredentialStore interface {
	Create(ctx context.Context, email, passwordHash string) (*data.Credential, error)
	GetByEmail(ctx context.Context, email string) (*data.Credential, error)
	GetByID(ctx context.Context, id string) (*data.Credential, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

var _ CredentialStore = (*data.CredentialRepo)(nil)

// Config tunes token issuance and hashing.
type Config struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	Logger     *slog.Logger
}

// Gateway implements ports.CredentialGateway with locally stored credentials.
type Gateway struct {
	creds    CredentialStore
	sessions ports.SessionStore
	sender   ports.ResetSender

	secret     []byte
	issuer     string
	sessionTTL time.Duration
	resetTTL   time.Duration
	cost       int

	hub    *sessionhub.Hub
	logger *slog.Logger
	now    func() time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type resetClaims struct {
	// Fingerprint of the password hash at issue time; a changed password voids the token.
	PasswordFingerprint string `json:"pwf"`
	jwt.RegisteredClaims
}

// NewGateway wires the gateway. sender may be nil when resets are not offered.
func NewGateway(creds CredentialStore, sessions ports.SessionStore, sender ports.ResetSender, cfg Config) (*Gateway, error) {
	if creds == nil || sessions == nil {
		return nil, errors.New("local auth: credential store and session store are required")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("local auth: secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "siprak-portal"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("local auth: bcrypt cost %d out of range", cfg.BcryptCost)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		creds:      creds,
		sessions:   sessions,
		sender:     sender,
		secret:     append([]byte(nil), cfg.Secret...),
		issuer:     cfg.Issuer,
		sessionTTL: cfg.SessionTTL,
		resetTTL:   cfg.ResetTTL,
		cost:       cfg.BcryptCost,
		hub:        sessionhub.New(),
		logger:     logger.With("component", "local_gateway"),
		now:        time.Now,
	}, nil
}

// SignIn checks the password, stores a new session and emits SignedIn.
func (g *Gateway) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error) {
	if err := creds.Validate(); err != nil {
		return domainauth.Session{}, err
	}
	cred, err := g.creds.GetByEmail(ctx, creds.Email)
	if errors.Is(err, data.ErrCredentialNotFound) {
		return domainauth.Session{}, domainauth.ErrInvalidCredentials
	}
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("lookup credential: %w", err)
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(creds.Password)); cmpErr != nil {
		if errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword) {
			return domainauth.Session{}, domainauth.ErrInvalidCredentials
		}
		return domainauth.Session{}, fmt.Errorf("compare password: %w", cmpErr)
	}

	sess, err := g.issue(cred.ID, cred.Email, uuid.NewString())
	if err != nil {
		return domainauth.Session{}, err
	}
	if err := g.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}
	g.hub.SignIn(ctx, sess)
	return sess, nil
}

// SignUp hashes the password and creates the credential. It does not sign in.
func (g *Gateway) SignUp(ctx context.Context, creds domainauth.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}
	hash, err := g.hash(creds.Password)
	if err != nil {
		return "", err
	}
	cred, err := g.creds.Create(ctx, strings.TrimSpace(creds.Email), hash)
	if errors.Is(err, data.ErrEmailTaken) {
		return "", domainauth.ErrEmailRegistered
	}
	if err != nil {
		return "", fmt.Errorf("create credential: %w", err)
	}
	return cred.ID, nil
}

// SignOut revokes the stored session and emits SignedOut. When revocation fails the
// session is kept so the caller can retry.
func (g *Gateway) SignOut(ctx context.Context) error {
	if sess, ok := g.hub.Current(); ok {
		if err := g.sessions.Delete(ctx, sess.ID); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
	}
	g.hub.SignOut(ctx)
	return nil
}

// CurrentSession returns the held session while its token is valid and the store still has it.
func (g *Gateway) CurrentSession(ctx context.Context) (domainauth.Session, bool, error) {
	sess, ok := g.hub.Current()
	if !ok {
		return domainauth.Session{}, false, nil
	}
	live, err := g.validate(ctx, sess)
	if err != nil || !live {
		return domainauth.Session{}, false, err
	}
	return sess, true, nil
}

// Refresh issues a new access token for the current session and emits TokenRefreshed.
func (g *Gateway) Refresh(ctx context.Context) error {
	sess, ok := g.hub.Current()
	if !ok {
		return domainauth.ErrNoSession
	}
	live, err := g.validate(ctx, sess)
	if err != nil {
		return err
	}
	if !live {
		return domainauth.ErrNoSession
	}

	next, err := g.issue(sess.SubjectID, sess.Email, sess.ID)
	if err != nil {
		return err
	}
	if err := g.sessions.Save(ctx, next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	g.hub.Refresh(ctx, next)
	return nil
}

// OnSessionChange registers h for session events.
func (g *Gateway) OnSessionChange(h ports.SessionHandler) ports.Subscription {
	return g.hub.Subscribe(h)
}

// ResetPasswordForEmail sends a single-use reset link. Unknown addresses succeed silently.
func (g *Gateway) ResetPasswordForEmail(ctx context.Context, email, redirectURL string) error {
	if g.sender == nil {
		return fmt.Errorf("local auth: password reset: %w", errors.ErrUnsupported)
	}
	target, err := url.Parse(redirectURL)
	if err != nil || redirectURL == "" {
		return fmt.Errorf("invalid reset redirect URL %q", redirectURL)
	}

	cred, err := g.creds.GetByEmail(ctx, email)
	if errors.Is(err, data.ErrCredentialNotFound) {
		g.logger.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup credential: %w", err)
	}

	now := g.now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, resetClaims{
		PasswordFingerprint: fingerprint(cred.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   cred.ID,
			Issuer:    g.issuer,
			Audience:  jwt.ClaimStrings{resetAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.resetTTL)),
		},
	}).SignedString(g.secret)
	if err != nil {
		return fmt.Errorf("sign reset token: %w", err)
	}

	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()
	if err := g.sender.SendReset(ctx, cred.Email, target.String()); err != nil {
		return fmt.Errorf("send reset link: %w", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password from a reset token and revokes the subject's sessions.
func (g *Gateway) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	var claims resetClaims
	if _, err := g.parse(token, &claims, resetAudience); err != nil {
		return ErrInvalidResetToken
	}
	cred, err := g.creds.GetByID(ctx, claims.Subject)
	if errors.Is(err, data.ErrCredentialNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("lookup credential: %w", err)
	}
	if fingerprint(cred.PasswordHash) != claims.PasswordFingerprint {
		return ErrInvalidResetToken
	}

	hash, err := g.hash(newPassword)
	if err != nil {
		return err
	}
	if err := g.creds.UpdatePassword(ctx, cred.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if revoker, ok := g.sessions.(ports.SessionRevoker); ok {
		if err := revoker.DeleteBySubject(ctx, cred.ID); err != nil {
			g.logger.WarnContext(ctx, "revoke sessions after reset failed", "subject_id", cred.ID, "error", err)
		}
	}
	if sess, ok := g.hub.Current(); ok && sess.SubjectID == cred.ID {
		g.hub.SignOut(ctx)
	}
	return nil
}

// validate reports whether sess is still usable, dropping it when it is not.
func (g *Gateway) validate(ctx context.Context, sess domainauth.Session) (bool, error) {
	var claims accessClaims
	if _, err := g.parse(sess.AccessToken, &claims, accessAudience); err != nil {
		g.logger.DebugContext(ctx, "dropping session with unusable token", "subject_id", sess.SubjectID, "error", err)
		if errors.Is(err, jwt.ErrTokenExpired) {
			if delErr := g.sessions.Delete(ctx, sess.ID); delErr != nil {
				g.logger.WarnContext(ctx, "delete expired session failed", "error", delErr)
			}
		}
		g.hub.Drop()
		return false, nil
	}
	if _, err := g.sessions.Get(ctx, claims.ID); err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			g.hub.Drop()
			return false, nil
		}
		return false, fmt.Errorf("load session: %w", err)
	}
	return true, nil
}

func (g *Gateway) issue(subjectID, email, sessionID string) (domainauth.Session, error) {
	now := g.now()
	expires := now.Add(g.sessionTTL)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   subjectID,
			Issuer:    g.issuer,
			Audience:  jwt.ClaimStrings{accessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(g.secret)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("sign access token: %w", err)
	}
	return domainauth.Session{
		ID:          sessionID,
		SubjectID:   subjectID,
		Email:       email,
		AccessToken: token,
		ExpiresAt:   expires,
	}, nil
}

func (g *Gateway) parse(token string, claims jwt.Claims, audience string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
}

func (g *Gateway) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
