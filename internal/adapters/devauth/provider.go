package devauth

// Package devauth provides a simple, config-driven credential gateway for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siprak/portal/internal/adapters/sessionhub"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/ports"
)

var _ ports.CredentialGateway = (*Gateway)(nil)

// Config controls the dev gateway behavior.
// UserID and Email are required; an empty Password accepts any password.
type Config struct {
	UserID          string
	Email           string
	Password        string
	SessionDuration time.Duration // default 8h when zero
	Logger          *slog.Logger
}

// Gateway implements ports.CredentialGateway for local development.
// Only the configured identity can sign in; sign-up and resets are logged and accepted.
type Gateway struct {
	userID          string
	email           string
	password        string
	sessionDuration time.Duration
	hub             *sessionhub.Hub
	logger          *slog.Logger
	now             func() time.Time
}

// NewGateway constructs a dev gateway from Config.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if _, err := uuid.Parse(cfg.UserID); err != nil {
		return nil, fmt.Errorf("dev auth: UserID must be a UUID: %w", err)
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		userID:          cfg.UserID,
		email:           strings.ToLower(strings.TrimSpace(cfg.Email)),
		password:        cfg.Password,
		sessionDuration: dur,
		hub:             sessionhub.New(),
		logger:          logger.With("component", "dev_gateway"),
		now:             time.Now,
	}, nil
}

// SignIn accepts the configured identity and emits SignedIn.
func (g *Gateway) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error) {
	if err := creds.Validate(); err != nil {
		return domainauth.Session{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(creds.Email), g.email) {
		return domainauth.Session{}, domainauth.ErrInvalidCredentials
	}
	if g.password != "" && creds.Password != g.password {
		return domainauth.Session{}, domainauth.ErrInvalidCredentials
	}

	token, err := randomString(32)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("generate token: %w", err)
	}
	sess := domainauth.Session{
		ID:          uuid.NewString(),
		SubjectID:   g.userID,
		Email:       g.email,
		AccessToken: token,
		ExpiresAt:   g.now().Add(g.sessionDuration),
	}
	g.hub.SignIn(ctx, sess)
	return sess, nil
}

// SignUp returns a fresh subject id without storing anything.
func (g *Gateway) SignUp(ctx context.Context, creds domainauth.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}
	if strings.EqualFold(strings.TrimSpace(creds.Email), g.email) {
		return "", domainauth.ErrEmailRegistered
	}
	id := uuid.NewString()
	g.logger.InfoContext(ctx, "dev sign up accepted", "email", creds.Email, "subject_id", id)
	return id, nil
}

// SignOut clears the session and emits SignedOut.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.hub.SignOut(ctx)
	return nil
}

// CurrentSession returns the held session until it expires.
func (g *Gateway) CurrentSession(context.Context) (domainauth.Session, bool, error) {
	sess, ok := g.hub.Current()
	if !ok {
		return domainauth.Session{}, false, nil
	}
	if sess.Expired(g.now()) {
		g.hub.Drop()
		return domainauth.Session{}, false, nil
	}
	return sess, true, nil
}

// Refresh extends the session and emits TokenRefreshed.
func (g *Gateway) Refresh(ctx context.Context) error {
	sess, ok := g.hub.Current()
	if !ok {
		return domainauth.ErrNoSession
	}
	sess.ExpiresAt = g.now().Add(g.sessionDuration)
	g.hub.Refresh(ctx, sess)
	return nil
}

// OnSessionChange registers h for session events.
func (g *Gateway) OnSessionChange(h ports.SessionHandler) ports.Subscription {
	return g.hub.Subscribe(h)
}

// ResetPasswordForEmail logs the request.
func (g *Gateway) ResetPasswordForEmail(ctx context.Context, email, redirectURL string) error {
	g.logger.InfoContext(ctx, "dev password reset requested", "email", email, "redirect_url", redirectURL)
	return nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
