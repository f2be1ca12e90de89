package oidc

// Package oidc provides a credential gateway backed by an OpenID Connect provider.
// Sign-in uses the resource owner password grant; subject and email are mapped from
// ID token or userinfo claims with JMESPath expressions.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/siprak/portal/internal/adapters/sessionhub"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.CredentialGateway = (*Gateway)(nil)

// Default claim expressions.
const (
	DefaultSubjectClaim = "sub"
	DefaultEmailClaim   = "email"
)

// Gateway implements ports.CredentialGateway against an OIDC provider.
type Gateway struct {
	config     *oauth2.Config
	httpClient *http.Client

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier

	subjectClaim string
	emailClaim   string

	hub    *sessionhub.Hub
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// ProviderConfig holds configuration for the OIDC gateway.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	SubjectClaim string       // JMESPath over the claims; defaults to "sub"
	EmailClaim   string       // JMESPath over the claims; defaults to "email"
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
	Logger       *slog.Logger
}

// NewGateway discovers the provider and builds the gateway.
func NewGateway(ctx context.Context, config ProviderConfig) (*Gateway, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	subjectClaim := firstNonEmpty(strings.TrimSpace(config.SubjectClaim), DefaultSubjectClaim)
	emailClaim := firstNonEmpty(strings.TrimSpace(config.EmailClaim), DefaultEmailClaim)
	for _, expr := range []string{subjectClaim, emailClaim} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid claim expression %q: %w", expr, err)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		httpClient:   httpClient,
		subjectClaim: subjectClaim,
		emailClaim:   emailClaim,
		hub:          sessionhub.New(),
		logger:       logger.With("component", "oidc_gateway"),
		now:          time.Now,
	}

	// Single discovery fetch for provider and verifier.
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(g.clientCtx(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	g.oidcProvider = op
	g.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	g.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       strings.Fields(config.Scope),
		Endpoint:     op.Endpoint(),
	}
	return g, nil
}

// SignIn runs the password grant and emits SignedIn.
func (g *Gateway) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error) {
	if err := creds.Validate(); err != nil {
		return domainauth.Session{}, err
	}

	tok, err := g.config.PasswordCredentialsToken(g.clientCtx(ctx), strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		if isInvalidGrant(err) {
			return domainauth.Session{}, domainauth.ErrInvalidCredentials
		}
		return domainauth.Session{}, fmt.Errorf("password grant: %w", err)
	}

	fields, err := g.extractFromIDToken(ctx, tok)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("extract id_token: %w", err)
	}
	if fields.subjectID == "" || fields.email == "" {
		if fillErr := g.fillFromUserInfo(ctx, tok, &fields); fillErr != nil {
			return domainauth.Session{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.subjectID == "" {
		return domainauth.Session{}, fmt.Errorf("claim %q is empty", g.subjectClaim)
	}

	sess := domainauth.Session{
		ID:          uuid.NewString(),
		SubjectID:   fields.subjectID,
		Email:       firstNonEmpty(fields.email, strings.TrimSpace(creds.Email)),
		AccessToken: tok.AccessToken,
		ExpiresAt:   g.expiry(tok),
	}

	g.mu.Lock()
	g.token = tok
	g.mu.Unlock()

	g.hub.SignIn(ctx, sess)
	return sess, nil
}

// SignUp is not offered by OIDC providers through this gateway.
func (g *Gateway) SignUp(context.Context, domainauth.Credentials) (string, error) {
	return "", fmt.Errorf("oidc gateway: sign up: %w", errors.ErrUnsupported)
}

// SignOut forgets the tokens and emits SignedOut.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	g.token = nil
	g.mu.Unlock()

	g.hub.SignOut(ctx)
	return nil
}

// CurrentSession returns the held session, refreshing it first when the access token expired.
// A refresh the provider rejects ends the session; transport failures are returned.
func (g *Gateway) CurrentSession(ctx context.Context) (domainauth.Session, bool, error) {
	sess, ok := g.hub.Current()
	if !ok {
		return domainauth.Session{}, false, nil
	}
	if !sess.Expired(g.now()) {
		return sess, true, nil
	}

	refreshed, err := g.refresh(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) || errors.Is(err, domainauth.ErrNoSession) {
			g.logger.InfoContext(ctx, "session expired and could not be refreshed", "subject_id", sess.SubjectID, "error", err)
			g.drop()
			return domainauth.Session{}, false, nil
		}
		return domainauth.Session{}, false, err
	}
	return refreshed, true, nil
}

// Refresh exchanges the refresh token for a new access token and emits TokenRefreshed.
func (g *Gateway) Refresh(ctx context.Context) error {
	_, err := g.refresh(ctx)
	return err
}

// OnSessionChange registers h for session events.
func (g *Gateway) OnSessionChange(h ports.SessionHandler) ports.Subscription {
	return g.hub.Subscribe(h)
}

// ResetPasswordForEmail is handled by the identity provider's own pages.
func (g *Gateway) ResetPasswordForEmail(context.Context, string, string) error {
	return fmt.Errorf("oidc gateway: password reset: %w", errors.ErrUnsupported)
}

func (g *Gateway) refresh(ctx context.Context) (domainauth.Session, error) {
	sess, ok := g.hub.Current()
	g.mu.Lock()
	tok := g.token
	g.mu.Unlock()
	if !ok || tok == nil {
		return domainauth.Session{}, domainauth.ErrNoSession
	}
	if tok.RefreshToken == "" {
		return domainauth.Session{}, errors.New("provider issued no refresh token")
	}

	next, err := g.config.TokenSource(g.clientCtx(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("refresh token: %w", err)
	}

	sess.AccessToken = next.AccessToken
	sess.ExpiresAt = g.expiry(next)

	g.mu.Lock()
	g.token = next
	g.mu.Unlock()

	g.hub.Refresh(ctx, sess)
	return sess, nil
}

func (g *Gateway) drop() {
	g.mu.Lock()
	g.token = nil
	g.mu.Unlock()
	g.hub.Drop()
}

func (g *Gateway) clientCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func (g *Gateway) expiry(tok *oauth2.Token) time.Time {
	if tok.Expiry.IsZero() {
		return g.now().Add(time.Hour)
	}
	return tok.Expiry
}

// internal helper types and functions to keep SignIn small

type idFields struct {
	subjectID string
	email     string
}

func (g *Gateway) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	if !g.hasOpenIDScope() {
		return idFields{}, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := g.verifier.Verify(g.clientCtx(ctx), rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return mapClaims(claims, g.subjectClaim, g.emailClaim)
}

func (g *Gateway) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	ui, err := g.oidcProvider.UserInfo(g.clientCtx(ctx), oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims map[string]any
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fromUI, err := mapClaims(claims, g.subjectClaim, g.emailClaim)
	if err != nil {
		return err
	}
	f.subjectID = firstNonEmpty(f.subjectID, fromUI.subjectID)
	f.email = firstNonEmpty(f.email, fromUI.email)
	return nil
}

// mapClaims evaluates the subject and email expressions over a claim set.
func mapClaims(claims map[string]any, subjectExpr, emailExpr string) (idFields, error) {
	subject, err := searchString(subjectExpr, claims)
	if err != nil {
		return idFields{}, err
	}
	email, err := searchString(emailExpr, claims)
	if err != nil {
		return idFields{}, err
	}
	return idFields{subjectID: subject, email: email}, nil
}

func searchString(expr string, claims map[string]any) (string, error) {
	v, err := jmespath.Search(expr, claims)
	if err != nil {
		return "", fmt.Errorf("evaluate claim %q: %w", expr, err)
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	default:
		return "", fmt.Errorf("claim %q is %T, want string", expr, v)
	}
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	return re.ErrorCode == "invalid_grant" || re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (g *Gateway) hasOpenIDScope() bool {
	for _, sc := range g.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
