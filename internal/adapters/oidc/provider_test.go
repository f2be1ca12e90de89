package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/siprak/portal/internal/domain/auth"
)

const (
	testEmail    = "student@kampus.ac.id"
	testPassword = "rahasia"
	testClientID = "portal-cli"
)

// fakeIdP serves discovery, the password and refresh grants, and userinfo.
type fakeIdP struct {
	srv       *httptest.Server
	portalID  string
	idToken   string
	mu        sync.Mutex
	refreshes int
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{portalID: uuid.NewString()}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                 idp.srv.URL,
			"authorization_endpoint": idp.srv.URL + "/auth",
			"token_endpoint":         idp.srv.URL + "/token",
			"userinfo_endpoint":      idp.srv.URL + "/userinfo",
			"jwks_uri":               idp.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.Form.Get("grant_type") {
		case "password":
			if r.Form.Get("username") != testEmail || r.Form.Get("password") != testPassword {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
				return
			}
			body := map[string]any{
				"access_token":  "at-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "rt-1",
			}
			if idp.idToken != "" {
				body["id_token"] = idp.idToken
			}
			writeJSON(w, http.StatusOK, body)
		case "refresh_token":
			idp.mu.Lock()
			idp.refreshes++
			idp.mu.Unlock()
			if r.Form.Get("refresh_token") != "rt-1" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "at-2",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"sub":     "idp-123",
			"email":   testEmail,
			"profile": map[string]any{"portal_id": idp.portalID},
		})
	})
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGateway(t *testing.T, idp *fakeIdP, scope string) *Gateway {
	t.Helper()
	g, err := NewGateway(context.Background(), ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "secret",
		Scope:        scope,
		DiscoveryURL: idp.srv.URL + "/.well-known/openid-configuration",
		SubjectClaim: "profile.portal_id",
	})
	require.NoError(t, err)
	return g
}

type eventLog struct {
	mu     sync.Mutex
	events []domainauth.SessionEvent
}

func (l *eventLog) record(_ context.Context, ev domainauth.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []domainauth.SessionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainauth.SessionEvent(nil), l.events...)
}

func TestNewGateway_Discovery(t *testing.T) {
	idp := newFakeIdP(t)
	g := newTestGateway(t, idp, "profile email")

	assert.Equal(t, idp.srv.URL+"/token", g.config.Endpoint.TokenURL)
	assert.Equal(t, "profile.portal_id", g.subjectClaim)
	assert.Equal(t, DefaultEmailClaim, g.emailClaim)
}

func TestNewGateway_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name:   "missing client ID",
			config: ProviderConfig{DiscoveryURL: "http://example.com"},
			errMsg: "client ID is required",
		},
		{
			name:   "missing discovery URL",
			config: ProviderConfig{ClientID: "client"},
			errMsg: "discovery URL is required",
		},
		{
			name:   "bad claim expression",
			config: ProviderConfig{ClientID: "client", DiscoveryURL: "http://example.com", SubjectClaim: "profile.["},
			errMsg: "invalid claim expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGateway(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGateway_SignInFromUserInfo(t *testing.T) {
	idp := newFakeIdP(t)
	g := newTestGateway(t, idp, "profile email")
	log := &eventLog{}
	g.OnSessionChange(log.record)

	sess, err := g.SignIn(context.Background(), domainauth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	assert.Equal(t, idp.portalID, sess.SubjectID)
	assert.Equal(t, testEmail, sess.Email)
	assert.Equal(t, "at-1", sess.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)
	assert.Equal(t, []domainauth.SessionEvent{domainauth.SignedIn(idp.portalID)}, log.all())

	cur, ok, err := g.CurrentSession(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.ID, cur.ID)
}

func TestGateway_SignInWrongPassword(t *testing.T) {
	idp := newFakeIdP(t)
	g := newTestGateway(t, idp, "profile email")
	log := &eventLog{}
	g.OnSessionChange(log.record)

	_, err := g.SignIn(context.Background(), domainauth.Credentials{Email: testEmail, Password: "salah"})
	require.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	assert.Empty(t, log.all())

	_, ok, err := g.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateway_SignInVerifiesIDToken(t *testing.T) {
	idp := newFakeIdP(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":     idp.srv.URL,
		"aud":     testClientID,
		"sub":     "idp-123",
		"email":   testEmail,
		"profile": map[string]any{"portal_id": idp.portalID},
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)
	idp.idToken = raw

	g := newTestGateway(t, idp, "openid profile email")
	g.verifier = gooidc.NewVerifier(idp.srv.URL,
		&gooidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&gooidc.Config{ClientID: testClientID})

	sess, err := g.SignIn(context.Background(), domainauth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, idp.portalID, sess.SubjectID)
}

func TestGateway_RejectsForgedIDToken(t *testing.T) {
	idp := newFakeIdP(t)
	signer, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": idp.srv.URL,
		"aud": testClientID,
		"sub": "idp-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(signer)
	require.NoError(t, err)
	idp.idToken = raw

	g := newTestGateway(t, idp, "openid")
	g.verifier = gooidc.NewVerifier(idp.srv.URL,
		&gooidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&other.PublicKey}},
		&gooidc.Config{ClientID: testClientID})

	_, err = g.SignIn(context.Background(), domainauth.Credentials{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify id_token")
}

func TestGateway_RefreshEmitsTokenRefreshed(t *testing.T) {
	idp := newFakeIdP(t)
	g := newTestGateway(t, idp, "profile email")
	ctx := context.Background()

	_, err := g.SignIn(ctx, domainauth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	log := &eventLog{}
	g.OnSessionChange(log.record)
	require.NoError(t, g.Refresh(ctx))

	assert.Equal(t, []domainauth.SessionEvent{domainauth.TokenRefreshed(idp.portalID)}, log.all())
	cur, ok, err := g.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "at-2", cur.AccessToken)
}

func TestGateway_CurrentSessionRefreshesExpired(t *testing.T) {
	idp := newFakeIdP(t)
	g := newTestGateway(t, idp, "profile email")
	ctx := context.Background()

	_, err := g.SignIn(ctx, domainauth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	g.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	cur, ok, err := g.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "at-2", cur.AccessToken)
	idp.mu.Lock()
	defer idp.mu.Unlock()
	assert.Equal(t, 1, idp.refreshes)
}

func TestGateway_SignOut(t *testing.T) {
	idp := newFakeIdP(t)
	g := newTestGateway(t, idp, "profile email")
	ctx := context.Background()
	log := &eventLog{}
	sub := g.OnSessionChange(log.record)
	defer sub.Close()

	_, err := g.SignIn(ctx, domainauth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, g.SignOut(ctx))

	_, ok, err := g.CurrentSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, log.all(), 2)
	assert.Equal(t, domainauth.SignedOut(), log.all()[1])
	assert.ErrorIs(t, g.Refresh(ctx), domainauth.ErrNoSession)
}

func TestGateway_UnsupportedOperations(t *testing.T) {
	g := &Gateway{}
	_, err := g.SignUp(context.Background(), domainauth.Credentials{})
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	assert.ErrorIs(t, g.ResetPasswordForEmail(context.Background(), testEmail, "http://x"), errors.ErrUnsupported)
}

func TestMapClaims(t *testing.T) {
	claims := map[string]any{
		"sub":    "abc",
		"email":  " a@b.c ",
		"groups": []any{"x"},
	}

	f, err := mapClaims(claims, "sub", "email")
	require.NoError(t, err)
	assert.Equal(t, idFields{subjectID: "abc", email: "a@b.c"}, f)

	f, err = mapClaims(claims, "missing", "email")
	require.NoError(t, err)
	assert.Empty(t, f.subjectID)

	_, err = mapClaims(claims, "groups", "email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want string")
}
