package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the credential gateway.
type AuthMode string

const (
	// AuthModeLocal keeps credentials in Postgres and sessions in Redis.
	AuthModeLocal AuthMode = "local"
	// AuthModeOIDC delegates credentials to an OpenID Connect provider.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock signs in a single configured identity (development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "oidc", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, oidc, mock)", v)
	}
}

// LocalAuthConfig configures the built-in credential gateway.
type LocalAuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	Issuer     string        `env:"ISSUER"      envDefault:"siprak-portal"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	ResetTTL   time.Duration `env:"RESET_TTL"   envDefault:"30m"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`
}

// Sanitize applies guardrails to local auth values.
func (c *LocalAuthConfig) Sanitize() {
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	if c.Issuer = strings.TrimSpace(c.Issuer); c.Issuer == "" {
		c.Issuer = "siprak-portal"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = 30 * time.Minute
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		c.BcryptCost = 10
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"siprak-portal"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// SubjectClaim and EmailClaim are JMESPath expressions evaluated against the ID token
	// or userinfo claims.
	SubjectClaim string `env:"SUBJECT_CLAIM" envDefault:"sub"`
	EmailClaim   string `env:"EMAIL_CLAIM"   envDefault:"email"`
}

// Sanitize trims OAuth values.
func (c *OAuthConfig) Sanitize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.DiscoveryURL = strings.TrimSpace(c.DiscoveryURL)
	c.Scope = strings.Join(strings.Fields(c.Scope), " ")
	if c.SubjectClaim = strings.TrimSpace(c.SubjectClaim); c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.EmailClaim = strings.TrimSpace(c.EmailClaim); c.EmailClaim == "" {
		c.EmailClaim = "email"
	}
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID   string `env:"USER_ID"  envDefault:"00000000-0000-4000-8000-000000000001"`
	Email    string `env:"EMAIL"    envDefault:"dev@siprak.local"`
	Password string `env:"PASSWORD"`
}

// RouteConfig maps each role to its landing route.
type RouteConfig struct {
	Admin    string `env:"ADMIN"     envDefault:"/admin"`
	Lecturer string `env:"LECTURER"  envDefault:"/dosen"`
	Student  string `env:"STUDENT"   envDefault:"/mahasiswa"`
	LabStaff string `env:"LAB_STAFF" envDefault:"/laboran"`
	Fallback string `env:"FALLBACK"  envDefault:"/dashboard"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which credential gateway to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	// LoginRoute is shown after sign-out and registration.
	LoginRoute string `env:"AUTH_LOGIN_ROUTE" envDefault:"/login"`

	// ResetRedirectURL is where password reset links land.
	ResetRedirectURL string `env:"AUTH_RESET_REDIRECT_URL" envDefault:"http://localhost:5173/reset-password"`

	Routes  RouteConfig     `envPrefix:"AUTH_ROUTE_"`
	Local   LocalAuthConfig `envPrefix:"LOCAL_AUTH_"`
	OAuth   OAuthConfig     `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig   `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies guardrails to auth values.
func (c *AuthConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = AuthModeLocal
	}
	if c.LoginRoute = strings.TrimSpace(c.LoginRoute); c.LoginRoute == "" {
		c.LoginRoute = "/login"
	}
	c.ResetRedirectURL = strings.TrimSpace(c.ResetRedirectURL)
	if c.Routes.Fallback = strings.TrimSpace(c.Routes.Fallback); c.Routes.Fallback == "" {
		c.Routes.Fallback = "/dashboard"
	}
	c.Local.Sanitize()
	c.OAuth.Sanitize()
}

// Validate reports configuration the selected mode cannot start without.
func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeLocal:
		if len(c.Local.JWTSecret) < 32 {
			return errors.New("LOCAL_AUTH_JWT_SECRET must be at least 32 bytes for AUTH_MODE=local")
		}
	case AuthModeOIDC:
		if c.OAuth.DiscoveryURL == "" {
			return errors.New("OAUTH_DISCOVERY_URL is required for AUTH_MODE=oidc")
		}
	case AuthModeMock:
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.Mode)
	}
	return nil
}
