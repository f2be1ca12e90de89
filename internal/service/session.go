package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/siprak/portal/internal/data"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	apperrors "github.com/siprak/portal/internal/errors"
	"github.com/siprak/portal/internal/observability/metrics"
	"github.com/siprak/portal/internal/observability/statsd"
	"github.com/siprak/portal/internal/ports"
)

var (
	// ErrNotAuthenticated is returned by operations that need an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionSuperseded is returned when a newer session event overtook the operation.
	ErrSessionSuperseded = errors.New("session changed while the request was in flight")
	// ErrMachineClosed is returned by operations on a closed SessionMachine.
	ErrMachineClosed = errors.New("session machine is closed")
)

// User-facing messages stored in SessionState.Error.
const (
	msgLoginFailed        = "login failed"
	msgProfileLoadFailed  = "failed to load user profile"
	msgAuthError          = "authentication error"
	msgRegisterFailed     = "registration failed"
	msgLogoutFailed       = "logout failed"
	msgResetFailed        = "failed to send password reset email"
	msgUpdateFailed       = "failed to update profile"
	msgUnsupportedGateway = "operation not supported by the identity provider"
	msgRoleNotFound       = "role not found"
)

// Default routes when none are configured.
const (
	DefaultLoginRoute     = "/login"
	DefaultDashboardRoute = "/dashboard"
)

// SubjectListener is told the authenticated subject id whenever it changes; "" means nobody.
type SubjectListener func(ctx context.Context, subjectID string)

// SessionMachineOptions groups dependencies for SessionMachine.
type SessionMachineOptions struct {
	Gateway          ports.CredentialGateway // Required
	Resolver         ports.SnapshotResolver  // Required
	Profiles         ports.ProfileRepository // Required: registration, last login, profile edits
	Roles            ports.RoleRepository    // Required: registration
	Navigator        ports.Navigator         // Optional: route side effects
	Routes           ports.RouteMapper       // Optional: landing route per snapshot
	LoginRoute       string                  // Optional: defaults to DefaultLoginRoute
	ResetRedirectURL string                  // Where password reset links land
	Logger           *slog.Logger            // Optional: structured logger
	Metrics          statsd.Sink             // Optional: metrics sink (StatsD-compatible)
}

// SessionMachine owns the portal's session state. Gateway events and explicit operations
// drive it through Uninitialized, Loading, Authenticated, Anonymous and Errored.
//
// mu guards the fields below it and is never held across gateway, resolver or repository
// calls. generation increases whenever a newer event or operation must win over older
// in-flight work; results are committed only if the generation they started with is current.
type SessionMachine struct {
	gateway          ports.CredentialGateway
	resolver         ports.SnapshotResolver
	profiles         ports.ProfileRepository
	roles            ports.RoleRepository
	navigator        ports.Navigator
	routes           ports.RouteMapper
	loginRoute       string
	resetRedirectURL string
	logger           *slog.Logger
	metrics          statsd.Sink

	mu            sync.Mutex
	state         domainauth.SessionState
	generation    uint64
	loginsPending int
	initialized   bool
	closed        bool
	gatewaySub    ports.Subscription
	listeners     map[uint64]SubjectListener
	nextListener  uint64
	lastSubject   string
	publishSeq    uint64

	publishMu    sync.Mutex
	publishedSeq uint64
}

// NewSessionMachine constructs a SessionMachine in the Uninitialized state.
func NewSessionMachine(opts SessionMachineOptions) (*SessionMachine, error) {
	if opts.Gateway == nil {
		return nil, errors.New("credential gateway is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("snapshot resolver is required")
	}
	if opts.Profiles == nil || opts.Roles == nil {
		return nil, errors.New("profile and role repositories are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loginRoute := opts.LoginRoute
	if loginRoute == "" {
		loginRoute = DefaultLoginRoute
	}
	return &SessionMachine{
		gateway:          opts.Gateway,
		resolver:         opts.Resolver,
		profiles:         opts.Profiles,
		roles:            opts.Roles,
		navigator:        opts.Navigator,
		routes:           opts.Routes,
		loginRoute:       loginRoute,
		resetRedirectURL: opts.ResetRedirectURL,
		logger:           logger.With("component", "session_machine"),
		metrics:          opts.Metrics,
		state:            domainauth.Uninitialized(),
		listeners:        make(map[uint64]SubjectListener),
	}, nil
}

// Initialize subscribes to gateway events and restores any existing session.
// Calling it again re-checks the gateway session.
func (m *SessionMachine) Initialize(ctx context.Context) error {
	start := time.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMachineClosed
	}
	if !m.initialized {
		m.initialized = true
		// Subscribe before asking for the session so no event slips between the two.
		m.gatewaySub = m.gateway.OnSessionChange(m.HandleEvent)
	}
	m.generation++
	ticket := m.generation
	m.commitAndUnlock(ctx, "initialize", domainauth.Loading(), nil)

	sess, ok, err := m.gateway.CurrentSession(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "gateway session lookup failed", "error", err)
		m.commitIfCurrent(ctx, ticket, "initialize", domainauth.Errored(msgAuthError), err, start)
		return apperrors.Gateway(err, msgAuthError)
	}
	if !ok {
		m.commitIfCurrent(ctx, ticket, "initialize", domainauth.Anonymous(), nil, start)
		return nil
	}

	snap, err := m.resolver.Resolve(ctx, sess.SubjectID)
	if err != nil {
		msg := apperrors.Message(err, msgProfileLoadFailed)
		m.logger.WarnContext(ctx, "initial profile resolution failed", "subject_id", sess.SubjectID, "error", err)
		m.commitIfCurrent(ctx, ticket, "initialize", domainauth.Anonymous().WithError(msg), err, start)
		return err
	}
	if !m.commitIfCurrent(ctx, ticket, "initialize", domainauth.Authenticated(snap), nil, start) {
		return ErrSessionSuperseded
	}
	return nil
}

// HandleEvent applies a gateway session event. It is registered with the gateway by
// Initialize and may also be called directly.
func (m *SessionMachine) HandleEvent(ctx context.Context, ev domainauth.SessionEvent) {
	switch ev.Kind {
	case domainauth.EventSignedIn:
		m.onSignedIn(ctx, ev.SubjectID)
	case domainauth.EventSignedOut:
		m.onSignedOut(ctx)
	case domainauth.EventTokenRefreshed:
		m.onTokenRefreshed(ctx, ev.SubjectID)
	default:
		m.logger.WarnContext(ctx, "ignoring unknown session event", "event", ev.Kind)
	}
}

func (m *SessionMachine) onSignedIn(ctx context.Context, subjectID string) {
	start := time.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.loginsPending > 0 {
		// Login resolves the snapshot itself.
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "sign-in event deferred to pending login", "subject_id", subjectID)
		return
	}
	m.generation++
	ticket := m.generation
	m.mu.Unlock()

	snap, err := m.resolver.Resolve(ctx, subjectID)
	if err != nil {
		m.logger.WarnContext(ctx, "resolution after sign-in failed", "subject_id", subjectID, "error", err)
		m.mu.Lock()
		if m.closed || m.generation != ticket || m.state.Kind != domainauth.StateLoading {
			// An established state is kept; only a pending first resolution settles here.
			m.mu.Unlock()
			m.emit("signed_in", "", "", metrics.ResultError, err, start)
			return
		}
		m.commitAndUnlock(ctx, "signed_in", domainauth.Anonymous().WithError(apperrors.Message(err, msgProfileLoadFailed)), err)
		m.emit("signed_in", domainauth.StateLoading.String(), domainauth.StateAnonymous.String(), metrics.ResultError, err, start)
		return
	}
	if !m.commitIfCurrent(ctx, ticket, "signed_in", domainauth.Authenticated(snap), nil, start) {
		m.logger.DebugContext(ctx, "discarding stale sign-in resolution", "subject_id", subjectID, "generation", ticket)
	}
}

func (m *SessionMachine) onSignedOut(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.commitAndUnlock(ctx, "signed_out", domainauth.Anonymous(), nil)
	m.navigate(ctx, m.loginRoute)
}

func (m *SessionMachine) onTokenRefreshed(ctx context.Context, subjectID string) {
	start := time.Now()
	m.mu.Lock()
	if m.closed || !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return
	}
	m.generation++
	ticket := m.generation
	m.mu.Unlock()

	snap, err := m.resolver.Resolve(ctx, subjectID)
	if err != nil {
		// Keep the current snapshot; a refresh never drops the session.
		m.logger.WarnContext(ctx, "resolution after token refresh failed", "subject_id", subjectID, "error", err)
		m.emit("token_refreshed", "", "", metrics.ResultError, err, start)
		return
	}

	m.mu.Lock()
	if m.closed || m.generation != ticket || !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return
	}
	m.commitAndUnlock(ctx, "token_refreshed", domainauth.Authenticated(snap), nil)
}

// Login signs in with credentials, resolves the snapshot and navigates to the landing route
// of the highest-precedence role. On gateway failure the previous state is restored with the
// error message stored in it, and the error is returned.
func (m *SessionMachine) Login(ctx context.Context, creds domainauth.Credentials) error {
	start := time.Now()
	if err := creds.Validate(); err != nil {
		verr := apperrors.Validation(err.Error())
		m.storeError(verr.Message)
		return verr
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMachineClosed
	}
	prev := m.state
	m.generation++
	ticket := m.generation
	m.loginsPending++
	m.commitAndUnlock(ctx, "login", domainauth.Loading(), nil)

	sess, err := m.gateway.SignIn(ctx, creds)
	if err != nil {
		gerr := apperrors.Gateway(err, gatewayMessage(err, msgLoginFailed))
		m.mu.Lock()
		m.loginsPending--
		if m.closed || m.generation != ticket {
			m.mu.Unlock()
			return gerr
		}
		m.commitAndUnlock(ctx, "login", prev.WithError(gerr.Message), gerr)
		m.emit("login", prev.Kind.String(), prev.Kind.String(), metrics.ResultError, gerr, start)
		return gerr
	}

	if touchErr := m.profiles.TouchLastLogin(ctx, sess.SubjectID); touchErr != nil {
		m.logger.WarnContext(ctx, "failed to record last login", "subject_id", sess.SubjectID, "error", touchErr)
	}

	snap, err := m.resolver.Resolve(ctx, sess.SubjectID)

	m.mu.Lock()
	m.loginsPending--
	if m.closed || m.generation != ticket {
		m.mu.Unlock()
		return ErrSessionSuperseded
	}
	if err != nil {
		msg := apperrors.Message(err, msgProfileLoadFailed)
		m.logger.WarnContext(ctx, "resolution after login failed", "subject_id", sess.SubjectID, "error", err)
		m.commitAndUnlock(ctx, "login", domainauth.Anonymous().WithError(msg), err)
		return err
	}
	m.commitAndUnlock(ctx, "login", domainauth.Authenticated(snap), nil)
	m.emit("login", prev.Kind.String(), domainauth.StateAuthenticated.String(), metrics.ResultSuccess, nil, start)

	m.navigate(ctx, m.landingRoute(snap))
	return nil
}

// Register creates the credential, the profile row and the role assignment, in that order,
// then returns to the previous state and navigates to the login route. It never signs in.
// A failure after the credential exists leaves that credential orphaned; it is logged.
func (m *SessionMachine) Register(ctx context.Context, in domainauth.RegisterData) (string, error) {
	if err := in.Validate(); err != nil {
		verr := apperrors.Validation(err.Error())
		m.storeError(verr.Message)
		return "", verr
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrMachineClosed
	}
	prev := m.state
	ticket := m.generation
	m.commitAndUnlock(ctx, "register", domainauth.Loading(), nil)

	subjectID, err := m.register(ctx, in)

	m.mu.Lock()
	if m.closed || m.generation != ticket {
		m.mu.Unlock()
		if err != nil {
			return "", err
		}
		return subjectID, nil
	}
	if err != nil {
		m.commitAndUnlock(ctx, "register", prev.WithError(apperrors.Message(err, msgRegisterFailed)), err)
		return "", err
	}
	m.commitAndUnlock(ctx, "register", prev.WithError(""), nil)
	m.navigate(ctx, m.loginRoute)
	return subjectID, nil
}

func (m *SessionMachine) register(ctx context.Context, in domainauth.RegisterData) (string, error) {
	subjectID, err := m.gateway.SignUp(ctx, in.Credentials)
	if err != nil {
		return "", apperrors.Gateway(err, gatewayMessage(err, msgRegisterFailed))
	}

	orphaned := func(stage string, cause error) {
		m.logger.ErrorContext(ctx, "registration left an orphaned credential",
			"orphan_subject_id", subjectID, "stage", stage, "error", cause)
	}

	if _, err := m.profiles.Create(ctx, domainauth.CreateProfileRequest{
		ID:       subjectID,
		Email:    in.Email,
		FullName: in.FullName,
		NimNip:   in.NimNip,
	}); err != nil {
		orphaned("profile", err)
		if errors.Is(err, data.ErrProfileExists) {
			return "", apperrors.Wrap(err, apperrors.ErrCodeConflict, "profile already exists")
		}
		return "", apperrors.RemoteWrite(err, "failed to create user profile")
	}

	role, err := m.roles.GetByCode(ctx, in.Role)
	if err != nil || role == nil {
		if err == nil || errors.Is(err, data.ErrRoleNotFound) {
			err = data.ErrRoleNotFound
			orphaned("role_lookup", err)
			return "", apperrors.Wrap(err, apperrors.ErrCodeNotFound, msgRoleNotFound)
		}
		orphaned("role_lookup", err)
		return "", apperrors.Resolution(err, "failed to look up role")
	}

	if err := m.roles.Assign(ctx, subjectID, role.ID); err != nil {
		orphaned("role_assignment", err)
		return "", apperrors.RemoteWrite(err, "failed to assign role")
	}

	m.logger.InfoContext(ctx, "registered subject", "subject_id", subjectID, "role", in.Role)
	return subjectID, nil
}

// Logout signs out through the gateway. On success the snapshot is cleared and the login
// route shown; on failure the error is stored and the snapshot kept.
func (m *SessionMachine) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMachineClosed
	}
	m.mu.Unlock()

	if err := m.gateway.SignOut(ctx); err != nil {
		gerr := apperrors.Gateway(err, gatewayMessage(err, msgLogoutFailed))
		m.storeError(gerr.Message)
		m.logger.WarnContext(ctx, "sign out failed", "error", err)
		return gerr
	}

	m.mu.Lock()
	if m.closed || m.state.Kind == domainauth.StateAnonymous {
		// The gateway's SignedOut event already cleared the session.
		m.mu.Unlock()
		return nil
	}
	// In-flight refreshes and profile edits must not commit after a confirmed sign-out.
	m.generation++
	m.commitAndUnlock(ctx, "logout", domainauth.Anonymous(), nil)
	m.navigate(ctx, m.loginRoute)
	return nil
}

// ResetPassword asks the gateway to send a reset link landing on the configured redirect URL.
func (m *SessionMachine) ResetPassword(ctx context.Context, email string) error {
	if err := (domainauth.Credentials{Email: email, Password: "-"}).Validate(); err != nil {
		verr := apperrors.ValidationField("email", err.Error())
		m.storeError(verr.Message)
		return verr
	}
	if err := m.gateway.ResetPasswordForEmail(ctx, email, m.resetRedirectURL); err != nil {
		gerr := apperrors.Gateway(err, gatewayMessage(err, msgResetFailed))
		m.storeError(gerr.Message)
		return gerr
	}
	return nil
}

// UpdateProfile writes patch to the current subject's profile and replaces the snapshot.
// It fails with ErrNotAuthenticated, without touching state, when nobody is signed in.
func (m *SessionMachine) UpdateProfile(ctx context.Context, patch domainauth.ProfilePatch) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMachineClosed
	}
	if !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	subjectID := m.state.SubjectID()
	m.mu.Unlock()

	if err := patch.Validate(); err != nil {
		verr := apperrors.Validation(err.Error())
		m.storeError(verr.Message)
		return verr
	}

	m.mu.Lock()
	m.generation++
	ticket := m.generation
	m.mu.Unlock()

	if _, err := m.profiles.Update(ctx, subjectID, patch); err != nil {
		var werr error
		if errors.Is(err, data.ErrProfileNotFound) {
			werr = apperrors.ProfileNotFound(subjectID)
		} else {
			werr = apperrors.RemoteWrite(err, msgUpdateFailed)
		}
		m.storeError(apperrors.Message(werr, msgUpdateFailed))
		return werr
	}

	snap, err := m.resolver.Resolve(ctx, subjectID)
	if err != nil {
		m.storeError(apperrors.Message(err, msgProfileLoadFailed))
		return err
	}

	m.mu.Lock()
	if m.closed || m.generation != ticket || !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return nil
	}
	m.commitAndUnlock(ctx, "update_profile", domainauth.Authenticated(snap), nil)
	return nil
}

// CheckPermission reports whether the authenticated subject holds code. False otherwise.
func (m *SessionMachine) CheckPermission(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthenticated() && m.state.Snapshot.HasPermission(code)
}

// HasRole reports whether the authenticated subject holds an active role code. False otherwise.
func (m *SessionMachine) HasRole(code domainauth.RoleCode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthenticated() && m.state.Snapshot.HasRole(code)
}

// State returns the current state.
func (m *SessionMachine) State() domainauth.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current snapshot when authenticated.
func (m *SessionMachine) Snapshot() (domainauth.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.IsAuthenticated() {
		return domainauth.Snapshot{}, false
	}
	return m.state.Snapshot, true
}

// Err returns the last stored error message, or "".
func (m *SessionMachine) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Error
}

// Subscribe registers fn for subject changes until the handle is closed.
func (m *SessionMachine) Subscribe(fn SubjectListener) ports.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	return &listenerHandle{release: func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}}
}

// Close detaches from the gateway and drops all listeners. Results of in-flight work are
// discarded and no publication starts after Close returns.
func (m *SessionMachine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.generation++
	sub := m.gatewaySub
	m.gatewaySub = nil
	m.listeners = make(map[uint64]SubjectListener)
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// commitIfCurrent installs next when ticket is still the current generation.
func (m *SessionMachine) commitIfCurrent(
	ctx context.Context,
	ticket uint64,
	trigger string,
	next domainauth.SessionState,
	cause error,
	start time.Time,
) bool {
	m.mu.Lock()
	if m.closed || m.generation != ticket {
		m.mu.Unlock()
		return false
	}
	from := m.state.Kind
	m.commitAndUnlock(ctx, trigger, next, cause)

	result := metrics.ResultSuccess
	if cause != nil {
		result = metrics.ResultError
	}
	m.emit(trigger, from.String(), next.Kind.String(), result, cause, start)
	return true
}

// commitAndUnlock installs next and publishes a subject change, if any.
// It must be called with mu held and returns with mu released.
func (m *SessionMachine) commitAndUnlock(ctx context.Context, trigger string, next domainauth.SessionState, cause error) {
	prev := m.state
	m.state = next

	subject := m.lastSubject
	switch next.Kind {
	case domainauth.StateAuthenticated:
		subject = next.SubjectID()
	case domainauth.StateLoading:
		// Keep the previous subject until the outcome is known.
	default:
		subject = ""
	}

	var (
		listeners []SubjectListener
		seq       uint64
	)
	publish := subject != m.lastSubject
	if publish {
		m.lastSubject = subject
		m.publishSeq++
		seq = m.publishSeq
		listeners = make([]SubjectListener, 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	if prev.Kind != next.Kind {
		m.logger.DebugContext(ctx, "session state changed",
			"trigger", trigger,
			"from", prev.Kind.String(),
			"to", next.Kind.String(),
			"error", cause,
		)
	}
	if publish {
		m.publish(ctx, seq, subject, listeners)
	}
}

// publish delivers subject changes in commit order; an older change that lost the race to
// a newer one is skipped.
func (m *SessionMachine) publish(ctx context.Context, seq uint64, subject string, listeners []SubjectListener) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	if seq <= m.publishedSeq {
		return
	}
	m.publishedSeq = seq

	for _, l := range listeners {
		if m.isClosed() {
			return
		}
		l(ctx, subject)
	}
}

func (m *SessionMachine) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// storeError records msg on the current state without changing its variant.
func (m *SessionMachine) storeError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.state = m.state.WithError(msg)
}

func (m *SessionMachine) landingRoute(snap domainauth.Snapshot) string {
	if m.routes == nil {
		return DefaultDashboardRoute
	}
	if route := m.routes.Map(snap); route != "" {
		return route
	}
	return DefaultDashboardRoute
}

func (m *SessionMachine) navigate(ctx context.Context, route string) {
	if m.navigator != nil {
		m.navigator.Navigate(ctx, route)
	}
}

func (m *SessionMachine) emit(trigger, from, to, result string, err error, start time.Time) {
	metrics.EmitSessionTransition(m.metrics, metrics.SessionMetric{
		Trigger:  trigger,
		From:     from,
		To:       to,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
}

// gatewayMessage keeps the gateway's own wording for outcomes users can act on.
func gatewayMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, domainauth.ErrInvalidCredentials),
		errors.Is(err, domainauth.ErrEmailRegistered),
		errors.Is(err, domainauth.ErrNoSession):
		return rootMessage(err)
	case errors.Is(err, errors.ErrUnsupported):
		return msgUnsupportedGateway
	}
	return apperrors.Message(err, fallback)
}

func rootMessage(err error) string {
	for _, sentinel := range []error{
		domainauth.ErrInvalidCredentials,
		domainauth.ErrEmailRegistered,
		domainauth.ErrNoSession,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

type listenerHandle struct {
	once    sync.Once
	release func()
}

func (h *listenerHandle) Close() { h.once.Do(h.release) }
