package auth

// Package auth contains simple hand-written test doubles for the session and notification ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siprak/portal/internal/adapters/sessionhub"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/domain/notification"
	"github.com/siprak/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialGateway = (*MockGateway)(nil)
	_ ports.SessionRefresher  = (*MockGateway)(nil)
	_ ports.SessionStore      = (*MemorySessionStore)(nil)
	_ ports.SessionRevoker    = (*MemorySessionStore)(nil)
	_ ports.SnapshotResolver  = (*MockResolver)(nil)
	_ ports.Navigator         = (*RecordingNavigator)(nil)
	_ ports.Alerter           = (*RecordingAlerter)(nil)
	_ ports.PushChannel       = (*MemoryPushChannel)(nil)
)

// ErrNotFound is returned by the in-memory store when a session is not present.
var ErrNotFound = ports.ErrSessionNotFound

// MockGateway simulates a credential gateway. Successful SignIn/SignOut/Refresh calls emit
// the matching session event after the Func hook returns, like the real gateways do.
type MockGateway struct {
	SignInFunc         func(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error)
	SignUpFunc         func(ctx context.Context, creds domainauth.Credentials) (string, error)
	SignOutFunc        func(ctx context.Context) error
	CurrentSessionFunc func(ctx context.Context) (domainauth.Session, bool, error)
	ResetPasswordFunc  func(ctx context.Context, email, redirectURL string) error

	// DefaultSubject is signed in when SignInFunc is nil.
	DefaultSubject string
	// SilentSignOut drops the session on SignOut without emitting SignedOut.
	SilentSignOut bool

	hub   *sessionhub.Hub
	mu    sync.Mutex
	calls []string
}

// NewMockGateway creates a MockGateway that signs in subjectID by default.
func NewMockGateway(subjectID string) *MockGateway {
	return &MockGateway{DefaultSubject: subjectID, hub: sessionhub.New()}
}

func (m *MockGateway) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *MockGateway) ensureHub() *sessionhub.Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hub == nil {
		m.hub = sessionhub.New()
	}
	return m.hub
}

// Calls returns the names of the gateway methods invoked so far.
func (m *MockGateway) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockGateway) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Session, error) {
	m.record("SignIn")
	var (
		sess domainauth.Session
		err  error
	)
	if m.SignInFunc != nil {
		sess, err = m.SignInFunc(ctx, creds)
	} else {
		sess = domainauth.Session{
			ID:          uuid.NewString(),
			SubjectID:   m.DefaultSubject,
			Email:       creds.Email,
			AccessToken: "mock-token",
			ExpiresAt:   time.Now().Add(time.Hour),
		}
	}
	if err != nil {
		return domainauth.Session{}, err
	}
	m.ensureHub().SignIn(ctx, sess)
	return sess, nil
}

func (m *MockGateway) SignUp(ctx context.Context, creds domainauth.Credentials) (string, error) {
	m.record("SignUp")
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, creds)
	}
	return uuid.NewString(), nil
}

func (m *MockGateway) SignOut(ctx context.Context) error {
	m.record("SignOut")
	if m.SignOutFunc != nil {
		if err := m.SignOutFunc(ctx); err != nil {
			return err
		}
	}
	if m.SilentSignOut {
		m.ensureHub().Drop()
		return nil
	}
	m.ensureHub().SignOut(ctx)
	return nil
}

func (m *MockGateway) CurrentSession(ctx context.Context) (domainauth.Session, bool, error) {
	m.record("CurrentSession")
	if m.CurrentSessionFunc != nil {
		return m.CurrentSessionFunc(ctx)
	}
	sess, ok := m.ensureHub().Current()
	return sess, ok, nil
}

func (m *MockGateway) Refresh(ctx context.Context) error {
	m.record("Refresh")
	hub := m.ensureHub()
	sess, ok := hub.Current()
	if !ok {
		return domainauth.ErrNoSession
	}
	hub.Refresh(ctx, sess)
	return nil
}

func (m *MockGateway) OnSessionChange(h ports.SessionHandler) ports.Subscription {
	return m.ensureHub().Subscribe(h)
}

func (m *MockGateway) ResetPasswordForEmail(ctx context.Context, email, redirectURL string) error {
	m.record("ResetPasswordForEmail")
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email, redirectURL)
	}
	return nil
}

// Emit delivers ev to subscribers without changing the held session.
func (m *MockGateway) Emit(ctx context.Context, ev domainauth.SessionEvent) {
	m.ensureHub().Emit(ctx, ev)
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) DeleteBySubject(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.SubjectID == subjectID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MockResolver returns canned snapshots, or defers to ResolveFunc.
type MockResolver struct {
	ResolveFunc func(ctx context.Context, subjectID string) (domainauth.Snapshot, error)
	Snapshots   map[string]domainauth.Snapshot

	mu    sync.Mutex
	calls int
}

func (m *MockResolver) Resolve(ctx context.Context, subjectID string) (domainauth.Snapshot, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, subjectID)
	}
	if snap, ok := m.Snapshots[subjectID]; ok {
		return snap, nil
	}
	return domainauth.Snapshot{}, errors.New("mock resolver: unknown subject")
}

// Calls returns how many times Resolve ran.
func (m *MockResolver) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RecordingNavigator remembers every route it was asked to show.
type RecordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *RecordingNavigator) Navigate(_ context.Context, route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

// Routes returns the navigation history.
func (n *RecordingNavigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

// Last returns the most recent route, or "".
func (n *RecordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.routes) == 0 {
		return ""
	}
	return n.routes[len(n.routes)-1]
}

// RecordingAlerter remembers every alert raised.
type RecordingAlerter struct {
	mu     sync.Mutex
	alerts []ports.Alert
}

func (a *RecordingAlerter) Alert(_ context.Context, alert ports.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

// Alerts returns the alerts raised so far.
func (a *RecordingAlerter) Alerts() []ports.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ports.Alert(nil), a.alerts...)
}

// ByLevel returns the alerts raised at level.
func (a *RecordingAlerter) ByLevel(level ports.AlertLevel) []ports.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []ports.Alert
	for _, al := range a.alerts {
		if al.Level == level {
			out = append(out, al)
		}
	}
	return out
}

// MemoryPushChannel is an in-process push channel. Push delivers to the open
// subscription for a channel key.
type MemoryPushChannel struct {
	OpenErr error

	mu     sync.Mutex
	subs   map[string]*memorySubscription
	opened []string
}

// NewMemoryPushChannel returns an empty channel.
func NewMemoryPushChannel() *MemoryPushChannel {
	return &MemoryPushChannel{subs: make(map[string]*memorySubscription)}
}

func (c *MemoryPushChannel) Open(_ context.Context, channelKey, filter string) (ports.PushSubscription, error) {
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	if _, err := notification.ParseFilter(filter); err != nil {
		return nil, err
	}
	sub := &memorySubscription{events: make(chan notification.Notification, 16)}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]*memorySubscription)
	}
	c.subs[channelKey] = sub
	c.opened = append(c.opened, channelKey)
	return sub, nil
}

// Push delivers n on channelKey. It reports false when nothing is subscribed.
func (c *MemoryPushChannel) Push(channelKey string, n notification.Notification) bool {
	c.mu.Lock()
	sub := c.subs[channelKey]
	c.mu.Unlock()
	if sub == nil {
		return false
	}
	return sub.send(n)
}

// Opened returns the channel keys opened so far, in order.
func (c *MemoryPushChannel) Opened() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.opened...)
}

// Active reports whether channelKey has an open subscription.
func (c *MemoryPushChannel) Active(channelKey string) bool {
	c.mu.Lock()
	sub := c.subs[channelKey]
	c.mu.Unlock()
	return sub != nil && !sub.isClosed()
}

type memorySubscription struct {
	mu     sync.Mutex
	events chan notification.Notification
	closed bool
}

func (s *memorySubscription) Events() <-chan notification.Notification { return s.events }

func (s *memorySubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *memorySubscription) send(n notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- n
	return true
}

func (s *memorySubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
