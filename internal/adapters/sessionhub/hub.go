// Package sessionhub holds the client-side session and event fan-out shared by the
// credential gateway adapters.
package sessionhub

import (
	"context"
	"sync"
	"sync/atomic"

	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/ports"
)

// Hub stores the current gateway session and delivers session events to subscribers.
// Handlers run synchronously on the emitting goroutine, after the session has changed.
type Hub struct {
	mu       sync.Mutex
	current  *domainauth.Session
	handlers map[uint64]*subscription
	nextID   uint64
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{handlers: make(map[uint64]*subscription)}
}

// Current returns the held session.
func (h *Hub) Current() (domainauth.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return domainauth.Session{}, false
	}
	return *h.current, true
}

// SignIn stores sess and emits SignedIn.
func (h *Hub) SignIn(ctx context.Context, sess domainauth.Session) {
	h.set(&sess)
	h.emit(ctx, domainauth.SignedIn(sess.SubjectID))
}

// Refresh replaces the held session and emits TokenRefreshed.
func (h *Hub) Refresh(ctx context.Context, sess domainauth.Session) {
	h.set(&sess)
	h.emit(ctx, domainauth.TokenRefreshed(sess.SubjectID))
}

// SignOut clears the session and emits SignedOut.
func (h *Hub) SignOut(ctx context.Context) {
	h.set(nil)
	h.emit(ctx, domainauth.SignedOut())
}

// Emit delivers ev without touching the held session.
func (h *Hub) Emit(ctx context.Context, ev domainauth.SessionEvent) {
	h.emit(ctx, ev)
}

// Drop clears the session without emitting, for sessions found revoked or expired.
func (h *Hub) Drop() {
	h.set(nil)
}

// Subscribe registers fn until the returned handle is closed.
func (h *Hub) Subscribe(fn ports.SessionHandler) ports.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &subscription{id: h.nextID, fn: fn, hub: h}
	h.handlers[sub.id] = sub
	return sub
}

func (h *Hub) set(sess *domainauth.Session) {
	h.mu.Lock()
	h.current = sess
	h.mu.Unlock()
}

func (h *Hub) emit(ctx context.Context, ev domainauth.SessionEvent) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.handlers))
	for _, s := range h.handlers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if !s.closed.Load() {
			s.fn(ctx, ev)
		}
	}
}

type subscription struct {
	id     uint64
	fn     ports.SessionHandler
	hub    *Hub
	closed atomic.Bool
}

// Close detaches the handler. Safe to call more than once.
func (s *subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.hub.mu.Lock()
	delete(s.hub.handlers, s.id)
	s.hub.mu.Unlock()
}
