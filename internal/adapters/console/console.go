// Package console renders navigation, alerts and reset links for the terminal client.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/siprak/portal/internal/ports"
)

var (
	_ ports.Navigator   = (*Navigator)(nil)
	_ ports.Alerter     = (*Alerter)(nil)
	_ ports.ResetSender = (*ResetLogger)(nil)
)

// Navigator prints route changes and remembers the current route.
type Navigator struct {
	mu      sync.Mutex
	out     io.Writer
	current string
}

// NewNavigator writes route changes to out.
func NewNavigator(out io.Writer) *Navigator {
	return &Navigator{out: out}
}

func (n *Navigator) Navigate(_ context.Context, route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if route == n.current {
		return
	}
	n.current = route
	fmt.Fprintf(n.out, "→ %s\n", route)
}

// Current returns the last route navigated to.
func (n *Navigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Alerter prints transient alerts, one per line.
type Alerter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewAlerter writes alerts to out.
func NewAlerter(out io.Writer) *Alerter {
	return &Alerter{out: out}
}

func (a *Alerter) Alert(_ context.Context, al ports.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	line := "[" + strings.ToUpper(string(al.Level)) + "] " + al.Title
	if al.Message != "" {
		line += ": " + al.Message
	}
	fmt.Fprintln(a.out, line)
}

// ResetLogger delivers reset links through the logger, standing in for a mail sender.
type ResetLogger struct {
	logger *slog.Logger
}

// NewResetLogger returns a ResetSender that logs links at info level.
func NewResetLogger(logger *slog.Logger) *ResetLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetLogger{logger: logger.With("component", "reset_sender")}
}

func (r *ResetLogger) SendReset(ctx context.Context, email, link string) error {
	r.logger.InfoContext(ctx, "password reset link issued", "email", email, "link", link)
	return nil
}
