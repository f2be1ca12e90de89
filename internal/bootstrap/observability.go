package bootstrap

import (
	"log/slog"

	"github.com/siprak/portal/config"
	"github.com/siprak/portal/internal/observability/statsd"
)

// BuildMetrics returns a StatsD client when metrics are enabled, or nil.
// A dial failure is logged and metrics stay off.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, authMode config.AuthMode, logger *slog.Logger) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled:    true,
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		Logger:     logger,
		GlobalTags: map[string]string{"auth_mode": string(authMode)},
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}
