package metrics

import (
	"time"

	obserrors "github.com/siprak/portal/internal/observability/errors"
	"github.com/siprak/portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// SessionMetric captures a session state transition.
type SessionMetric struct {
	Trigger  string // operation or event kind that caused the transition
	From     string
	To       string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitSessionTransition emits standardised session transition metrics.
func EmitSessionTransition(sink statsd.Sink, in SessionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"trigger": in.Trigger,
		"from":    in.From,
		"to":      in.To,
		"result":  in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("session.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("session.duration", in.Duration, CloneTags(tags))
	}
}

// NotificationMetric captures a notification store operation or push delivery.
type NotificationMetric struct {
	Op     string
	Result string
	Err    error
	Count  int64 // items affected; defaults to 1
}

// EmitNotification emits notification operation counters.
func EmitNotification(sink statsd.Sink, in NotificationMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"op":     in.Op,
		"result": in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	n := in.Count
	if n <= 0 {
		n = 1
	}
	sink.Count("notification.op", n, tags)
}

// EmitUnread reports the unread counter as a gauge.
func EmitUnread(sink statsd.Sink, unread int) {
	if sink == nil {
		return
	}
	sink.Gauge("notification.unread", float64(unread), nil)
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
