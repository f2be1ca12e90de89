package errors

import (
	"context"
	"fmt"
	"io"
	"testing"

	apperrors "github.com/siprak/portal/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error", apperrors.Resolution(io.EOF, "failed to load roles"), "resolution"},
		{"wrapped app error", fmt.Errorf("login: %w", apperrors.ProfileNotFound("u-1")), "profile_not_found"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"plain", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
