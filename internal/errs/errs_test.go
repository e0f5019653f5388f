package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMatchesSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		status   int
		retry    bool
	}{
		{"validation", Validation("amount must be positive"), ErrValidation, http.StatusBadRequest, false},
		{"not found", NotFound("intent %s", "abc"), ErrNotFound, http.StatusNotFound, false},
		{"conflict", Conflict("stale version"), ErrConflict, http.StatusConflict, true},
		{"unavailable", Unavailable("get block", errors.New("dial tcp: timeout")), ErrUnavailable, http.StatusServiceUnavailable, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", wrapped, tc.sentinel)
			}
			if got := HTTPStatus(wrapped); got != tc.status {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.status)
			}
			if got := IsRetriable(wrapped); got != tc.retry {
				t.Fatalf("IsRetriable = %v, want %v", got, tc.retry)
			}
		})
	}
}

func TestAppErrorDoesNotMatchOtherSentinels(t *testing.T) {
	err := Validation("bad input")
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("validation error matched unrelated sentinel")
	}
}

func TestUnavailableUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("get height", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	if HTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatalf("plain error should map to 500")
	}
}
