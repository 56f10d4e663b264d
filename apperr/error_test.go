package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{Authn, http.StatusUnauthorized},
		{Authz, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Provider, http.StatusBadGateway},
		{Transient, http.StatusServiceUnavailable},
		{Fatal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.kind); got != tc.want {
			t.Errorf("Status(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(Transient, "db timeout")) {
		t.Error("Transient should be retryable")
	}
	if !Retryable(New(Provider, "upstream 503")) {
		t.Error("Provider should be retryable")
	}
	if Retryable(New(Validation, "bad input")) {
		t.Error("Validation should not be retryable")
	}
	if Retryable(New(Conflict, "already accepted")) {
		t.Error("Conflict should not be retryable")
	}
	if !Retryable(fmt.Errorf("some opaque driver error")) {
		t.Error("an untyped error should default to retryable")
	}
}

func TestAsAndIsUnwrapThroughFmtErrorf(t *testing.T) {
	base := New(NotFound, "conversation not found")
	wrapped := fmt.Errorf("webhook: inbound message x: %w", base)

	got, ok := As(wrapped)
	if !ok {
		t.Fatalf("As() should find the *Error wrapped by fmt.Errorf")
	}
	if got.Kind != NotFound {
		t.Errorf("got kind %s, want %s", got.Kind, NotFound)
	}
	if !Is(wrapped, NotFound) {
		t.Error("Is(wrapped, NotFound) should be true")
	}
	if Is(wrapped, Conflict) {
		t.Error("Is(wrapped, Conflict) should be false")
	}
}

func TestAsFalseForPlainError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Error("As() should return false for a plain error")
	}
}
