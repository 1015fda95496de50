package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	sentinel := New(PermissionDenied, "nope")
	wrapped := fmt.Errorf("claim: %w", sentinel)

	if got := CodeOf(wrapped); got != PermissionDenied {
		t.Errorf("expected PermissionDenied, got %s", got)
	}
	if !errors.Is(wrapped, sentinel) {
		t.Errorf("expected errors.Is to match the sentinel")
	}
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Errorf("expected Internal for untagged error, got %s", got)
	}
}

func TestMessageOf_HidesInternalDetail(t *testing.T) {
	err := Wrap(Internal, "bolt: page 12 corrupted", errors.New("disk"))
	if msg := MessageOf(err); msg != "An internal error occurred." {
		t.Errorf("internal detail leaked: %q", msg)
	}
	if msg := MessageOf(New(ResourceExhausted, "slow down")); msg != "slow down" {
		t.Errorf("expected caller-safe message, got %q", msg)
	}
}

func TestCodeStrings(t *testing.T) {
	cases := map[Code]string{
		Internal:           "INTERNAL",
		Unauthenticated:    "UNAUTHENTICATED",
		PermissionDenied:   "PERMISSION_DENIED",
		FailedPrecondition: "FAILED_PRECONDITION",
		AlreadyExists:      "ALREADY_EXISTS",
		ResourceExhausted:  "RESOURCE_EXHAUSTED",
		InvalidArgument:    "INVALID_ARGUMENT",
	}
	for code, want := range cases {
		if code.String() != want {
			t.Errorf("code %d: expected %s, got %s", code, want, code.String())
		}
	}
}
