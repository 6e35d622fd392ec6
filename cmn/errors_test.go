package cmn

import (
	"errors"
	"testing"
)

func TestNewErrWrapsCause(t *testing.T) {
	cause := errors.New("disk failure")
	err := NewErr(ErrTierFault, cause, "write target %d", 7)
	if !IsKind(err, ErrTierFault) {
		t.Fatalf("expected ErrTierFault, got %v", err.Kind)
	}
	if errors.Unwrap(err) == nil {
		t.Fatalf("expected Unwrap to reach the wrapped cause")
	}
}

func TestIsKindFalseForDifferentKind(t *testing.T) {
	err := NewErr(ErrNotFound, nil, "missing")
	if IsKind(err, ErrTierFault) {
		t.Fatalf("expected IsKind to reject a mismatched kind")
	}
}

func TestIsKindFalseForPlainError(t *testing.T) {
	if IsKind(errors.New("plain"), ErrNotFound) {
		t.Fatalf("expected IsKind to reject a non-HError")
	}
}
