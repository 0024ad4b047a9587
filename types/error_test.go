package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrStoreUnavailable, "redis down").
		WithCause(root).
		WithHTTPStatus(503).
		WithRetryable(true).
		WithComponent("persistence")

	if GetErrorCode(err) != ErrStoreUnavailable {
		t.Fatalf("expected code %s, got %s", ErrStoreUnavailable, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	if WrapError(nil, ErrInternalError, "x") != nil {
		t.Fatalf("nil error should stay nil")
	}

	wrapped := WrapError(errors.New("boom"), ErrInternalError, "failed")
	if wrapped.Code != ErrInternalError {
		t.Fatalf("unexpected code %s", wrapped.Code)
	}

	inner := NewNotFoundError("snapshot %q", "s1")
	outer := fmt.Errorf("load: %w", inner)
	if got := WrapError(outer, ErrInternalError, "ignored"); got != inner {
		t.Fatalf("expected existing *Error to be reused")
	}
	if !IsErrorCode(outer, ErrNotFound) {
		t.Fatalf("expected NOT_FOUND in chain")
	}
}

func TestParseMemoryCategory(t *testing.T) {
	t.Parallel()

	for _, c := range AllMemoryCategories {
		got, ok := ParseMemoryCategory(string(c))
		if !ok || got != c {
			t.Fatalf("ParseMemoryCategory(%q) = %q, %v", c, got, ok)
		}
	}
	if _, ok := ParseMemoryCategory("procedural"); ok {
		t.Fatalf("procedural is not a kernel memory category")
	}
}
