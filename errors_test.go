package stillsuit

import (
	"errors"
	"fmt"
	"testing"
)

func TestOpError(t *testing.T) {
	err := opError("Account", "get", ErrNotFound)

	if !errors.Is(err, ErrNotFound) {
		t.Error("OpError should unwrap to the sentinel")
	}
	var oe *OpError
	if !errors.As(err, &oe) {
		t.Fatal("expected an *OpError")
	}
	if oe.Entity != "Account" || oe.Op != "get" {
		t.Errorf("unexpected fields: %+v", oe)
	}
	if got := err.Error(); got != "Account.get: entity not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestOpError_NilPassthrough(t *testing.T) {
	if err := opError("Account", "get", nil); err != nil {
		t.Errorf("nil errors must stay nil, got %v", err)
	}
}

func TestOpError_WrappedChain(t *testing.T) {
	inner := fmt.Errorf("%w: %q", ErrUnknownField, "ghost")
	err := opError("Account", "list", inner)
	if !errors.Is(err, ErrUnknownField) {
		t.Error("nested wrapping should preserve the sentinel")
	}
}
