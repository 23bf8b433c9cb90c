package errors

import (
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := map[string]error{
		"ok":                   nil,
		"tokens_locked":        fmt.Errorf("%w: holder has tokens in use", ErrTokensLocked),
		"insufficient_balance": fmt.Errorf("pool: %w", fmt.Errorf("%w: escrow", ErrInsufficientBalance)),
		"invalid_name":         fmt.Errorf("pool engine: %w: \"Bad\"", ErrInvalidName),
		"internal":             fmt.Errorf("disk full"),
	}
	for want, err := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
}
