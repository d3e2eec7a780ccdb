package brewauth

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLockoutErrorMessageAndMatching(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	err := &LockoutError{Until: now.Add(14*time.Minute + 30*time.Second)}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("expected LockoutError to match ErrAccountLocked")
	}

	var lockout *LockoutError
	wrapped := fmt.Errorf("login: %w", err)
	if !errors.As(wrapped, &lockout) {
		t.Fatal("expected errors.As to unwrap LockoutError")
	}

	msg := err.Error()
	if !strings.Contains(msg, "minute") {
		t.Fatalf("expected remaining-minutes message, got %q", msg)
	}
}

func TestLockoutErrorFloorsAtOneMinute(t *testing.T) {
	err := &LockoutError{Until: time.Now().Add(5 * time.Second)}
	if !strings.Contains(err.Error(), "1 minute") {
		t.Fatalf("expected at least one minute reported, got %q", err.Error())
	}
}
