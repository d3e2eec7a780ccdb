package brewauth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/purebrew/brewauth/internal"
)

func TestForgotPasswordUnknownEmailSilent(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())

	if err := env.engine.ForgotPassword(context.Background(), "nobody@test.com"); err != nil {
		t.Fatalf("expected silent acknowledgement, got %v", err)
	}
	if len(env.mailer.resets) != 0 {
		t.Fatal("expected no mail for unknown account")
	}
}

func TestResetPasswordRoundTrip(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	mail := env.mailer.lastReset(t)
	if mail.To != "alice@test.com" || mail.Token == "" {
		t.Fatalf("unexpected mail %+v", mail)
	}

	if err := env.engine.ResetPassword(ctx, mail.Token, "NewPass99!"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@test.com", "NewPass99!", ""); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	token := env.mailer.lastReset(t).Token

	if err := env.engine.ResetPassword(ctx, token, "NewPass99!"); err != nil {
		t.Fatalf("first ResetPassword failed: %v", err)
	}
	err := env.engine.ResetPassword(ctx, token, "OtherPass7!")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on reuse, got %v", err)
	}
}

func TestResetTokenNewRequestReplacesOld(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
		t.Fatalf("first ForgotPassword failed: %v", err)
	}
	first := env.mailer.lastReset(t).Token

	if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
		t.Fatalf("second ForgotPassword failed: %v", err)
	}
	second := env.mailer.lastReset(t).Token

	if err := env.engine.ResetPassword(ctx, first, "NewPass99!"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected superseded token rejected, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, second, "NewPass99!"); err != nil {
		t.Fatalf("expected latest token accepted, got %v", err)
	}
}

func TestResetTokenExpiryEnforced(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	token, hash, err := internal.NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	record := &resetRecord{
		AccountID: profile.ID,
		ExpiresAt: env.clock.Now().Add(-time.Minute).Unix(),
	}
	if err := env.engine.resetStore.Save(ctx, hash, record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	err = env.engine.ResetPassword(ctx, token, "NewPass99!")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestResetPasswordWeakReplacement(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	token := env.mailer.lastReset(t).Token

	if err := env.engine.ResetPassword(ctx, token, "weak"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	// Strength runs before consumption, so the token survives the
	// rejected attempt.
	if err := env.engine.ResetPassword(ctx, token, "NewPass99!"); err != nil {
		t.Fatalf("expected token still valid, got %v", err)
	}
}

func TestResetPasswordReuseWindow(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Gen0Pass!x")

	resetTo := func(passwd string) error {
		if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
			t.Fatalf("ForgotPassword failed: %v", err)
		}
		return env.engine.ResetPassword(ctx, env.mailer.lastReset(t).Token, passwd)
	}

	// Walk through four more generations; history now holds five.
	for i := 1; i <= 4; i++ {
		if err := resetTo(fmt.Sprintf("Gen%dPass!x", i)); err != nil {
			t.Fatalf("reset to generation %d failed: %v", i, err)
		}
	}

	// Every password in the retained window is refused.
	for i := 0; i <= 4; i++ {
		err := resetTo(fmt.Sprintf("Gen%dPass!x", i))
		if !errors.Is(err, ErrPasswordReused) {
			t.Fatalf("generation %d: expected ErrPasswordReused, got %v", i, err)
		}
	}

	// A sixth generation pushes Gen0 out of the window.
	if err := resetTo("Gen5Pass!x"); err != nil {
		t.Fatalf("reset to generation 5 failed: %v", err)
	}
	if err := resetTo("Gen0Pass!x"); err != nil {
		t.Fatalf("expected generation 0 reusable after falling out of window, got %v", err)
	}
}

func TestResetPasswordRevokesSessionAndLockout(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	result, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "alice@test.com", "Wrong999!", "")
	}

	if err := env.engine.ForgotPassword(ctx, "alice@test.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, env.mailer.lastReset(t).Token, "NewPass99!"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	stored := env.store.accounts[profile.ID]
	if stored.RefreshFingerprint != "" {
		t.Fatal("expected refresh fingerprint revoked by reset")
	}
	if stored.FailedLoginAttempts != 0 || !stored.LockoutUntil.IsZero() {
		t.Fatal("expected lockout state cleared by reset")
	}

	if _, err := env.engine.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected pre-reset refresh token dead, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@test.com", "NewPass99!", ""); err != nil {
		t.Fatalf("expected immediate login with new password, got %v", err)
	}
}
