package brewauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/purebrew/brewauth/internal"
)

func TestAddEmailSendsVerification(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.AddEmail(ctx, profile.ID, "alice@work.test"); err != nil {
		t.Fatalf("AddEmail failed: %v", err)
	}

	mail := env.mailer.lastVerification(t)
	if mail.To != "alice@work.test" || mail.Token == "" {
		t.Fatalf("unexpected mail %+v", mail)
	}

	stored := env.store.accounts[profile.ID]
	if len(stored.SecondaryEmails) != 1 {
		t.Fatalf("expected one secondary email, got %d", len(stored.SecondaryEmails))
	}
	if stored.SecondaryEmails[0].Verified {
		t.Fatal("expected address unverified before confirmation")
	}
}

func TestAddEmailTakenAddressRejected(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Abc12345!")
	bob := env.register(t, "bob@test.com", "Abc12345!")

	err := env.engine.AddEmail(ctx, bob.ID, "alice@test.com")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestConfirmEmailMarksVerified(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.AddEmail(ctx, profile.ID, "alice@work.test"); err != nil {
		t.Fatalf("AddEmail failed: %v", err)
	}
	token := env.mailer.lastVerification(t).Token

	if err := env.engine.ConfirmEmail(ctx, token); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	if !env.store.accounts[profile.ID].SecondaryEmails[0].Verified {
		t.Fatal("expected address verified")
	}

	// Verified secondary addresses are valid login identifiers.
	if _, err := env.engine.Login(ctx, "alice@work.test", "Abc12345!", ""); err != nil {
		t.Fatalf("expected login via verified secondary, got %v", err)
	}
}

func TestConfirmEmailTokenSingleUse(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.AddEmail(ctx, profile.ID, "alice@work.test"); err != nil {
		t.Fatalf("AddEmail failed: %v", err)
	}
	token := env.mailer.lastVerification(t).Token

	if err := env.engine.ConfirmEmail(ctx, token); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	err := env.engine.ConfirmEmail(ctx, token)
	if !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected generic invalid error on reuse, got %v", err)
	}
}

func TestConfirmEmailExpiredToken(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	token, hash, err := internal.NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	record := &verificationRecord{
		AccountID: profile.ID,
		Address:   "alice@work.test",
		ExpiresAt: env.clock.Now().Add(-time.Minute).Unix(),
	}
	if err := env.engine.verifyStore.Save(ctx, hash, record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	err = env.engine.ConfirmEmail(ctx, token)
	if !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid for expired token, got %v", err)
	}
}

func TestConfirmEmailGarbageToken(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())

	err := env.engine.ConfirmEmail(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid, got %v", err)
	}
}

func TestResendVerificationReplacesToken(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.AddEmail(ctx, profile.ID, "alice@work.test"); err != nil {
		t.Fatalf("AddEmail failed: %v", err)
	}
	first := env.mailer.lastVerification(t).Token

	if err := env.engine.ResendVerification(ctx, profile.ID); err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	second := env.mailer.lastVerification(t)
	if second.To != "alice@work.test" {
		t.Fatalf("expected resend to the same address, got %s", second.To)
	}

	if err := env.engine.ConfirmEmail(ctx, first); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected superseded token rejected, got %v", err)
	}
	if err := env.engine.ConfirmEmail(ctx, second.Token); err != nil {
		t.Fatalf("expected latest token accepted, got %v", err)
	}
}

func TestResendVerificationWithoutPending(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	profile := env.register(t, "alice@test.com", "Abc12345!")

	err := env.engine.ResendVerification(context.Background(), profile.ID)
	if !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid, got %v", err)
	}
}

func TestRemoveEmail(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.AddEmail(ctx, profile.ID, "alice@work.test"); err != nil {
		t.Fatalf("AddEmail failed: %v", err)
	}
	if err := env.engine.RemoveEmail(ctx, profile.ID, "alice@work.test"); err != nil {
		t.Fatalf("RemoveEmail failed: %v", err)
	}
	if len(env.store.accounts[profile.ID].SecondaryEmails) != 0 {
		t.Fatal("expected secondary email removed")
	}

	// Removing an address that is not on the account is a no-op.
	if err := env.engine.RemoveEmail(ctx, profile.ID, "gone@work.test"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
}

func TestRemoveEmailPrimaryImmutable(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	profile := env.register(t, "alice@test.com", "Abc12345!")

	err := env.engine.RemoveEmail(context.Background(), profile.ID, "alice@test.com")
	if !errors.Is(err, ErrPrimaryEmailImmutable) {
		t.Fatalf("expected ErrPrimaryEmailImmutable, got %v", err)
	}
}
