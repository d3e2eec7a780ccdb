package brewauth

import (
	"context"
	"encoding/base32"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func authTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret-0123456789abcdef0123")
	// Cheap hashing keeps the suite fast; production parameters are
	// exercised by the password package tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	return cfg
}

type memoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{accounts: map[string]*Account{}}
}

func cloneAccount(a *Account) *Account {
	out := *a
	out.SecondaryEmails = append([]SecondaryEmail(nil), a.SecondaryEmails...)
	out.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	out.BackupCodes = append([]BackupCodeRecord(nil), a.BackupCodes...)
	out.TwoFactorSecret = append([]byte(nil), a.TwoFactorSecret...)
	return &out
}

func (s *memoryAccountStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.PrimaryEmail == email {
			return cloneAccount(account), nil
		}
		for _, secondary := range account.SecondaryEmails {
			if secondary.Address == email && secondary.Verified {
				return cloneAccount(account), nil
			}
		}
	}
	return nil, ErrAccountNotFound
}

func (s *memoryAccountStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *memoryAccountStore) EmailInUse(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.PrimaryEmail == address {
			return true, nil
		}
		for _, secondary := range account.SecondaryEmails {
			if secondary.Address == address {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *memoryAccountStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (s *memoryAccountStore) Update(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

type sentMail struct {
	To    string
	Token string
}

type recordingMailer struct {
	mu     sync.Mutex
	resets []sentMail
	etests []sentMail
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, sentMail{To: to, Token: token})
	return nil
}

func (m *recordingMailer) SendEmailVerification(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etests = append(m.etests, sentMail{To: to, Token: token})
	return nil
}

func (m *recordingMailer) lastReset(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		t.Fatal("expected a password reset mail")
	}
	return m.resets[len(m.resets)-1]
}

func (m *recordingMailer) lastVerification(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.etests) == 0 {
		t.Fatal("expected a verification mail")
	}
	return m.etests[len(m.etests)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type authTestEnv struct {
	engine *Engine
	store  *memoryAccountStore
	mailer *recordingMailer
	clock  *fakeClock
	redis  *redis.Client
	mini   *miniredis.Miniredis
}

func newAuthTestEnv(t *testing.T, cfg Config) *authTestEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	store := newMemoryAccountStore()
	mailer := &recordingMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	clk := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	engine.clock = clk

	return &authTestEnv{
		engine: engine,
		store:  store,
		mailer: mailer,
		clock:  clk,
		redis:  rdb,
		mini:   mr,
	}
}

func (env *authTestEnv) register(t *testing.T, email, passwd string) *PublicProfile {
	t.Helper()

	profile, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Test User",
		Email:    email,
		Password: passwd,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return profile
}

// codeAt derives the TOTP code for the given secret and instant using
// the same HOTP primitive the verifier uses.
func codeAt(t *testing.T, secretBase32 string, cfg TOTPConfig, at time.Time) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		t.Fatalf("decode secret failed: %v", err)
	}
	counter := at.Unix() / int64(cfg.Period)
	code, err := hotpCode(key, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}
