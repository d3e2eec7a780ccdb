package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	brewauth "github.com/purebrew/brewauth"
	"github.com/purebrew/brewauth/csrf"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[string]*brewauth.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]*brewauth.Account{}}
}

func (s *memStore) clone(a *brewauth.Account) *brewauth.Account {
	out := *a
	out.SecondaryEmails = append([]brewauth.SecondaryEmail(nil), a.SecondaryEmails...)
	out.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	out.BackupCodes = append([]brewauth.BackupCodeRecord(nil), a.BackupCodes...)
	out.TwoFactorSecret = append([]byte(nil), a.TwoFactorSecret...)
	return &out
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*brewauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.PrimaryEmail == email {
			return s.clone(account), nil
		}
		for _, secondary := range account.SecondaryEmails {
			if secondary.Address == email && secondary.Verified {
				return s.clone(account), nil
			}
		}
	}
	return nil, brewauth.ErrAccountNotFound
}

func (s *memStore) GetByID(_ context.Context, id string) (*brewauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, brewauth.ErrAccountNotFound
	}
	return s.clone(account), nil
}

func (s *memStore) EmailInUse(_ context.Context, address string) (bool, error) {
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

func (s *memStore) Create(_ context.Context, account *brewauth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = s.clone(account)
	return nil
}

func (s *memStore) Update(_ context.Context, account *brewauth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return brewauth.ErrAccountNotFound
	}
	s.accounts[account.ID] = s.clone(account)
	return nil
}

type captureMailer struct {
	mu     sync.Mutex
	resets []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, token)
	return nil
}

func (m *captureMailer) SendEmailVerification(context.Context, string, string) error { return nil }

type apiEnv struct {
	router chi.Router
	engine *brewauth.Engine
	store  *memStore
	mailer *captureMailer
	redis  *redis.Client
}

func newAPIEnv(t *testing.T, withCSRF bool) *apiEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := brewauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret-0123456789abcdef0123")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1

	store := newMemStore()
	mailer := &captureMailer{}

	engine, err := brewauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(store).
		WithMailer(mailer).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	options := Options{
		Engine: engine,
		Logger: zerolog.Nop(),
	}
	if withCSRF {
		server, err := csrf.NewServer(csrf.ServerConfig{}, rdb)
		require.NoError(t, err)
		options.CSRF = server
	}

	api, err := NewServer(options)
	require.NoError(t, err)

	return &apiEnv{
		router: api.Router(),
		engine: engine,
		store:  store,
		mailer: mailer,
		redis:  rdb,
	}
}

func (env *apiEnv) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range mutate {
		fn(req)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func registerAlice(t *testing.T, env *apiEnv) string {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"name":     "Alice",
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	profile := decodeBody[map[string]any](t, rec)
	require.NotContains(t, rec.Body.String(), "password")
	return profile["id"].(string)
}

// totpCode derives the current RFC 6238 code for a base32 secret.
func totpCode(t *testing.T, secretBase32 string) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretBase32))
	require.NoError(t, err)

	counter := uint64(time.Now().Unix() / 30)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", value%1000000)
}

func TestRegisterLoginMeFlow(t *testing.T) {
	env := newAPIEnv(t, false)
	accountID := registerAlice(t, env)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	session := decodeBody[map[string]any](t, rec)
	require.NotEmpty(t, session["token"])
	user := session["user"].(map[string]any)
	require.Equal(t, accountID, user["id"])

	access := cookieByName(rec, "token")
	refresh := cookieByName(rec, "refreshToken")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.True(t, access.HttpOnly)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)

	me := env.do(t, http.MethodGet, "/auth/me", nil, func(r *http.Request) {
		r.AddCookie(access)
	})
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	profile := decodeBody[map[string]any](t, me)
	require.Equal(t, "alice@test.com", profile["email"])
}

func TestLoginFailuresAreGenericUntilLockout(t *testing.T) {
	env := newAPIEnv(t, false)
	registerAlice(t, env)

	for i := 0; i < 4; i++ {
		rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    "alice@test.com",
			"password": "Wrong999!",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		require.Equal(t, "invalid credentials", body["error"])
	}

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Wrong999!",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "ACCOUNT_LOCKED", body["code"])
	require.Contains(t, body["error"], "minute")
}

func TestUnknownEmailIndistinguishableFromWrongPassword(t *testing.T) {
	env := newAPIEnv(t, false)
	registerAlice(t, env)

	wrongPassword := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Wrong999!",
	})
	unknownEmail := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@test.com",
		"password": "Wrong999!",
	})
	require.Equal(t, wrongPassword.Code, unknownEmail.Code)
	require.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestRefreshRotationAndReplay(t *testing.T) {
	env := newAPIEnv(t, false)
	registerAlice(t, env)

	login := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusOK, login.Code)
	oldRefresh := cookieByName(login, "refreshToken")
	require.NotNil(t, oldRefresh)

	first := env.do(t, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(oldRefresh)
	})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	rotated := cookieByName(first, "refreshToken")
	require.NotNil(t, rotated)
	require.NotEqual(t, oldRefresh.Value, rotated.Value)

	replay := env.do(t, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(oldRefresh)
	})
	require.Equal(t, http.StatusUnauthorized, replay.Code)

	missing := env.do(t, http.MethodPost, "/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, missing.Code)
}

func TestLogoutClearsCookies(t *testing.T) {
	env := newAPIEnv(t, false)
	registerAlice(t, env)

	login := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	refresh := cookieByName(login, "refreshToken")

	logout := env.do(t, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(refresh)
	})
	require.Equal(t, http.StatusOK, logout.Code)

	cleared := cookieByName(logout, "refreshToken")
	require.NotNil(t, cleared)
	require.Less(t, cleared.MaxAge, 0)

	replay := env.do(t, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(refresh)
	})
	require.Equal(t, http.StatusUnauthorized, replay.Code)
}

func TestTwoFactorLoginRoundTrip(t *testing.T) {
	env := newAPIEnv(t, false)
	registerAlice(t, env)

	login := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	access := cookieByName(login, "token")

	generate := env.do(t, http.MethodPost, "/users/2fa/generate", nil, func(r *http.Request) {
		r.AddCookie(access)
	})
	require.Equal(t, http.StatusOK, generate.Code, generate.Body.String())
	setup := decodeBody[map[string]string](t, generate)
	require.NotEmpty(t, setup["secret"])
	require.True(t, strings.HasPrefix(setup["uri"], "otpauth://totp/"))

	confirm := env.do(t, http.MethodPost, "/users/2fa/confirm", map[string]string{
		"code": totpCode(t, setup["secret"]),
	}, func(r *http.Request) {
		r.AddCookie(access)
	})
	require.Equal(t, http.StatusOK, confirm.Code, confirm.Body.String())

	// Password alone now yields the partial-success handoff.
	challenge := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusPartialContent, challenge.Code)
	handoff := decodeBody[map[string]any](t, challenge)
	require.Equal(t, true, handoff["twoFactorRequired"])
	userID := handoff["userId"].(string)
	require.NotEmpty(t, userID)
	require.Nil(t, cookieByName(challenge, "token"))

	verify := env.do(t, http.MethodPost, "/users/2fa/verify", map[string]string{
		"userId": userID,
		"code":   totpCode(t, setup["secret"]),
	})
	require.Equal(t, http.StatusOK, verify.Code, verify.Body.String())
	require.NotNil(t, cookieByName(verify, "token"))
	require.NotNil(t, cookieByName(verify, "refreshToken"))
}

func TestPasswordResetEndpoints(t *testing.T) {
	env := newAPIEnv(t, false)
	registerAlice(t, env)

	forgotKnown := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": "alice@test.com",
	})
	forgotUnknown := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": "nobody@test.com",
	})
	require.Equal(t, http.StatusOK, forgotKnown.Code)
	require.Equal(t, http.StatusOK, forgotUnknown.Code)
	require.JSONEq(t, forgotKnown.Body.String(), forgotUnknown.Body.String())

	require.Len(t, env.mailer.resets, 1)
	token := env.mailer.resets[0]

	reset := env.do(t, http.MethodPost, "/auth/reset-password/"+token, map[string]string{
		"password": "NewPass99!",
	})
	require.Equal(t, http.StatusOK, reset.Code, reset.Body.String())

	relogin := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "NewPass99!",
	})
	require.Equal(t, http.StatusOK, relogin.Code)
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	env := newAPIEnv(t, false)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/users/2fa/generate"},
		{http.MethodPut, "/users/password"},
		{http.MethodPost, "/users/emails"},
	} {
		rec := env.do(t, route.method, route.path, map[string]string{})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestAdminBlockEndpoints(t *testing.T) {
	env := newAPIEnv(t, false)
	aliceID := registerAlice(t, env)

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"name":     "Root",
		"email":    "admin@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	admin := decodeBody[map[string]any](t, rec)
	adminID := admin["id"].(string)

	env.store.mu.Lock()
	env.store.accounts[adminID].IsAdmin = true
	env.store.mu.Unlock()

	adminLogin := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "admin@test.com",
		"password": "Abc12345!",
	})
	adminCookie := cookieByName(adminLogin, "token")

	aliceLogin := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	aliceCookie := cookieByName(aliceLogin, "token")

	// Non-admins cannot block.
	denied := env.do(t, http.MethodPut, "/users/"+adminID+"/block", nil, func(r *http.Request) {
		r.AddCookie(aliceCookie)
	})
	require.Equal(t, http.StatusForbidden, denied.Code)

	blocked := env.do(t, http.MethodPut, "/users/"+aliceID+"/block", nil, func(r *http.Request) {
		r.AddCookie(adminCookie)
	})
	require.Equal(t, http.StatusOK, blocked.Code, blocked.Body.String())

	loginBlocked := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusForbidden, loginBlocked.Code)
	require.Contains(t, loginBlocked.Body.String(), "contact support")

	unblocked := env.do(t, http.MethodPut, "/users/"+aliceID+"/unblock", nil, func(r *http.Request) {
		r.AddCookie(adminCookie)
	})
	require.Equal(t, http.StatusOK, unblocked.Code)
}

func TestCSRFProtectionWiring(t *testing.T) {
	env := newAPIEnv(t, true)

	// Mutating requests without a token are rejected with the
	// distinguishable discriminant.
	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"name":     "Alice",
		"email":    "alice@test.com",
		"password": "Abc12345!",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "CSRF_TOKEN_INVALID", body["error"])

	// The bootstrap endpoint is exempt from its own protection.
	boot := env.do(t, http.MethodGet, "/csrf-token", nil)
	require.Equal(t, http.StatusOK, boot.Code, boot.Body.String())
	issued := decodeBody[map[string]string](t, boot)
	require.NotEmpty(t, issued["csrfToken"])
	csrfCookie := cookieByName(boot, "_csrf")
	require.NotNil(t, csrfCookie)

	accepted := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"name":     "Alice",
		"email":    "alice@test.com",
		"password": "Abc12345!",
	}, func(r *http.Request) {
		r.AddCookie(csrfCookie)
		r.Header.Set("X-CSRF-Token", issued["csrfToken"])
	})
	require.Equal(t, http.StatusCreated, accepted.Code, accepted.Body.String())
}
