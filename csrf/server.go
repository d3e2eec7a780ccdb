package csrf

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/purebrew/brewauth/internal"
)

const (
	// DefaultCookieName is an exported constant or variable used by the authentication engine.
	DefaultCookieName = "_csrf"
	// HeaderName is an exported constant or variable used by the authentication engine.
	HeaderName = "X-CSRF-Token"
	// ErrorCode is the machine-readable discriminant carried by every
	// CSRF rejection so clients can recover specifically.
	ErrorCode = "CSRF_TOKEN_INVALID"
)

// ServerConfig defines a public type used by brewauth APIs.
//
// ServerConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ServerConfig struct {
	CookieName string
	TokenTTL   time.Duration
	KeyPrefix  string
	Secure     bool
	SameSite   http.SameSite
}

// Server issues per-session anti-forgery tokens bound to a dedicated
// cookie and validates them on mutating requests. Tokens live in Redis
// keyed by the cookie's opaque session id.
type Server struct {
	config ServerConfig
	redis  *redis.Client
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(cfg ServerConfig, redisClient *redis.Client) (*Server, error) {
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ba:csrf"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &Server{config: cfg, redis: redisClient}, nil
}

func (s *Server) key(sessionID string) string {
	return s.config.KeyPrefix + ":" + sessionID
}

// TokenHandler is the bootstrap endpoint. It binds a fresh token to the
// caller's CSRF cookie (creating one when absent) and returns the token
// in the body. The endpoint is exempt from its own protection.
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(s.config.CookieName); err == nil && cookie.Value != "" {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		id, err := internal.NewOpaqueID()
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		sessionID = id
	}

	token, _, err := internal.NewToken()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.redis.Set(r.Context(), s.key(sessionID), token, s.config.TokenTTL).Err(); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.config.TokenTTL / time.Second),
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: s.config.SameSite,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": token})
}

// Middleware enforces token presence on every mutating request. Safe
// methods pass through untouched. Absence, staleness, or mismatch all
// produce the same distinguishable 403 body.
func (s *Server) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(s.config.CookieName)
		if err != nil || cookie.Value == "" {
			s.reject(w)
			return
		}

		presented := r.Header.Get(HeaderName)
		if presented == "" {
			s.reject(w)
			return
		}

		stored, err := s.redis.Get(r.Context(), s.key(cookie.Value)).Result()
		if err != nil {
			s.reject(w)
			return
		}

		if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
			s.reject(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) reject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrorCode})
}
