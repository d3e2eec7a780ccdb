package middleware

import (
	"net/http"
	"strings"

	brewauth "github.com/purebrew/brewauth"
)

// AccessCookieName is the cookie the guard falls back to when no
// Authorization header is present. The header always wins when both are
// set.
const AccessCookieName = "token"

// Guard verifies the access token on every request and injects the
// resulting identity into the request context. Requests without a valid
// token are rejected with 401 before the handler runs.
func Guard(engine *brewauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := accessToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			identity, err := engine.VerifyAccess(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := brewauth.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose identity does not map to an
// account with the admin flag. It must run after [Guard].
func RequireAdmin(engine *brewauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := brewauth.IdentityFromContext(r.Context())
			accountID, ok := identity.AccountID()
			if !ok {
				unauthorized(w)
				return
			}

			profile, err := engine.GetProfile(r.Context(), accountID)
			if err != nil || !profile.IsAdmin {
				forbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientInfo copies the caller's IP address and User-Agent into the
// request context for audit logging.
func ClientInfo() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := brewauth.WithClientIP(r.Context(), clientIP(r))
			ctx = brewauth.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}

	cookie, err := r.Cookie(AccessCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}

	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return host
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden"}`))
}
