package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	brewauth "github.com/purebrew/brewauth"
	"github.com/purebrew/brewauth/password"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps engine errors onto HTTP statuses. Credential-shaped
// failures collapse into a generic 401 so responses never confirm
// whether an account exists; lockout is the deliberate exception and
// carries a machine-readable code plus the remaining time.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var lockout *brewauth.LockoutError
	if errors.As(err, &lockout) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: lockout.Error(), Code: "ACCOUNT_LOCKED"})
		return
	}

	var policyErr *password.PolicyError
	if errors.As(err, &policyErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: policyErr.Error()})
		return
	}

	switch {
	case errors.Is(err, brewauth.ErrInvalidCredentials),
		errors.Is(err, brewauth.ErrAccountNotFound):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})

	case errors.Is(err, brewauth.ErrTokenInvalid),
		errors.Is(err, brewauth.ErrTokenExpired),
		errors.Is(err, brewauth.ErrRefreshReuse):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired token"})

	case errors.Is(err, brewauth.ErrAccountBlocked):
		writeJSON(w, http.StatusForbidden, errorBody{Error: brewauth.ErrAccountBlocked.Error()})

	case errors.Is(err, brewauth.ErrPasswordExpired):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "password expired, reset required"})

	case errors.Is(err, brewauth.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})

	case errors.Is(err, brewauth.ErrWeakPassword),
		errors.Is(err, brewauth.ErrPasswordReused),
		errors.Is(err, brewauth.ErrEmailTaken),
		errors.Is(err, brewauth.ErrInvalidTwoFactorCode),
		errors.Is(err, brewauth.ErrTwoFactorNotPending),
		errors.Is(err, brewauth.ErrTwoFactorNotEnabled),
		errors.Is(err, brewauth.ErrVerificationInvalid),
		errors.Is(err, brewauth.ErrPrimaryEmailImmutable),
		errors.Is(err, brewauth.ErrBotCheckFailed):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})

	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled request error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}
