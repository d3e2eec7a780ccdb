package httpapi

import (
	"net/http"

	brewauth "github.com/purebrew/brewauth"
)

type twoFactorSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type twoFactorLoginRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

func (s *Server) handleTwoFactorGenerate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	setup, err := s.engine.BeginTwoFactorSetup(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, twoFactorSetupResponse{
		Secret: setup.SecretBase32,
		URI:    setup.URI,
	})
}

func (s *Server) handleTwoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ConfirmTwoFactorSetup(r.Context(), accountID, req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "two-factor authentication enabled"})
}

func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	if err := s.engine.DisableTwoFactor(r.Context(), accountID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "two-factor authentication disabled"})
}

// handleTwoFactorVerify completes a password-verified login with a
// time-step code. It is unauthenticated; the engine only accepts it
// while the login challenge opened by the password check is pending.
func (s *Server) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.VerifyTwoFactorLogin(r.Context(), req.UserID, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, result)
}

func (s *Server) handleBackupCodeGenerate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	codes, err := s.engine.GenerateBackupCodes(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Codes []string `json:"codes"`
	}{Codes: codes})
}

func (s *Server) handleBackupCodeCount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	remaining, err := s.engine.BackupCodeCount(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Remaining int `json:"remaining"`
	}{Remaining: remaining})
}

func (s *Server) handleBackupCodeUse(w http.ResponseWriter, r *http.Request) {
	var req twoFactorLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.UseBackupCode(r.Context(), req.UserID, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, result)
}

func requireAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := brewauth.IdentityFromContext(r.Context()).AccountID()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return "", false
	}
	return accountID, true
}
