package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	brewauth "github.com/purebrew/brewauth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

type sessionResponse struct {
	Token string                 `json:"token"`
	User  brewauth.PublicProfile `json:"user"`
}

type twoFactorChallengeResponse struct {
	TwoFactorRequired bool   `json:"twoFactorRequired"`
	UserID            string `json:"userId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := s.engine.Register(r.Context(), brewauth.RegisterInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		BotCheckToken: req.Token,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Login(r.Context(), req.Email, req.Password, req.TwoFactorCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if result.TwoFactorRequired {
		writeJSON(w, http.StatusPartialContent, twoFactorChallengeResponse{
			TwoFactorRequired: true,
			UserID:            result.AccountID,
		})
		return
	}

	s.writeSession(w, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired token"})
		return
	}

	result, err := s.engine.Refresh(r.Context(), cookie.Value)
	if err != nil {
		s.clearAuthCookies(w)
		s.writeError(w, r, err)
		return
	}

	s.writeSession(w, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
		if err := s.engine.Logout(r.Context(), cookie.Value); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Same acknowledgement whether or not the account exists.
	writeJSON(w, http.StatusOK, messageResponse{Message: "if the account exists, a reset link has been sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := brewauth.IdentityFromContext(r.Context())
	accountID, ok := identity.AccountID()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}

	profile, err := s.engine.GetProfile(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) writeSession(w http.ResponseWriter, result *brewauth.LoginResult) {
	s.setAuthCookies(w, result.AccessToken, result.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		Token: result.AccessToken,
		User:  result.Profile,
	})
}
