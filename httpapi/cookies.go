package httpapi

import (
	"net/http"

	"github.com/purebrew/brewauth/middleware"
)

func (s *Server) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.options.AccessCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.options.SecureCookies,
		SameSite: s.options.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(s.options.RefreshCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.options.SecureCookies,
		SameSite: s.options.SameSite,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.options.SecureCookies,
			SameSite: s.options.SameSite,
		})
	}
}
