package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	brewauth "github.com/purebrew/brewauth"
	"github.com/purebrew/brewauth/csrf"
	"github.com/purebrew/brewauth/middleware"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// Options configures the HTTP surface.
//
// Options instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Options struct {
	// Engine is required.
	Engine *brewauth.Engine

	// CSRF enables anti-forgery protection when set. The token
	// bootstrap endpoint is mounted and all mutating routes are
	// checked against the cookie-bound token.
	CSRF *csrf.Server

	Logger zerolog.Logger

	// SecureCookies marks the auth cookies Secure. Production
	// deployments must set this.
	SecureCookies bool

	SameSite http.SameSite

	// AccessCookieTTL and RefreshCookieTTL default to 15 minutes and
	// 7 days, matching the token lifetimes.
	AccessCookieTTL  time.Duration
	RefreshCookieTTL time.Duration
}

// Server mounts the authentication endpoints on a chi router.
type Server struct {
	engine  *brewauth.Engine
	csrf    *csrf.Server
	logger  zerolog.Logger
	options Options
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(options Options) (*Server, error) {
	if options.Engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	if options.AccessCookieTTL <= 0 {
		options.AccessCookieTTL = 15 * time.Minute
	}
	if options.RefreshCookieTTL <= 0 {
		options.RefreshCookieTTL = 7 * 24 * time.Hour
	}
	if options.SameSite == 0 {
		options.SameSite = http.SameSiteLaxMode
	}
	return &Server{
		engine:  options.Engine,
		csrf:    options.CSRF,
		logger:  options.Logger,
		options: options,
	}, nil
}

// Router builds the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.ClientInfo())

	if s.csrf != nil {
		r.Use(s.csrf.Middleware)
		// Bootstrap endpoint is exempt from its own protection.
		r.Get("/csrf-token", s.csrf.TokenHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password/{token}", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Get("/me", s.handleMe)
		})
	})

	r.Route("/users", func(r chi.Router) {
		// Login-time second-factor endpoints run before an access
		// token exists; the engine gates them on the pending
		// challenge opened by the password check.
		r.Post("/2fa/verify", s.handleTwoFactorVerify)
		r.Post("/2fa/backup/use", s.handleBackupCodeUse)

		r.Get("/emails/verify/{token}", s.handleVerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))

			r.Post("/2fa/generate", s.handleTwoFactorGenerate)
			r.Post("/2fa/confirm", s.handleTwoFactorConfirm)
			r.Post("/2fa/disable", s.handleTwoFactorDisable)
			r.Post("/2fa/backup/generate", s.handleBackupCodeGenerate)
			r.Get("/2fa/backup", s.handleBackupCodeCount)

			r.Put("/password", s.handleChangePassword)

			r.Post("/emails", s.handleAddEmail)
			r.Post("/emails/resend", s.handleResendVerification)
			r.Delete("/emails", s.handleRemoveEmail)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(s.engine))
				r.Put("/{id}/block", s.handleBlockAccount)
				r.Put("/{id}/unblock", s.handleUnblockAccount)
			})
		})
	})

	return r
}
