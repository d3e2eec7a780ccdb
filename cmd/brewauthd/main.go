package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	brewauth "github.com/purebrew/brewauth"
	"github.com/purebrew/brewauth/botcheck"
	"github.com/purebrew/brewauth/csrf"
	"github.com/purebrew/brewauth/httpapi"
	"github.com/purebrew/brewauth/mailer"
	"github.com/purebrew/brewauth/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Error().Err(err).Msg("configuration failed")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Error().Err(err).Msg("sentry init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg daemonConfig, logger zerolog.Logger) error {
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	accounts, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer accounts.Close()

	if err := accounts.EnsureSchema(ctx); err != nil {
		return err
	}

	authConfig, err := buildAuthConfig(cfg)
	if err != nil {
		return err
	}

	builder := brewauth.New().
		WithConfig(authConfig).
		WithRedis(redisClient).
		WithAccounts(accounts).
		WithMailer(newMailer(cfg, logger)).
		WithAuditSink(brewauth.NewJSONWriterSink(os.Stdout))

	if cfg.BotCheck.Secret != "" {
		checker, err := botcheck.NewVerifier(botcheck.Config{
			VerifyURL: cfg.BotCheck.VerifyURL,
			Secret:    cfg.BotCheck.Secret,
		})
		if err != nil {
			return err
		}
		builder = builder.WithBotChecker(checker)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	var csrfServer *csrf.Server
	if cfg.CSRFProtection {
		csrfServer, err = csrf.NewServer(csrf.ServerConfig{
			Secure: authConfig.Security.RequireSecureCookies,
		}, redisClient)
		if err != nil {
			return err
		}
	}

	api, err := httpapi.NewServer(httpapi.Options{
		Engine:           engine,
		CSRF:             csrfServer,
		Logger:           logger,
		SecureCookies:    authConfig.Security.RequireSecureCookies,
		SameSite:         authConfig.Security.SameSitePolicy,
		AccessCookieTTL:  authConfig.JWT.AccessTTL,
		RefreshCookieTTL: authConfig.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("env", cfg.AppEnv).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(cfg daemonConfig) zerolog.Logger {
	if cfg.production() {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func newMailer(cfg daemonConfig, logger zerolog.Logger) brewauth.Mailer {
	if cfg.SMTP.Host == "" {
		return mailer.NewLog(logger)
	}
	m, err := mailer.NewSMTP(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		BaseURL:  cfg.PublicBaseURL,
	})
	if err != nil {
		logger.Error().Err(err).Msg("smtp mailer misconfigured, falling back to log mailer")
		return mailer.NewLog(logger)
	}
	return m
}

func buildAuthConfig(cfg daemonConfig) (brewauth.Config, error) {
	authConfig := brewauth.DefaultConfig()
	authConfig.Audit.Enabled = true
	authConfig.Security.ProductionMode = cfg.production()
	authConfig.Security.RequireSecureCookies = cfg.production()
	authConfig.Security.CSRFProtection = cfg.CSRFProtection

	authConfig.JWT.SigningMethod = cfg.JWT.SigningMethod
	switch cfg.JWT.SigningMethod {
	case "hs256":
		if cfg.JWT.HS256Secret == "" {
			return authConfig, errors.New("JWT_HS256_SECRET is required for hs256 signing")
		}
		authConfig.JWT.PrivateKey = []byte(cfg.JWT.HS256Secret)
	case "ed25519":
		priv, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return authConfig, err
		}
		pub, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return authConfig, err
		}
		authConfig.JWT.PrivateKey = priv
		authConfig.JWT.PublicKey = pub
	default:
		return authConfig, errors.New("JWT_SIGNING_METHOD must be ed25519 or hs256")
	}

	return authConfig, nil
}
