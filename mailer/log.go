package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes mail to the logger instead of sending it. Development
// use only: the log line includes the raw token, which in production
// must travel out-of-band.
type Log struct {
	logger zerolog.Logger
}

// NewLog describes the newlog operation and its observable behavior.
//
// NewLog does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (m *Log) SendPasswordReset(ctx context.Context, to, token string) error {
	m.logger.Info().Str("to", to).Str("token", token).Msg("password reset mail (not sent)")
	return nil
}

func (m *Log) SendEmailVerification(ctx context.Context, to, token string) error {
	m.logger.Info().Str("to", to).Str("token", token).Msg("email verification mail (not sent)")
	return nil
}
