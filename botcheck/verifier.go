package botcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRejected is an exported constant or variable used by the authentication engine.
var ErrRejected = errors.New("bot check assertion rejected")

// Config defines a public type used by brewauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	VerifyURL string
	Secret    string
	Timeout   time.Duration
}

// Verifier forwards registration-time bot-check assertions to the
// external verification service and reports pass/fail.
type Verifier struct {
	config Config
	client *resty.Client
}

// NewVerifier describes the newverifier operation and its observable behavior.
//
// NewVerifier may return an error when input validation, dependency calls, or security checks fail.
// NewVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.VerifyURL == "" {
		return nil, errors.New("verify url required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("verification secret required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(1)

	return &Verifier{config: cfg, client: client}, nil
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (v *Verifier) Verify(ctx context.Context, assertion string) error {
	if assertion == "" {
		return ErrRejected
	}

	var body verifyResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"secret":   v.config.Secret,
			"response": assertion,
		}).
		SetResult(&body).
		Post(v.config.VerifyURL)
	if err != nil {
		return fmt.Errorf("bot check request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bot check request: status %d", resp.StatusCode())
	}

	if !body.Success {
		if len(body.ErrorCodes) > 0 {
			return fmt.Errorf("%w: %v", ErrRejected, body.ErrorCodes)
		}
		return ErrRejected
	}

	return nil
}
