package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrFetchTimeout is an exported constant or variable used by the authentication engine.
var ErrFetchTimeout = errors.New("csrf token fetch timed out")

// ClientConfig defines a public type used by brewauth APIs.
//
// ClientConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ClientConfig struct {
	BaseURL      string
	TokenPath    string
	FetchTimeout time.Duration
}

// fetch is the promise a concurrent caller awaits instead of polling:
// done closes when the in-flight request settles, after which token and
// err are immutable.
type fetch struct {
	done  chan struct{}
	token string
	err   error
}

// Coordinator caches the server's anti-forgery token client-side and
// attaches it to outgoing mutating requests. A second caller arriving
// while a fetch is in flight awaits that fetch's promise with a bounded
// timeout rather than issuing a duplicate request or busy-polling.
type Coordinator struct {
	config ClientConfig
	client *resty.Client

	mu       sync.Mutex
	token    string
	inflight *fetch
}

// NewCoordinator describes the newcoordinator operation and its observable behavior.
//
// NewCoordinator may return an error when input validation, dependency calls, or security checks fail.
// NewCoordinator does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewCoordinator(cfg ClientConfig) (*Coordinator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url required")
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = "/csrf-token"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.FetchTimeout)

	c := &Coordinator{
		config: cfg,
		client: client,
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		switch req.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return nil
		}
		if req.URL == cfg.TokenPath {
			return nil
		}

		token, err := c.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetHeader(HeaderName, token)
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if IsTokenRejection(resp) {
			c.Invalidate()
		}
		return nil
	})

	return c, nil
}

// Client returns the underlying resty client with token attachment and
// rejection handling wired in.
func (c *Coordinator) Client() *resty.Client {
	return c.client
}

// Token returns the cached anti-forgery token, fetching one first when
// the cache is empty. Exactly one fetch runs at a time; concurrent
// callers share its outcome.
//
// Token may return an error when input validation, dependency calls, or security checks fail.
// Token does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Coordinator) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}

	current := c.inflight
	if current == nil {
		current = &fetch{done: make(chan struct{})}
		c.inflight = current
		go c.run(current)
	}
	c.mu.Unlock()

	timer := time.NewTimer(c.config.FetchTimeout)
	defer timer.Stop()

	select {
	case <-current.done:
		return current.token, current.err
	case <-timer.C:
		return "", ErrFetchTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate discards the cached token. The next mutating request
// fetches a fresh one before being sent; the failed request itself is
// not retried.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Coordinator) run(f *fetch) {
	token, err := c.fetchToken()

	c.mu.Lock()
	if err == nil {
		c.token = token
	}
	c.inflight = nil
	c.mu.Unlock()

	f.token = token
	f.err = err
	close(f.done)
}

func (c *Coordinator) fetchToken() (string, error) {
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}

	resp, err := c.client.R().
		SetResult(&body).
		Get(c.config.TokenPath)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch csrf token: status %d", resp.StatusCode())
	}
	if body.CSRFToken == "" {
		return "", errors.New("fetch csrf token: empty token in response")
	}

	return body.CSRFToken, nil
}

// IsTokenRejection reports whether a response is the server's
// distinguishable CSRF rejection.
func IsTokenRejection(resp *resty.Response) bool {
	if resp == nil || resp.StatusCode() != http.StatusForbidden {
		return false
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return false
	}
	return body.Error == ErrorCode
}
