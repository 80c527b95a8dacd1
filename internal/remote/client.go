package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/sarathi/internal/domain"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 2
	retryWaitTime  = 500 * time.Millisecond

	deviceHeader = "X-Device-ID"
)

// API paths of the auth/progress service
const (
	pathSendOTP   = "/api/auth/send-otp"
	pathVerifyOTP = "/api/auth/verify-otp"
	pathMe        = "/api/auth/me"
	pathSync      = "/api/auth/sync"
	pathLogout    = "/api/auth/logout"
)

type apiResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

type meResponse struct {
	LoggedIn bool                 `json:"logged_in"`
	User     domain.ProgressState `json:"user"`
}

type syncResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	domain.ProgressState
}

// Client talks to the remote auth/progress service. It implements
// domain.RemoteProgress for the authenticated user.
//
// Only authenticated calls are retried. Sending or verifying a one-time code
// is not idempotent and goes out exactly once.
type Client struct {
	client *resty.Client // authenticated calls, with retries
	once   *resty.Client // OTP calls, no retries
	logger *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for baseURL. token may be empty until login.
func NewClient(baseURL, token, deviceID string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := newResty(baseURL, deviceID, timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		})

	return &Client{
		client: client,
		once:   newResty(baseURL, deviceID, timeout),
		logger: logger,
		token:  token,
	}
}

func newResty(baseURL, deviceID string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if deviceID != "" {
		client.SetHeader(deviceHeader, deviceID)
	}
	return client
}

// SetToken replaces the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) request(ctx context.Context, authenticated bool) (*resty.Request, error) {
	if !authenticated {
		return c.once.R().SetContext(ctx), nil
	}
	req := c.client.R().SetContext(ctx)
	token := c.Token()
	if token == "" {
		return nil, domain.ErrAuthFailed
	}
	return req.SetAuthToken(token), nil
}

// check maps transport failures and status codes onto domain errors.
// unavailable is the sentinel for an unreachable or failing service.
func (c *Client) check(path string, resp *resty.Response, err, unavailable error) error {
	if err != nil {
		c.logger.Warn("remote request failed", "error", err, "path", path)
		return fmt.Errorf("%w: %s: %v", unavailable, path, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrAuthFailed, path)
	case code >= 500 || code == http.StatusTooManyRequests:
		c.logger.Warn("remote server error", "status", code, "path", path)
		return fmt.Errorf("%w: %s: status %d", unavailable, path, code)
	}
	return nil
}

// SendOTP asks the service to send a one-time code to phone.
func (c *Client) SendOTP(ctx context.Context, phone string) error {
	req, _ := c.request(ctx, false)

	var result apiResult
	resp, err := req.
		SetBody(map[string]string{"phone": phone}).
		SetResult(&result).
		SetError(&result).
		Post(pathSendOTP)
	if err := c.check(pathSendOTP, resp, err, domain.ErrNetworkUnavailable); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("failed to send OTP: %s", result.Error)
	}
	return nil
}

// VerifyOTP exchanges phone and otp for a session token and starts using it.
func (c *Client) VerifyOTP(ctx context.Context, phone, otp string) (string, error) {
	req, _ := c.request(ctx, false)

	var result apiResult
	resp, err := req.
		SetBody(map[string]string{"phone": phone, "otp": otp}).
		SetResult(&result).
		SetError(&result).
		Post(pathVerifyOTP)
	if err := c.check(pathVerifyOTP, resp, err, domain.ErrNetworkUnavailable); err != nil {
		return "", err
	}
	if !result.Success || result.Token == "" {
		if result.Error != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrAuthFailed, result.Error)
		}
		return "", domain.ErrAuthFailed
	}

	c.SetToken(result.Token)
	return result.Token, nil
}

// Snapshot returns the remote progress of the authenticated user. A token
// the service no longer recognizes yields ErrAuthFailed.
func (c *Client) Snapshot(ctx context.Context) (domain.ProgressState, error) {
	req, err := c.request(ctx, true)
	if err != nil {
		return domain.ProgressState{}, err
	}

	var me meResponse
	resp, err := req.SetResult(&me).Get(pathMe)
	if err := c.check(pathMe, resp, err, domain.ErrSyncUnavailable); err != nil {
		return domain.ProgressState{}, err
	}
	if !me.LoggedIn {
		return domain.ProgressState{}, fmt.Errorf("%w: session expired", domain.ErrAuthFailed)
	}
	return me.User.Normalize(), nil
}

// Push sends state to the service and returns what it now holds.
func (c *Client) Push(ctx context.Context, state domain.ProgressState) (domain.ProgressState, error) {
	req, err := c.request(ctx, true)
	if err != nil {
		return domain.ProgressState{}, err
	}

	var result syncResponse
	resp, err := req.
		SetBody(state).
		SetResult(&result).
		SetError(&result).
		Post(pathSync)
	if err := c.check(pathSync, resp, err, domain.ErrSyncUnavailable); err != nil {
		return domain.ProgressState{}, err
	}
	if !result.Success {
		return domain.ProgressState{}, fmt.Errorf("%w: sync rejected: %s", domain.ErrSyncUnavailable, result.Error)
	}
	return result.ProgressState.Normalize(), nil
}

// Logout ends the session remotely. Failures are logged and ignored; the
// local token is always cleared.
func (c *Client) Logout(ctx context.Context) {
	defer c.SetToken("")

	req, err := c.request(ctx, true)
	if err != nil {
		return
	}
	resp, err := req.Post(pathLogout)
	if err := c.check(pathLogout, resp, err, domain.ErrSyncUnavailable); err != nil {
		c.logger.Debug("remote logout failed", "error", err)
	}
}
