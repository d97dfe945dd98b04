package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"finboard/internal/shared/logging"
)

const (
	defaultTimeout = 60 * time.Second

	healthPath          = "/health"
	linkTokenPath       = "/plaid/link"
	exchangePath        = "/plaid/exchange"
	statusPath          = "/plaid/status"
	accountsPath        = "/plaid/accounts"
	transactionsPath    = "/plaid/transactions"
	advisorHistoryPath  = "/ai-advisor/history"
	advisorAskPath      = "/ai-advisor/ask"
	advisorClearPath    = "/ai-advisor/clear"
	deleteAccountPath   = "/auth/account"
	maxErrorBodyPreview = 512
)

// Error taxonomy shared by every caller of the backend. Match with errors.Is.
var (
	ErrNetworkUnavailable = errors.New("backend unreachable")
	ErrAuthExpired        = errors.New("session expired, please log in again")
	ErrNotFound           = errors.New("not found")
	ErrRequestFailed      = errors.New("request failed")
)

// TokenSource supplies the bearer credential and forgets it on 401.
type TokenSource interface {
	Token() (string, error)
	Clear() error
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("API request failed with status %d", e.Status)
	}
	return fmt.Sprintf("API error (status %d): %s - %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status onto the shared taxonomy.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrAuthExpired
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrRequestFailed
	}
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials TokenSource
	Logger      logrus.FieldLogger
	// Transport overrides the base round tripper; tests use it to inject failures.
	Transport http.RoundTripper
}

// Client handles communication with the finboard backend.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	credentials TokenSource
	logger      logrus.FieldLogger

	mu             sync.RWMutex
	onUnauthorized func()
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// NewClient creates a new backend API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := logging.Component(cfg.Logger, "backend")

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(newInstrumentedTransport(base, logger)),
		},
		baseURL:     cfg.BaseURL,
		credentials: cfg.Credentials,
		logger:      logger,
	}
}

// OnUnauthorized registers the hook run after a 401 has cleared the stored
// credential. The dashboard uses it to send the user back to login.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) handleUnauthorized() {
	if c.credentials != nil {
		if err := c.credentials.Clear(); err != nil {
			c.logger.WithError(err).Warn("Failed to clear credentials after 401")
		}
	}

	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// request describes one call to the backend.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// optionalAuth sends the bearer token when available but does not fail
	// without one. Only the health probe uses it.
	optionalAuth bool
}

// do executes req and decodes a 2xx body into out (when non-nil).
// Returns the HTTP status code alongside the error so callers can
// distinguish conditions the taxonomy folds together.
func (c *Client) do(ctx context.Context, req request, out any) (int, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if err := c.authorize(httpReq, req.optionalAuth); err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read response body: %v", ErrNetworkUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.WithField("path", req.path).Warn("Backend rejected credential, clearing session")
		c.handleUnauthorized()
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: "unauthorized"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Code = errResp.Error
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = preview(respBody)
		}
		return resp.StatusCode, apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to unmarshal response: %v", ErrRequestFailed, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) authorize(r *http.Request, optional bool) error {
	if c.credentials == nil {
		if optional {
			return nil
		}
		return ErrAuthExpired
	}

	token, err := c.credentials.Token()
	if err != nil {
		if optional {
			return nil
		}
		// A missing or locally expired credential is the same as a 401.
		c.handleUnauthorized()
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	r.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func preview(body []byte) string {
	if len(body) > maxErrorBodyPreview {
		return string(body[:maxErrorBodyPreview]) + "..."
	}
	return string(body)
}

// Health probes the readiness endpoint. Any 2xx is ready.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: healthPath, optionalAuth: true}, nil)
	return err
}
