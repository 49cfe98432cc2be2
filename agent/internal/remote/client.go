package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	verifyPath  = "/api/printer/verify"
	monitorPath = "/api/printer/monitor"

	// DefaultTimeout bounds a single request when none is configured.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// Client talks to one Volta server with one credential. It is immutable;
// build a new Client when either changes.
type Client struct {
	server string
	token  string
	http   *http.Client
}

// NewClient returns a Client for server, authenticating with token.
// userAgent identifies the agent and its version.
func NewClient(server, token, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		server: strings.TrimRight(server, "/"),
		token:  token,
		http: &http.Client{
			Transport: &authRoundTripper{
				base:      http.DefaultTransport,
				token:     token,
				userAgent: userAgent,
			},
			Timeout: timeout,
		},
	}
}

// Server returns the base URL the client posts to.
func (c *Client) Server() string { return c.server }

// Token returns the bearer credential.
func (c *Client) Token() string { return c.token }

// authRoundTripper injects the bearer credential and agent headers into
// every outgoing request.
type authRoundTripper struct {
	base      http.RoundTripper
	token     string
	userAgent string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

type verifyResponse struct {
	APIToken *string `json:"api_token"`
}

// Verify asks the service whether the credential is valid. It returns true
// only for a 200 whose body echoes the configured credential. A 401, or a
// 200 echoing something else, returns false with a nil error.
func (c *Client) Verify(ctx context.Context) (bool, error) {
	const op = "verify"
	if c.token == "" {
		return false, &ConfigurationError{Reason: "no API token provided"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server+verifyPath, nil)
	if err != nil {
		return false, &ConfigurationError{Reason: "invalid api_server", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return false, nil
	default:
		return false, &ProtocolError{Op: op, StatusCode: resp.StatusCode}
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return false, &ProtocolError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return body.APIToken != nil && *body.APIToken == c.token, nil
}

type monitorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Monitor posts an encoded snapshot. A nil error means the service
// acknowledged it with {"status": "ok"}. Permanent rejections come back as
// *ValidationError or *RateLimitError; anything else is worth retrying.
func (c *Client) Monitor(ctx context.Context, payload []byte) error {
	const op = "monitor"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+monitorPath, bytes.NewReader(payload))
	if err != nil {
		return &ConfigurationError{Reason: "invalid api_server", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var body monitorResponse
		if err := json.Unmarshal(raw, &body); err != nil {
			return &ProtocolError{Op: op, StatusCode: resp.StatusCode, Err: err}
		}
		if body.Status != "ok" {
			return &ProtocolError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("status %q", body.Status)}
		}
		return nil

	case http.StatusUnprocessableEntity:
		return &ValidationError{Body: strings.TrimSpace(string(raw))}

	case http.StatusTooManyRequests:
		var body monitorResponse
		msg := strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
			msg = body.Message
		}
		return &RateLimitError{Message: msg}

	default:
		return &ProtocolError{Op: op, StatusCode: resp.StatusCode}
	}
}
