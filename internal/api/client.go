// Package api provides the REST client for the clinic backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/prescripto/clinic-console/pkg/logging"
)

// Role identifies which console role a credential belongs to.
type Role string

const (
	RoleNone   Role = ""
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
)

// Header returns the credential header name the backend expects for this
// role. RoleNone has no header.
func (r Role) Header() string {
	switch r {
	case RoleAdmin:
		return "atoken"
	case RoleDoctor:
		return "dtoken"
	default:
		return ""
	}
}

// Credential is a role-scoped opaque session token.
type Credential struct {
	Role  Role
	Token string
}

// APIError is an application-level rejection: the backend answered but set
// success:false. The message is the server's, verbatim.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsRejection reports whether err is an application-level rejection rather
// than a transport failure.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// envelope is the common shape of every backend response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client issues requests to the clinic backend, attaching the role credential
// header. It never retries and applies no timeout of its own; cancellation
// and deadlines come from the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a backend client. baseURL is the backend origin,
// e.g. "http://localhost:5000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get issues a GET request and decodes the data keys into out.
func (c *Client) Get(ctx context.Context, path string, cred Credential, out any) error {
	return c.do(ctx, http.MethodGet, path, cred, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, cred Credential, body, out any) error {
	return c.do(ctx, http.MethodPost, path, cred, body, out)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, cred Credential, body, out any) error {
	return c.do(ctx, http.MethodPut, path, cred, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, cred Credential, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if header := cred.Role.Header(); header != "" && cred.Token != "" {
		req.Header.Set(header, cred.Token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	c.logger.Debug("backend request", "method", method, "path", path, "role", string(cred.Role))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("api: request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("api: decode response: %w", err)
	}

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		c.logger.Warn("backend rejected request", "path", path, "status", resp.StatusCode, "message", msg)
		return &APIError{Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}

	return nil
}
