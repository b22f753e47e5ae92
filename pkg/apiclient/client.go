// Package apiclient provides the REST client for the forms platform API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/auth"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Client is the forms platform API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	session    *auth.Session
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithToken returns a new client with the given static token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// WithSession returns a new client that reads the bearer token from the
// session on every request, so logins and logouts apply immediately.
func (c *Client) WithSession(s *auth.Session) *Client {
	clone := *c
	clone.session = s
	return &clone
}

// WithHTTPClient returns a new client using hc for transport.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	clone := *c
	clone.httpClient = hc
	return &clone
}

// SetToken sets the static authentication token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) bearer() string {
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			return token
		}
	}
	return c.token
}

// do performs an HTTP request and decodes the response. Transport failures
// and error statuses are returned as *apperror.Error.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		appErr := apperror.Normalize(err)
		logger.DebugCtx(ctx, "API request failed",
			"method", method, "path", path,
			logger.KeyErrorKind, string(appErr.Kind), logger.Err(err))
		return appErr
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.Normalize(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		logger.DebugCtx(ctx, "API request rejected",
			"method", method, "path", path,
			"status", resp.StatusCode, logger.Err(apiErr))
		return apiErr.toApplicationError()
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return apperror.Unknown(fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// delete performs a DELETE request.
func (c *Client) delete(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodDelete, path, nil, result)
}
