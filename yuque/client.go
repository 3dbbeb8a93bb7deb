// Package yuque is a minimal client for the Yuque open API. It covers the
// repo-scoped document and TOC endpoints the tools need and nothing more.
package yuque

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	apiPrefix        = "/api/v2"
	userAgent        = "yuque-mcp"
	maxResponseBytes = 8 << 20
)

// Scope is the resolved configuration bundle for one remote call: which
// space to talk to, with which token, against which knowledge base.
type Scope struct {
	Space      string
	Token      string
	GroupLogin string
	BookSlug   string
}

// Missing lists the scope fields that are still empty. All four must be set
// before a remote call is attempted.
func (s Scope) Missing() []string {
	var missing []string
	if s.Space == "" {
		missing = append(missing, "space")
	}
	if s.Token == "" {
		missing = append(missing, "token")
	}
	if s.GroupLogin == "" {
		missing = append(missing, "group_login")
	}
	if s.BookSlug == "" {
		missing = append(missing, "book_slug")
	}
	return missing
}

// Namespace is the group_login/book_slug pair identifying one knowledge base.
func (s Scope) Namespace() string {
	return s.GroupLogin + "/" + s.BookSlug
}

// RemoteError is a non-2xx answer from the Yuque API. Body carries the raw
// response payload verbatim so callers can surface it unchanged.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("yuque api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("yuque api returned status %d: %s", e.StatusCode, e.Body)
}

// Client issues authenticated requests against the Yuque REST API. It is
// stateless apart from the underlying HTTP client; the per-call Scope carries
// all addressing and auth. No retries, no timeout beyond what the injected
// http.Client brings along.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a Client. baseURL overrides the default
// https://{space}.yuque.com origin and is meant for self-hosted instances
// and tests; leave it empty for yuque.com spaces.
func NewClient(httpClient *http.Client, baseURL string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Get issues a GET against a repo-scoped path and returns the data payload.
func (c *Client) Get(ctx context.Context, scope Scope, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, scope, path, query, nil)
}

// Post issues a POST with a JSON payload against a repo-scoped path.
func (c *Client) Post(ctx context.Context, scope Scope, path string, payload any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, scope, path, nil, payload)
}

// Put issues a PUT with a JSON payload against a repo-scoped path.
func (c *Client) Put(ctx context.Context, scope Scope, path string, payload any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, scope, path, nil, payload)
}

func (c *Client) repoURL(scope Scope, path string) string {
	base := c.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.yuque.com", scope.Space)
	}
	return fmt.Sprintf("%s%s/repos/%s/%s/%s", base, apiPrefix, scope.GroupLogin, scope.BookSlug, path)
}

// do sends one request and unwraps the response envelope. On success the
// body's data field is returned verbatim; it may be an object, an array, or
// absent, and callers must handle all three shapes.
func (c *Client) do(ctx context.Context, method string, scope Scope, path string, query url.Values, payload any) (json.RawMessage, error) {
	requestURL := c.repoURL(scope, path)
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Auth-Token", scope.Token)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to yuque failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("yuque api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("namespace", scope.Namespace()),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &RemoteError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return envelope.Data, nil
}
