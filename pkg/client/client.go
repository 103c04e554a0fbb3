// Package client is the HTTP client for the InvokeAI web API. It covers the
// queue, model manager, and board endpoints the workflow layer needs, and
// implements the executor collaborator consumed by pkg/workflow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultTimeout         = 30 * time.Second
)

// Client talks to one InvokeAI instance. Methods never retry; transient
// failure policy belongs to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	queueID    string
	httpClient *http.Client
	maxBody    int64
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithQueueID selects the session queue. Defaults to "default".
func WithQueueID(id string) Option {
	return func(c *Client) { c.queueID = id }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxResponseBody bounds how many response bytes are read.
func WithMaxResponseBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the given base URL. The URL may point at the
// server root or directly at its /api prefix; both normalize to the latter.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid base URL %q", baseURL).WithCause(err)
	}
	if !strings.HasSuffix(u.Path, "/api") {
		u.Path += "/api"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4

	c := &Client{
		baseURL: u.String(),
		queueID: schema.DefaultQueueID,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		maxBody: defaultMaxResponseBody,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized API base, e.g. "http://host:9090/api".
func (c *Client) BaseURL() string { return c.baseURL }

// QueueID returns the session queue this client targets.
func (c *Client) QueueID() string { return c.queueID }

// Host returns the scheme://host part of the base URL, without the /api
// prefix. The event source uses it to derive the socket.io endpoint.
func (c *Client) Host() string {
	return strings.TrimSuffix(c.baseURL, "/api")
}

// Version reports the server's application version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/v1/app/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Health checks that the server answers at all.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// do issues one request and decodes the JSON response into out (when out is
// non-nil). Response bodies are bounded by maxBody. Non-2xx statuses map to
// NOT_FOUND (404) or SUBMISSION errors with the body preserved in details.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeInternal, "marshal request body for %s", path).WithCause(err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "create request for %s", path).WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return schema.NewErrorf(schema.ErrCodeTimeout, "%s %s: %v", method, path, ctx.Err()).WithCause(err)
		}
		return schema.NewErrorf(schema.ErrCodeTransport, "%s %s failed", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "read response of %s %s", method, path).WithCause(err)
	}

	c.logger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(method, path, resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return schema.NewErrorf(schema.ErrCodeTransport, "decode response of %s %s", method, path).WithCause(err)
		}
	}
	return nil
}

// statusError maps a non-2xx response to a ClientError, keeping the raw body
// in the details so server-side failures propagate verbatim.
func (c *Client) statusError(method, path string, status int, body []byte) error {
	message := fmt.Sprintf("%s %s returned %d", method, path, status)

	// FastAPI error payloads carry the reason under "detail".
	var fastAPIErr struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &fastAPIErr); err == nil && len(fastAPIErr.Detail) > 0 {
		var detail string
		if json.Unmarshal(fastAPIErr.Detail, &detail) == nil && detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
		}
	}

	code := schema.ErrCodeSubmission
	if status == http.StatusNotFound {
		code = schema.ErrCodeNotFound
	}

	return schema.NewError(code, message).WithDetails(map[string]any{
		"status": status,
		"body":   string(body),
	})
}
