package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"gemini-proxy/internal/domain"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-2.5-flash-preview-05-20"

	maxErrorBody   = 64 << 10
	maxSuccessBody = 4 << 20
)

// ErrMissingAPIKey is returned when a request is attempted without a credential.
var ErrMissingAPIKey = errors.New("gemini: api key is not configured")

// HTTPStatusError captures non-2xx upstream responses. Body holds the raw
// upstream text so callers can relay it.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) ResponseBody() string {
	return e.Body
}

// Client calls the generateContent endpoint of a single model. The API key is
// sent as the key query parameter and never leaves the server otherwise.
type Client struct {
	baseURL    string
	apiVersion string
	model      string
	apiKey     string
	httpClient *http.Client

	maxResponseBytes int64
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithAPIVersion(version string) Option {
	return func(c *Client) {
		c.apiVersion = strings.TrimSpace(version)
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the given key. An empty key is accepted so the
// process can start without a credential; GenerateContent then fails with
// ErrMissingAPIKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		model:      DefaultModel,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{},

		maxResponseBytes: maxSuccessBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey reports whether a credential was configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

// endpoint returns the generateContent URL without the key parameter.
func endpoint(baseURL, apiVersion, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if model == "" {
		model = DefaultModel
	}
	return base + "/" + strings.Trim(apiVersion, "/") + "/models/" + url.PathEscape(model) + ":generateContent"
}

func (c *Client) requestURL() string {
	return endpoint(c.baseURL, c.apiVersion, c.model) + "?key=" + url.QueryEscape(c.apiKey)
}

// Endpoint returns the upstream URL with the credential omitted, for logging.
func (c *Client) Endpoint() string {
	return endpoint(c.baseURL, c.apiVersion, c.model)
}

// GenerateContent sends one generateContent request. A 2xx response whose body
// is empty, or valid JSON of an unexpected shape, yields a response with no
// text rather than an error.
func (c *Client) GenerateContent(ctx context.Context, payload domain.GenerateContentRequest) (*domain.GenerateContentResponse, error) {
	if !c.HasAPIKey() {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return nil, err
	}

	var out domain.GenerateContentResponse
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("gemini: decode response: %w", err)
		}
	}
	return &out, nil
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", redactURLError(err))
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.Endpoint(),
			Body:       string(buf),
		}
	}

	limit := c.maxResponseBytes
	if limit <= 0 {
		limit = maxSuccessBody
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("gemini: read response body: %w", err)
	}
	if int64(len(buf)) > limit {
		return nil, fmt.Errorf("gemini: response too large: exceeds %d bytes", limit)
	}
	return buf, nil
}

// redactURLError strips the query string from *url.Error so the key does not
// end up in logs.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	redacted := *urlErr
	if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
		u.RawQuery = ""
		redacted.URL = u.String()
	} else {
		redacted.URL = ""
	}
	return &redacted
}
