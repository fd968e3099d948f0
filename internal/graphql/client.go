package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jamesprial/upswatch/internal/config"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 4 << 20
	userAgent        = "upswatch"
)

var _ Client = (*HTTPClient)(nil)

// HTTPClient posts queries to a single GraphQL endpoint.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewHTTPClient builds an HTTPClient from cfg. The URL is required; a
// missing /graphql path suffix is appended. A non-positive timeout means 30s.
func NewHTTPClient(cfg config.GraphQLConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("graphql: URL is required")
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   normalizeURL(cfg.URL),
		apiKey:     cfg.APIKey,
	}, nil
}

// Endpoint returns the URL queries are posted to.
func (c *HTTPClient) Endpoint() string { return c.endpoint }

func normalizeURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	if strings.HasSuffix(u, "/graphql") {
		return u
	}
	return u + "/graphql"
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Execute posts query and returns the raw "data" object.
//
// Failures are reported as ErrNoAPIKey, ErrUnauthorized, *StatusError or
// *ResponseError; transport errors are wrapped and keep the context error
// visible to errors.Is.
func (c *HTTPClient) Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	req, err := c.newRequest(ctx, query, variables)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql: post %s: %w", c.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return decode(resp.Body)
}

func (c *HTTPClient) newRequest(ctx context.Context, query string, variables map[string]any) (*http.Request, error) {
	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("graphql: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("graphql: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", c.apiKey)
	return req, nil
}

func decode(r io.Reader) ([]byte, error) {
	var out response
	if err := json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("graphql: decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, &ResponseError{Errors: out.Errors}
	}
	if len(out.Data) == 0 || string(out.Data) == "null" {
		return nil, fmt.Errorf("graphql: response has no data")
	}
	return out.Data, nil
}
