// Package github talks to the GitHub repository contents API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the repositories endpoint of the public API
	DefaultBaseURL = "https://api.github.com/repos"
	// RawAccept asks the contents API for raw file bodies
	RawAccept = "application/vnd.github.v4.raw"
)

// maxErrorBody bounds how much of a failed response is read for its message
const maxErrorBody = 64 << 10

// Entry is one element of a contents listing
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Client provides read access to the contents of one repository
type Client interface {
	// ListContents returns the entries of the repository root
	ListContents(ctx context.Context) ([]Entry, error)
	// FetchFile returns the raw content of a file in the repository root
	FetchFile(ctx context.Context, name string) ([]byte, error)
}

// HTTPClient implements Client over the REST contents API
type HTTPClient struct {
	baseURL string
	owner   string
	repo    string
	token   string
	accept  string
	http    *http.Client
}

// Option customizes an HTTPClient
type Option func(*HTTPClient)

// WithAccept overrides the Accept header sent with every request
func WithAccept(accept string) Option {
	return func(c *HTTPClient) {
		if accept != "" {
			c.accept = accept
		}
	}
}

// WithTimeout sets an overall timeout per request. Zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// NewHTTPClient creates a client for owner/repo below baseURL
func NewHTTPClient(baseURL, owner, repo, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   owner,
		repo:    repo,
		token:   token,
		accept:  RawAccept,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListContents fetches and decodes the root directory listing
func (c *HTTPClient) ListContents(ctx context.Context) ([]Entry, error) {
	u, err := c.contentsURL()
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &MalformedResponseError{URL: u, Err: err}
	}
	if entries == nil {
		return nil, &MalformedResponseError{URL: u, Err: fmt.Errorf("listing is null")}
	}

	for i, e := range entries {
		if e.Name == "" || e.SHA == "" {
			return nil, &MalformedResponseError{
				URL: u,
				Err: fmt.Errorf("entry %d is missing name or sha", i),
			}
		}
	}

	return entries, nil
}

// FetchFile downloads the raw content of name
func (c *HTTPClient) FetchFile(ctx context.Context, name string) ([]byte, error) {
	u, err := c.contentsURL(name)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, u)
}

func (c *HTTPClient) contentsURL(elem ...string) (string, error) {
	parts := append([]string{c.owner, c.repo, "contents"}, elem...)
	u, err := url.JoinPath(c.baseURL, parts...)
	if err != nil {
		return "", fmt.Errorf("invalid api url %q: %w", c.baseURL, err)
	}
	return u, nil
}

// get performs one authenticated GET and returns the full body of a 2xx response
func (c *HTTPClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", c.accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: u, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(u, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: u, Err: fmt.Errorf("read body: %w", err)}
	}

	return body, nil
}

func newStatusError(u string, resp *http.Response) *StatusError {
	serr := &StatusError{
		URL:        u,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return serr
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &apiErr) == nil {
		serr.Message = apiErr.Message
	}

	return serr
}
