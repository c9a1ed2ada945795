// Package http is the outbound HTTP client shared by the file API, weather
// and document parsing clients.
package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"mediguard-agents/internal/common/errors"
)

const maxBodyBytes = 64 << 20

// ErrBodyTooLarge is returned when a 2xx body exceeds the client's limit.
var ErrBodyTooLarge = stderrors.New("response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:    "mediguard-agents",
		maxBodyBytes: maxBodyBytes,
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}

// Fetch performs req and returns the body of a 2xx response. Other statuses
// yield a *StatusError carrying a truncated body. A 2xx body over the limit
// is ErrBodyTooLarge, never a partial body.
func (c *Client) Fetch(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.maxBodyBytes)
	}
	return body, nil
}

// Get fetches url with the given headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Fetch(req)
}

// Bearer returns an Authorization header map, or nil for an empty token.
func Bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// UpstreamError classifies a Fetch or Get error from service.
func UpstreamError(service string, err error) *errors.StandardError {
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return errors.NewUpstreamError(service, statusErr.StatusCode, err)
	}
	if stderrors.Is(err, ErrBodyTooLarge) {
		return errors.NewUpstreamResponseError(service, err.Error())
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewUpstreamTimeoutError(service, err)
	}
	return errors.FromUpstream(service, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
