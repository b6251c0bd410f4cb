// Package platform wraps the REST surface of the practice platform:
// matchmaking, questions and attempts. All calls attach the bearer token
// from the configured provider and surface 401s without retrying.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appErr "pairprep/pkg/errors"
)

// Client wraps HTTP requests against the platform API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider func() string
}

// NewClient creates a platform client. tokenProvider may be nil for
// unauthenticated use against a stub backend.
func NewClient(baseURL string, timeout time.Duration, tokenProvider func() string) *Client {
	return &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
	}
}

// SetBaseURL overrides the API base URL.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// doJSON performs one JSON request/response exchange. Non-2xx statuses map
// to coded errors; the response body, when present, is decoded into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return appErr.Wrapf(err, appErr.InvalidParams, "marshal request body failed")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", c.baseURL, path), reader)
	if err != nil {
		return appErr.Wrapf(err, appErr.RequestFailed, "build request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokenProvider != nil {
		if token := c.tokenProvider(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErr.TransportFailure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErr.Wrapf(err, appErr.TransportError, "read response body failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, method, path, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return appErr.Wrapf(err, appErr.ResponseInvalid, "decode %s %s response failed", method, path)
		}
	}
	return nil
}

func statusError(status int, method, path string, body []byte) error {
	code := appErr.RequestFailed
	switch status {
	case http.StatusUnauthorized:
		code = appErr.Unauthorized
	case http.StatusForbidden:
		code = appErr.Forbidden
	case http.StatusNotFound:
		code = appErr.NotFound
	case http.StatusTooManyRequests:
		code = appErr.TooManyRequests
	}
	return appErr.Newf(code, "%s %s returned %d", method, path, status).
		WithDetail("status", status).
		WithDetail("body", string(body))
}
