// Package transport executes JSON requests against model backends and maps transport
// failures to sentinel errors. Backends build payloads and interpret replies; this package
// only moves bytes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for backend transport failures.
var (
	ErrBackendUnavailable = errors.New("vision backend unavailable")
	ErrBackendStatus      = errors.New("vision backend returned error status")
	ErrInferenceTimeout   = errors.New("vision inference timeout")
	ErrInvalidResponse    = errors.New("vision backend returned invalid response")
)


// Client is a thin JSON-over-HTTP executor.
type Client struct {
	http *http.Client
}

// NewClient creates a Client. A nil httpClient uses a client without a global timeout;
// each call is bounded by its own timeout instead.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient}
}

// PostJSON sends payload as JSON to url and decodes the 2xx reply into out.
// timeout bounds the whole exchange when positive.
func (c *Client) PostJSON(ctx context.Context, url string, payload, out any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, body, out, timeout)
}

// GetJSON fetches url and decodes the 2xx reply into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any, timeout time.Duration) error {
	return c.do(ctx, http.MethodGet, url, nil, out, timeout)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %d - %s", ErrBackendStatus, resp.StatusCode, string(text))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classifyError(ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
