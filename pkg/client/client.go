// Package client is a Go client for the fingerprint REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
)

const Version = "0.1.0"

// Logger is the logging surface the client writes to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Client talks to one API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	fingerprints *FingerprintsClient
	keys         *KeysClient
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pcfp: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// ErrorCode returns the application error code reported by the server.
func (e *APIError) ErrorCode() errors.ErrorCode { return errors.ErrorCode(e.Code) }

// NewClient creates a client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.InvalidParam("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.InvalidParam("base URL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    "pcfp-go-client/" + Version,
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.fingerprints = &FingerprintsClient{client: c}
	c.keys = &KeysClient{client: c}
	return c, nil
}

// Fingerprints returns the /fingerprints sub-client.
func (c *Client) Fingerprints() *FingerprintsClient { return c.fingerprints }

// Keys returns the /keys sub-client.
func (c *Client) Keys() *KeysClient { return c.keys }

// envelope mirrors the server's response wrapper; Data is decoded lazily.
type envelope struct {
	Success    bool                `json:"success"`
	Data       json.RawMessage     `json:"data,omitempty"`
	Error      *common.ErrorDetail `json:"error,omitempty"`
	Pagination *common.Pagination  `json:"pagination,omitempty"`
	RequestID  string              `json:"request_id,omitempty"`
}

// request describes one call. body is either raw bytes (sent as is) or a
// value marshalled to JSON.
type request struct {
	method      string
	path        string
	query       url.Values
	body        interface{}
	contentType string
	// accept lists the non-error statuses besides 200.
	accept []int
}

type response struct {
	status int
	env    envelope
}

func (c *Client) do(ctx context.Context, r request, out interface{}) (*response, error) {
	path := r.path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path
	if len(r.query) > 0 {
		fullURL += "?" + r.query.Encode()
	}

	var payload []byte
	switch b := r.body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal request body")
		}
		payload = data
	}
	contentType := r.contentType
	if contentType == "" {
		contentType = "application/json"
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			wait := c.calculateBackoff(attempt)
			c.logger.Debugf("retry attempt %d after %v", attempt, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, fullURL, body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidParam, "failed to create request")
		}
		requestID := uuid.NewString()
		if payload != nil {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Errorf("request failed: %v", err)
			lastErr = errors.Wrap(err, errors.ErrCodeExternalService, "request failed")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to read response body")
		}
		c.logger.Debugf("%s %s %d (%v)", r.method, path, resp.StatusCode, time.Since(start))

		res := &response{status: resp.StatusCode}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &res.env); err != nil && accepted(resp.StatusCode, r.accept) {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode response")
			}
		}

		if !accepted(resp.StatusCode, r.accept) {
			apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
			if res.env.RequestID != "" {
				apiErr.RequestID = res.env.RequestID
			}
			if res.env.Error != nil {
				apiErr.Code = res.env.Error.Code
				apiErr.Message = res.env.Error.Message
			} else {
				apiErr.Message = strings.TrimSpace(string(raw))
			}
			lastErr = apiErr

			if resp.StatusCode == http.StatusTooManyRequests && attempt < c.retryMax {
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
					c.logger.Infof("rate limited, retrying after %d seconds", secs)
					select {
					case <-time.After(time.Duration(secs) * time.Second):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				continue
			}
			if apiErr.IsServerError() {
				continue
			}
			return nil, apiErr
		}

		if out != nil && len(res.env.Data) > 0 {
			if err := json.Unmarshal(res.env.Data, out); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode response data")
			}
		}
		return res, nil
	}
	return nil, lastErr
}

func accepted(status int, extra []int) bool {
	if status == http.StatusOK {
		return true
	}
	for _, s := range extra {
		if s == status {
			return true
		}
	}
	return false
}

// calculateBackoff is exponential with up to 25% jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax || backoff <= 0 {
		backoff = c.retryWaitMax
	}
	if q := int64(backoff / 4); q > 0 {
		backoff += time.Duration(rand.Int63n(q))
	}
	return backoff
}
