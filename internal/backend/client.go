// Package backend is the REST client for the trip backend: edit locks, plan submission and
// account helpers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// TokenSource supplies the bearer token for each request. An empty token sends no header.
type TokenSource interface {
	Token() string
}

// tokenClearer is implemented by token sources that can forget a token the
// backend rejected with 401.
type tokenClearer interface {
	Clear()
}

// Client talks to the trip backend.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient creates a backend client. tokens may be nil.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// envelope is the backend's response wrapper for both success and failure.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	ErrorCode  string          `json:"errorCode,omitempty"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// APIError is a response whose HTTP status or in-band statusCode is not 2xx.
type APIError struct {
	Status    int
	ErrorCode string
	Message   string
	Data      json.RawMessage
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// DecodeData unmarshals the error payload's data field into v.
func (e *APIError) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return errors.New("no data in error response")
	}
	return json.Unmarshal(e.Data, v)
}

// StatusOf returns the API status carried by err, or 0 for transport errors.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// do sends a JSON request and decodes the envelope's data into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if clearer, ok := c.tokens.(tokenClearer); ok {
			clearer.Clear()
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && isSuccess(resp.StatusCode) {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	status := resp.StatusCode
	if isSuccess(status) && env.StatusCode != 0 {
		status = env.StatusCode
	}
	if !isSuccess(status) {
		msg := env.Message
		if msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return &APIError{Status: status, ErrorCode: env.ErrorCode, Message: msg, Data: env.Data}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

// newRequest creates a new HTTP request with authentication.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Reachable probes the backend with a short HEAD request. Any status below
// 500 counts as reachable.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 500
}
