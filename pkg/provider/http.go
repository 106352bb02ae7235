// Package provider implements transports for JSON data providers.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 4 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus exposes the status code for error normalization.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithBaseURL overrides the provider endpoint (tests).
func WithBaseURL(u string) Option {
	return func(h *HTTP) {
		h.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(h *HTTP) {
		h.http = hc
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(h *HTTP) {
		h.headers[key] = value
	}
}

// HTTP calls GET {base}/{operation}?{params} and decodes a JSON object.
// Retries and throttling are the gateway's job, so each Call is one request.
type HTTP struct {
	name    string
	apiKey  string
	baseURL string
	headers map[string]string
	http    *http.Client
}

// NewHTTP creates a transport for the named provider.
func NewHTTP(name, baseURL, apiKey string, opts ...Option) *HTTP {
	h := &HTTP{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: make(map[string]string),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Call performs one request. Responses that are JSON arrays are returned
// under the "items" key.
func (h *HTTP) Call(ctx context.Context, operation string, params map[string]string) (map[string]any, error) {
	if h.baseURL == "" {
		return nil, eris.Errorf("%s: no base URL configured", h.name)
	}

	reqURL := fmt.Sprintf("%s/%s", h.baseURL, url.PathEscape(operation))
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", h.name)
	}
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: %s request failed", h.name, operation)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: read response body", h.name)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: h.name, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	return decode(h.name, body)
}

func decode(name string, body []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal response", name)
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		return map[string]any{"items": t}, nil
	default:
		return map[string]any{"value": t}, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
