// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// CLIENT CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxErrorBodySize caps how much of an error response body is read.
	MaxErrorBodySize = 1 * 1024 * 1024

	userAgent = "halcyon/0.1.0"
)

var (
	// Shared pooled client for non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient carries no client timeout: the lifetime of a
	// streaming response is controlled by the request context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the hosted completion service.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	deltaPaths []string

	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a client for the given service base URL and API key.
// An empty API key is allowed; requests will fail with ErrNotConfigured.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		deltaPaths:   DefaultDeltaPaths,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}
}

// WithModel sets the default model for requests that don't name one.
func (c *Client) WithModel(model string) *Client {
	c.model = model
	return c
}

// WithDeltaPaths overrides the delta field path list used when decoding
// stream events.
func (c *Client) WithDeltaPaths(paths []string) *Client {
	if len(paths) > 0 {
		c.deltaPaths = paths
	}
	return c
}

// WithHTTPClients replaces both underlying HTTP clients. Used by tests.
func (c *Client) WithHTTPClients(plain, streaming *http.Client) *Client {
	c.httpClient = plain
	c.streamClient = streaming
	return c
}

// SetModel switches the active model.
func (c *Client) SetModel(model string) {
	c.model = model
}

// Model returns the active model.
func (c *Client) Model() string {
	return c.model
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// =============================================================================
// STREAMING COMPLETION
// =============================================================================

// StreamCompletion opens a streaming chat completion and returns a Stream
// of content deltas. The request's Stream flag is forced on, and the
// client's model fills in when the request names none.
//
// The caller owns the Stream and must drain it to io.EOF or Close it.
func (c *Client) StreamCompletion(ctx context.Context, req *CompletionRequest) (*Stream, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req.Stream = true
	if req.Model == "" {
		req.Model = c.model
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		resp.Body.Close()
		return nil, errorFromResponse(resp.StatusCode, body)
	}

	return newStream(ctx, resp.Body, NewDecoderWithPaths(c.deltaPaths)), nil
}

// setHeaders sets the headers required on every service request. The
// Authorization header is never logged.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}
