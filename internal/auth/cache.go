// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultTokenMaxAge is how long a cached anti-forgery token is trusted.
// It sits well inside the server-side expiry so the token is renewed
// proactively rather than only after a 403.
const DefaultTokenMaxAge = 10 * time.Minute

// TokenFetcher retrieves a fresh anti-forgery token from the backend.
type TokenFetcher func(ctx context.Context) (string, error)

// inflightFetch is one fetch shared by every caller that arrives while it
// is still running.
type inflightFetch struct {
	done  chan struct{}
	token string
	err   error
}

// CredentialCache owns the process-wide anti-forgery token.
//
// GetToken returns the cached token while it is fresh, and otherwise
// fetches a new one. Callers that arrive while a fetch is in flight await
// that same fetch instead of issuing duplicates. Invalidate clears the
// cache so the next GetToken call re-fetches.
type CredentialCache struct {
	mu        sync.Mutex
	token     string
	fetchedAt time.Time
	maxAge    time.Duration
	inflight  *inflightFetch

	fetch TokenFetcher
}

// NewCredentialCache creates a cache around the given fetcher with the
// default freshness deadline.
func NewCredentialCache(fetch TokenFetcher) *CredentialCache {
	return &CredentialCache{
		maxAge: DefaultTokenMaxAge,
		fetch:  fetch,
	}
}

// WithMaxAge overrides the freshness deadline.
func (c *CredentialCache) WithMaxAge(maxAge time.Duration) *CredentialCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxAge > 0 {
		c.maxAge = maxAge
	}
	return c
}

// GetToken returns a fresh anti-forgery token, fetching one if the cache
// is empty or stale. At most one fetch is in flight at a time.
func (c *CredentialCache) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()

	if c.token != "" && time.Since(c.fetchedAt) < c.maxAge {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}

	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &inflightFetch{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	token, err := c.fetch(ctx)

	c.mu.Lock()
	if err == nil {
		c.token = token
		c.fetchedAt = time.Now()
	}
	c.inflight = nil
	c.mu.Unlock()

	call.token, call.err = token, err
	close(call.done)

	return token, err
}

// Invalidate clears the cached token. The next GetToken call re-fetches.
// A fetch already in flight is unaffected; its result still lands in the
// cache.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.fetchedAt = time.Time{}
}

// Cached reports whether a fresh token is currently held, without
// triggering a fetch.
func (c *CredentialCache) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != "" && time.Since(c.fetchedAt) < c.maxAge
}
