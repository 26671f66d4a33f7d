// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"sync"
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller serializes streaming sessions and owns their cancel
// functions. It fixes the race where a cancel func is touched from both
// the UI event loop and the consumer goroutine without synchronization.
// IMPORTANT: use as a pointer in UI models so the mutex is never copied
// when the event loop returns model copies.
type Controller struct {
	mu     sync.Mutex
	active *Session
	cancel context.CancelFunc
}

// NewController creates an empty controller.
func NewController() *Controller {
	return &Controller{}
}

// Begin starts a new session, cancelling any session still active. The
// returned context governs the new session's stream; cancelling the
// session cancels the context and vice versa.
func (c *Controller) Begin(parent context.Context) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	sess := NewSession()
	sess.Start()

	c.mu.Lock()
	prevSess, prevCancel := c.active, c.cancel
	c.active = sess
	c.cancel = cancel
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevSess != nil {
		prevSess.Cancel()
	}
	return sess, ctx
}

// CancelActive cancels the in-flight session, if any. Safe to call any
// number of times and from any goroutine. Returns the cancelled session
// or nil when nothing was streaming.
func (c *Controller) CancelActive() *Session {
	c.mu.Lock()
	sess, cancel := c.active, c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil && sess.Cancel() {
		return sess
	}
	return nil
}

// Finish releases the controller's hold on sess. The cancel func is
// always invoked to prevent context leaks; sessions other than the
// active one are ignored.
func (c *Controller) Finish(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != sess {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.active = nil
}

// Active returns the session currently streaming, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// =============================================================================
// CONSUME LOOP
// =============================================================================

// DeltaSource is the pull interface a stream exposes: successive content
// deltas, then io.EOF on clean termination.
type DeltaSource interface {
	Recv() (string, error)
}

// Consume drains src into sess, invoking onDelta for each delta that the
// session accepted. The session ends in exactly one terminal state:
// Completed on clean termination, Cancelled when ctx was cancelled, and
// Failed on any other error (returned to the caller). Deltas arriving
// after cancellation are discarded, not rendered.
func Consume(ctx context.Context, sess *Session, src DeltaSource, onDelta func(delta string)) error {
	for {
		delta, err := src.Recv()
		if err != nil {
			switch {
			case err == io.EOF:
				sess.Complete()
				return nil
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				sess.Cancel()
				return nil
			default:
				sess.Fail(err)
				return err
			}
		}
		if sess.AppendDelta(delta) && onDelta != nil {
			onDelta(delta)
		}
	}
}
