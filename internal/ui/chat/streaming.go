// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// StreamingBuffer batches deltas for efficient rendering. Deltas are
// accumulated and flushed when either the batch size threshold is
// reached or enough time has passed since the last flush. This keeps
// the render rate capped regardless of how fast the service streams.
//
// Thread-safety: all operations are mutex-protected since writes come
// from the streaming goroutine while flushes happen in the main
// Bubble Tea loop.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	deltaCount int
	lastFlush  time.Time

	batchSize int           // deltas per batch
	minFlush  time.Duration // min time between flushes (1000/maxFPS)
	maxFPS    int
}

const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
)

// NewStreamingBuffer creates a streaming buffer with default settings:
// batch size 15 and a 30fps flush cap.
func NewStreamingBuffer() *StreamingBuffer {
	return NewStreamingBufferWithConfig(defaultBatchSize, defaultMaxFPS)
}

// NewStreamingBufferWithConfig creates a streaming buffer with custom
// batching. Out-of-range values fall back to the defaults.
func NewStreamingBufferWithConfig(batchSize, maxFPS int) *StreamingBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &StreamingBuffer{
		batchSize: batchSize,
		maxFPS:    maxFPS,
		minFlush:  time.Duration(1000/maxFPS) * time.Millisecond,
		lastFlush: time.Now(),
	}
}

// Write adds a delta to the buffer. Called from the streaming goroutine.
func (sb *StreamingBuffer) Write(delta string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(delta)
	sb.deltaCount++
}

// Flush returns accumulated content if either threshold has been
// reached. Returns ("", false) when there is nothing ready.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.shouldFlushLocked() {
		return "", false
	}
	return sb.drainLocked()
}

// ForceFlush immediately returns all buffered content regardless of
// thresholds. Used when a stream ends so nothing is left unrendered.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.drainLocked()
}

func (sb *StreamingBuffer) drainLocked() (string, bool) {
	if sb.buffer.Len() == 0 {
		return "", false
	}
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
	return content, true
}

func (sb *StreamingBuffer) shouldFlushLocked() bool {
	if sb.buffer.Len() == 0 {
		return false
	}
	if sb.deltaCount >= sb.batchSize {
		return true
	}
	return time.Since(sb.lastFlush) >= sb.minFlush
}

// Reset clears the buffer without flushing. Used when starting a new
// stream.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
}

// Pending returns the number of deltas waiting to be flushed.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.deltaCount
}

// Config returns the buffer's batching configuration.
func (sb *StreamingBuffer) Config() (batchSize, maxFPS int, minFlush time.Duration) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.batchSize, sb.maxFPS, sb.minFlush
}

// streamTickCmd schedules the next 30fps flush tick.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
