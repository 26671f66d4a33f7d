// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"io"
	"sync"
)

// streamReadSize is the transport read size for streaming responses.
const streamReadSize = 4096

// Stream is the pull-based view of one in-flight completion.
//
// Callers loop on Recv until it returns io.EOF (stream finished) or an
// error. Recv checks for cancellation before every chunk read, so a
// cancelled context stops the stream promptly without waiting for the
// next event. The underlying connection is released exactly once, on
// whichever of EOF, error, cancellation, or Close happens first.
//
// A Stream is finite and not restartable.
type Stream struct {
	ctx  context.Context
	body io.ReadCloser
	dec  *Decoder

	pending []string
	readBuf []byte
	err     error

	closeOnce sync.Once
}

func newStream(ctx context.Context, body io.ReadCloser, dec *Decoder) *Stream {
	return &Stream{
		ctx:     ctx,
		body:    body,
		dec:     dec,
		readBuf: make([]byte, streamReadSize),
	}
}

// Recv returns the next content delta in arrival order.
//
// It returns io.EOF when the stream has finished cleanly, the context's
// error if cancelled, and a TransportError if the connection fails
// mid-stream. After any error the stream is closed and every further call
// returns the same error.
func (s *Stream) Recv() (string, error) {
	for {
		if len(s.pending) > 0 {
			delta := s.pending[0]
			s.pending = s.pending[1:]
			return delta, nil
		}

		if s.err != nil {
			return "", s.err
		}

		// Cancellation is checked before each read, not only when the
		// transport happens to deliver data.
		select {
		case <-s.ctx.Done():
			s.close()
			s.err = s.ctx.Err()
			return "", s.err
		default:
		}

		n, err := s.body.Read(s.readBuf)
		if n > 0 {
			s.pending = append(s.pending, s.dec.Feed(s.readBuf[:n])...)
		}
		if err != nil {
			s.close()
			switch {
			case err == io.EOF:
				// Unterminated leftover in the decoder buffer is
				// discarded here; already-framed deltas still drain.
				s.err = io.EOF
			case s.ctx.Err() != nil:
				s.err = s.ctx.Err()
			default:
				s.err = &TransportError{Err: err}
			}
			if len(s.pending) > 0 {
				continue
			}
			return "", s.err
		}
	}
}

// Close releases the underlying connection. Safe to call any number of
// times, including after Recv has already closed the stream.
func (s *Stream) Close() error {
	s.close()
	return nil
}

func (s *Stream) close() {
	s.closeOnce.Do(func() {
		s.body.Close()
	})
}

// GenerationID returns the service-side identifier of this generation, if
// the stream carried one.
func (s *Stream) GenerationID() string {
	return s.dec.GenerationID()
}

// Usage returns the token usage reported by the stream, or nil.
func (s *Stream) Usage() *Usage {
	return s.dec.Usage()
}

// Finished reports whether the termination sentinel was observed, as
// opposed to the transport ending early.
func (s *Stream) Finished() bool {
	return s.dec.Done()
}
