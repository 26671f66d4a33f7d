// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"encoding/json"
	"log"
	"strconv"
	"strings"
)

// =============================================================================
// DECODER CONSTANTS
// =============================================================================

// doneSentinel is the literal payload marking the end of the event stream.
const doneSentinel = "[DONE]"

// dataPrefix is the line prefix carrying event payloads.
const dataPrefix = "data:"

// DefaultDeltaPaths is the prioritized list of field paths searched for the
// content delta inside a decoded event. Numeric segments index into arrays.
// The upstream response shape was discovered empirically, so the list is
// configurable rather than exhaustive.
var DefaultDeltaPaths = []string{
	"choices.0.delta.content",
	"content",
	"text",
	"completion",
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder reassembles raw transport chunks into ordered content deltas.
//
// Chunks may split a logical event anywhere, including mid-delimiter. The
// decoder appends every chunk to a single growable buffer and repeatedly
// carves off complete events (terminated by a blank line). A malformed
// event is dropped and logged; it never aborts the stream. Data left in
// the buffer when the transport ends is discarded, never partially emitted.
//
// A Decoder serves exactly one stream and is not restartable.
type Decoder struct {
	buf     bytes.Buffer
	paths   [][]string
	done    bool
	dropped int

	generationID string
	usage        *Usage

	logf func(format string, args ...any)
}

// NewDecoder creates a Decoder using DefaultDeltaPaths.
func NewDecoder() *Decoder {
	return NewDecoderWithPaths(DefaultDeltaPaths)
}

// NewDecoderWithPaths creates a Decoder with a custom delta field path list.
// Paths are tried in order; the first present field wins.
func NewDecoderWithPaths(paths []string) *Decoder {
	d := &Decoder{logf: log.Printf}
	if len(paths) == 0 {
		paths = DefaultDeltaPaths
	}
	d.paths = make([][]string, len(paths))
	for i, p := range paths {
		d.paths[i] = strings.Split(p, ".")
	}
	return d
}

// WithLogger replaces the logger used for dropped events.
func (d *Decoder) WithLogger(logf func(format string, args ...any)) *Decoder {
	d.logf = logf
	return d
}

// Feed appends a raw chunk and returns the content deltas of every event
// completed by it, in arrival order. After the termination sentinel has
// been seen, remaining events are drained without emitting.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf.Write(chunk)

	var deltas []string
	for {
		event, ok := d.nextEvent()
		if !ok {
			break
		}
		delta, ok := d.decodeEvent(event)
		if ok && !d.done {
			deltas = append(deltas, delta)
		}
	}
	return deltas
}

// Done reports whether the termination sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped returns the number of malformed events discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// GenerationID returns the external identifier of the generation, if any
// event carried one.
func (d *Decoder) GenerationID() string {
	return d.generationID
}

// Usage returns the token usage reported by the stream, or nil.
func (d *Decoder) Usage() *Usage {
	return d.usage
}

// =============================================================================
// EVENT FRAMING
// =============================================================================

// nextEvent carves the next complete event off the buffer. An event ends at
// a blank line (LF LF or CRLF CRLF); anything after the delimiter stays
// buffered for the next call.
func (d *Decoder) nextEvent() ([]byte, bool) {
	data := d.buf.Bytes()

	idx := bytes.Index(data, []byte("\n\n"))
	delimLen := 2

	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf != -1 && (idx == -1 || crlf < idx) {
		idx = crlf
		delimLen = 4
	}

	if idx == -1 {
		return nil, false
	}

	event := make([]byte, idx)
	copy(event, data[:idx])
	d.buf.Next(idx + delimLen)
	return event, true
}

// decodeEvent extracts the content delta from one complete event. The
// second return value is false when the event carries no delta (sentinel,
// keepalive, role announcement, or a dropped malformed payload).
func (d *Decoder) decodeEvent(event []byte) (string, bool) {
	var dataLines [][]byte

	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			// Ignore other SSE fields (event:, id:, retry:, comments).
			continue
		}
		payload := bytes.TrimPrefix(line, []byte(dataPrefix))
		if len(payload) > 0 && payload[0] == ' ' {
			payload = payload[1:]
		}
		dataLines = append(dataLines, payload)
	}

	if len(dataLines) == 0 {
		return "", false
	}
	payload := bytes.Join(dataLines, []byte("\n"))

	if string(bytes.TrimSpace(payload)) == doneSentinel {
		d.done = true
		return "", false
	}

	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		d.dropped++
		d.logf("stream: dropping malformed event (%d bytes): %v", len(payload), err)
		return "", false
	}

	d.captureMetadata(obj)

	delta, ok := extractDelta(obj, d.paths)
	if !ok || delta == "" {
		return "", false
	}
	return delta, true
}

// captureMetadata records the generation identifier and usage block when an
// event carries them.
func (d *Decoder) captureMetadata(obj map[string]any) {
	if d.generationID == "" {
		if id, ok := obj["id"].(string); ok {
			d.generationID = id
		}
	}
	if u, ok := obj["usage"].(map[string]any); ok {
		d.usage = &Usage{
			PromptTokens:     intField(u, "prompt_tokens"),
			CompletionTokens: intField(u, "completion_tokens"),
			TotalTokens:      intField(u, "total_tokens"),
		}
	}
}

// =============================================================================
// FIELD PATH EXTRACTION
// =============================================================================

// extractDelta walks the prioritized field paths through the decoded object
// and returns the first string value found.
func extractDelta(obj map[string]any, paths [][]string) (string, bool) {
	for _, path := range paths {
		if s, ok := walkPath(obj, path); ok {
			return s, true
		}
	}
	return "", false
}

// walkPath follows one dot path through nested maps and arrays. A numeric
// segment indexes into an array.
func walkPath(root any, path []string) (string, bool) {
	current := root
	for _, seg := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return "", false
			}
			current = node[i]
		default:
			return "", false
		}
	}
	s, ok := current.(string)
	return s, ok
}

// intField reads an integer out of a decoded JSON map, tolerating the
// float64 representation encoding/json uses for numbers.
func intField(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}
