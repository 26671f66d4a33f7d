// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"strings"
	"testing"
)

// feedAll pushes chunks through a fresh decoder and concatenates every
// emitted delta.
func feedAll(t *testing.T, chunks [][]byte) (string, *Decoder) {
	t.Helper()
	dec := NewDecoder().WithLogger(t.Logf)
	var sb strings.Builder
	for _, chunk := range chunks {
		for _, delta := range dec.Feed(chunk) {
			sb.WriteString(delta)
		}
	}
	return sb.String(), dec
}

// splitEvery slices a byte stream into fixed-size chunks.
func splitEvery(data []byte, n int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		end := n
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[:end])
		data = data[end:]
	}
	return chunks
}

// =============================================================================
// BASIC DECODING
// =============================================================================

// TestDecoder_ReferenceScenario feeds the documented two-delta stream and
// checks emission order and accumulated content.
func TestDecoder_ReferenceScenario(t *testing.T) {
	dec := NewDecoder().WithLogger(t.Logf)

	deltas := dec.Feed([]byte(`data: {"choices":[{"delta":{"content":"Hi"}}]}` + "\n\n"))
	if len(deltas) != 1 || deltas[0] != "Hi" {
		t.Fatalf("First event: got %q, want [\"Hi\"]", deltas)
	}

	deltas = dec.Feed([]byte(`data: {"choices":[{"delta":{"content":" there"}}]}` + "\n\n"))
	if len(deltas) != 1 || deltas[0] != " there" {
		t.Fatalf("Second event: got %q, want [\" there\"]", deltas)
	}

	deltas = dec.Feed([]byte("data: [DONE]\n\n"))
	if len(deltas) != 0 {
		t.Fatalf("Sentinel emitted deltas: %q", deltas)
	}
	if !dec.Done() {
		t.Error("Done() = false after sentinel")
	}
}

func TestDecoder_NothingEmittedAfterSentinel(t *testing.T) {
	stream := "data: [DONE]\n\n" +
		`data: {"choices":[{"delta":{"content":"late"}}]}` + "\n\n"

	got, dec := feedAll(t, [][]byte{[]byte(stream)})
	if got != "" {
		t.Errorf("Emitted %q after sentinel", got)
	}
	if !dec.Done() {
		t.Error("Done() = false")
	}
}

// =============================================================================
// CHUNK-BOUNDARY INDEPENDENCE
// =============================================================================

// TestDecoder_ChunkBoundaryIndependence verifies that any split of the
// byte stream, including splits inside the event delimiter, produces the
// same concatenated output as a single chunk.
func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	stream := []byte(`data: {"choices":[{"delta":{"content":"The quick"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":" brown"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":" fox, π≈3.14"}}]}` + "\n\n" +
		"data: [DONE]\n\n")

	want, _ := feedAll(t, [][]byte{stream})
	if want != "The quick brown fox, π≈3.14" {
		t.Fatalf("Whole-stream decode = %q", want)
	}

	for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
		got, dec := feedAll(t, splitEvery(stream, size))
		if got != want {
			t.Errorf("Chunk size %d: got %q, want %q", size, got, want)
		}
		if !dec.Done() {
			t.Errorf("Chunk size %d: sentinel not detected", size)
		}
	}
}

func TestDecoder_SplitInsideDelimiter(t *testing.T) {
	dec := NewDecoder().WithLogger(t.Logf)

	deltas := dec.Feed([]byte(`data: {"content":"a"}` + "\n"))
	if len(deltas) != 0 {
		t.Fatalf("Event emitted before delimiter completed: %q", deltas)
	}

	deltas = dec.Feed([]byte("\n"))
	if len(deltas) != 1 || deltas[0] != "a" {
		t.Fatalf("Got %q after delimiter completed, want [\"a\"]", deltas)
	}
}

func TestDecoder_CRLFFraming(t *testing.T) {
	stream := []byte("data: {\"content\":\"x\"}\r\n\r\ndata: {\"content\":\"y\"}\r\n\r\ndata: [DONE]\r\n\r\n")

	got, dec := feedAll(t, splitEvery(stream, 3))
	if got != "xy" {
		t.Errorf("CRLF stream decoded to %q, want %q", got, "xy")
	}
	if !dec.Done() {
		t.Error("Sentinel not detected in CRLF stream")
	}
}

// =============================================================================
// MALFORMED EVENTS AND LEFTOVERS
// =============================================================================

func TestDecoder_MalformedEventDroppedStreamContinues(t *testing.T) {
	stream := []byte(`data: {"content":"keep"}` + "\n\n" +
		"data: {not json at all\n\n" +
		`data: {"content":" going"}` + "\n\n")

	got, dec := feedAll(t, [][]byte{stream})
	if got != "keep going" {
		t.Errorf("Got %q, want %q", got, "keep going")
	}
	if dec.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", dec.Dropped())
	}
}

func TestDecoder_UnterminatedTailNotEmitted(t *testing.T) {
	// The transport ends without completing the second event. The decoder
	// must not emit the partial payload.
	got, _ := feedAll(t, [][]byte{
		[]byte(`data: {"content":"whole"}` + "\n\n" + `data: {"content":"par`),
	})
	if got != "whole" {
		t.Errorf("Got %q, want %q", got, "whole")
	}
}

func TestDecoder_UnknownFieldsTolerated(t *testing.T) {
	stream := []byte(`data: {"id":"gen-42","object":"chat.completion.chunk","novel_field":7,` +
		`"choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":null}]}` + "\n\n")

	got, dec := feedAll(t, [][]byte{stream})
	if got != "ok" {
		t.Errorf("Got %q, want %q", got, "ok")
	}
	if dec.GenerationID() != "gen-42" {
		t.Errorf("GenerationID = %q, want %q", dec.GenerationID(), "gen-42")
	}
}

// =============================================================================
// FALLBACK FIELD PATHS
// =============================================================================

func TestDecoder_FallbackPaths(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"primary choices path", `{"choices":[{"delta":{"content":"A"}}]}`, "A"},
		{"bare content", `{"content":"B"}`, "B"},
		{"text field", `{"text":"C"}`, "C"},
		{"completion field", `{"completion":"D"}`, "D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := feedAll(t, [][]byte{[]byte("data: " + tt.payload + "\n\n")})
			if got != tt.want {
				t.Errorf("Got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecoder_PathPriorityOrder(t *testing.T) {
	// When several known fields are present the earliest path wins.
	payload := `{"text":"fallback","choices":[{"delta":{"content":"primary"}}]}`
	got, _ := feedAll(t, [][]byte{[]byte("data: " + payload + "\n\n")})
	if got != "primary" {
		t.Errorf("Got %q, want %q", got, "primary")
	}
}

func TestDecoder_CustomPaths(t *testing.T) {
	dec := NewDecoderWithPaths([]string{"result.0.chunk"}).WithLogger(t.Logf)
	deltas := dec.Feed([]byte(`data: {"result":[{"chunk":"custom"}]}` + "\n\n"))
	if len(deltas) != 1 || deltas[0] != "custom" {
		t.Errorf("Custom path: got %q", deltas)
	}
}

func TestDecoder_EventWithoutDeltaSkipped(t *testing.T) {
	// Role-announcement chunks carry no content and must not emit.
	stream := []byte(`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"hello"}}]}` + "\n\n")

	got, dec := feedAll(t, [][]byte{stream})
	if got != "hello" {
		t.Errorf("Got %q, want %q", got, "hello")
	}
	if dec.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0 (missing delta is not malformed)", dec.Dropped())
	}
}

// =============================================================================
// METADATA CAPTURE
// =============================================================================

func TestDecoder_UsageCapture(t *testing.T) {
	stream := []byte(`data: {"content":"x","usage":{"prompt_tokens":12,"completion_tokens":34,"total_tokens":46}}` + "\n\n")

	_, dec := feedAll(t, [][]byte{stream})
	u := dec.Usage()
	if u == nil {
		t.Fatal("Usage() = nil")
	}
	if u.PromptTokens != 12 || u.CompletionTokens != 34 || u.TotalTokens != 46 {
		t.Errorf("Usage = %+v", *u)
	}
}
