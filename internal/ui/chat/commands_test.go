// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs []string
	}{
		{"/help", "help", nil},
		{"/rate 5", "rate", []string{"5"}},
		{"/RATE clear", "rate", []string{"clear"}},
		{"/model gpt-4o", "model", []string{"gpt-4o"}},
		{"/sys be brief and precise", "sys", []string{"be", "brief", "and", "precise"}},
		{"/", "", nil},
	}

	for _, tt := range tests {
		name, args := parseCommand(tt.input)
		if name != tt.wantName {
			t.Errorf("parseCommand(%q) name = %q, want %q", tt.input, name, tt.wantName)
		}
		if len(args) != len(tt.wantArgs) {
			t.Errorf("parseCommand(%q) args = %v, want %v", tt.input, args, tt.wantArgs)
			continue
		}
		for i := range args {
			if args[i] != tt.wantArgs[i] {
				t.Errorf("parseCommand(%q) arg[%d] = %q, want %q", tt.input, i, args[i], tt.wantArgs[i])
			}
		}
	}
}

func TestParseRating(t *testing.T) {
	for _, arg := range []string{"1", "3", "5"} {
		r, err := ParseRating(arg)
		if err != nil {
			t.Errorf("ParseRating(%q) unexpected error: %v", arg, err)
		}
		if !history.ValidRating(r) {
			t.Errorf("ParseRating(%q) = %d, not a valid rating", arg, r)
		}
	}

	r, err := ParseRating("clear")
	if err != nil {
		t.Fatalf("ParseRating(clear) error: %v", err)
	}
	if r != history.RatingCleared {
		t.Errorf("ParseRating(clear) = %d, want %d", r, history.RatingCleared)
	}

	r, err = ParseRating("CLEAR")
	if err != nil || r != history.RatingCleared {
		t.Errorf("ParseRating should be case-insensitive for clear, got %d %v", r, err)
	}

	for _, arg := range []string{"0", "6", "-1", "ten", ""} {
		if _, err := ParseRating(arg); err == nil {
			t.Errorf("ParseRating(%q) should fail", arg)
		}
	}
}
