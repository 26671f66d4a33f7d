// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"
)

func TestToastManagerAddAndActive(t *testing.T) {
	m := NewToastManager()

	if m.HasToasts() {
		t.Error("new manager should have no toasts")
	}

	id1 := m.AddError("rating could not be synced")
	id2 := m.AddStatus("saved")

	if id1 == id2 {
		t.Error("toast IDs should be unique")
	}

	active := m.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 active toasts, got %d", len(active))
	}
	if active[0].Kind != ToastKindError {
		t.Errorf("expected first toast to be error kind, got %v", active[0].Kind)
	}
}

func TestToastManagerRemove(t *testing.T) {
	m := NewToastManager()
	id := m.AddWarning("context nearly full")
	m.AddStatus("other")

	m.Remove(id)

	active := m.Active()
	if len(active) != 1 {
		t.Fatalf("expected 1 toast after remove, got %d", len(active))
	}
	if active[0].Message != "other" {
		t.Errorf("wrong toast removed: %q survived", active[0].Message)
	}
}

func TestToastTickExpiresOldToasts(t *testing.T) {
	m := NewToastManager()
	m.AddStatus("fresh")

	// Inject an already-expired toast directly.
	m.mu.Lock()
	m.toasts = append(m.toasts, Toast{
		ID:        nextToastID(),
		Message:   "stale",
		Kind:      ToastKindStatus,
		CreatedAt: time.Now().Add(-time.Minute),
		Duration:  time.Second,
	})
	m.mu.Unlock()

	live := m.Tick()
	if len(live) != 1 {
		t.Fatalf("expected 1 live toast after tick, got %d", len(live))
	}
	if live[0].Message != "fresh" {
		t.Errorf("expected stale toast to expire, got %q", live[0].Message)
	}
}

func TestRenderToastStack(t *testing.T) {
	toasts := []Toast{
		newToast("first", ToastKindError, ErrorToastDuration),
		newToast("second", ToastKindSuccess, StatusToastDuration),
	}

	out := RenderToastStack(toasts, 80)
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("stack should contain both messages, got %q", out)
	}

	if RenderToastStack(nil, 80) != "" {
		t.Error("empty stack should render empty string")
	}
}

func TestWrapToastText(t *testing.T) {
	out := wrapToastText("one two three four five six", 10)
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 10 {
			t.Errorf("line %q exceeds width 10", line)
		}
	}
}
