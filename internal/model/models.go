// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo is a catalog entry for a completion model the hosted service
// exposes. Entries drive model selection in the UI and the token budget
// computation for requests.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider identifies who serves the model upstream
	Provider string `json:"provider"`

	// ContextLength is the maximum context window in tokens
	ContextLength int `json:"context_length"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// DefaultContextLength is used for models the catalog does not know.
const DefaultContextLength = 8192

// Models is the catalog of known completion models.
var Models = map[string]ModelInfo{
	"gpt-4o": {
		ID:            "gpt-4o",
		Name:          "GPT-4o",
		Provider:      "OpenAI",
		ContextLength: 128000,
		Description:   "Fast multimodal model",
	},
	"gpt-4o-mini": {
		ID:            "gpt-4o-mini",
		Name:          "GPT-4o Mini",
		Provider:      "OpenAI",
		ContextLength: 128000,
		Description:   "Cost-effective for simple tasks",
	},
	"claude-sonnet": {
		ID:            "claude-3-5-sonnet-20241022",
		Name:          "Claude 3.5 Sonnet",
		Provider:      "Anthropic",
		ContextLength: 200000,
		Description:   "Best balance of speed and capability",
	},
	"claude-haiku": {
		ID:            "claude-3-haiku-20240307",
		Name:          "Claude 3 Haiku",
		Provider:      "Anthropic",
		ContextLength: 200000,
		Description:   "Fast and efficient for simple tasks",
	},
	"llama-3.1-70b": {
		ID:            "llama-3.1-70b",
		Name:          "Llama 3.1 70B",
		Provider:      "Meta",
		ContextLength: 128000,
		Description:   "Open-weights general purpose",
	},
	"mistral-large": {
		ID:            "mistral-large",
		Name:          "Mistral Large",
		Provider:      "Mistral",
		ContextLength: 32768,
		Description:   "Strong multilingual reasoning",
	},
}

// =============================================================================
// MODEL INFO METHODS
// =============================================================================

// ContextString returns a formatted context window string.
func (m ModelInfo) ContextString() string {
	if m.ContextLength >= 1000000 {
		return fmt.Sprintf("%.1fM tokens", float64(m.ContextLength)/1000000)
	}
	if m.ContextLength >= 1000 {
		return fmt.Sprintf("%dK tokens", m.ContextLength/1000)
	}
	return fmt.Sprintf("%d tokens", m.ContextLength)
}

// =============================================================================
// MODEL LOOKUP FUNCTIONS
// =============================================================================

// GetModelInfo looks up a model by short name or ID.
// Returns the ModelInfo and true if found, otherwise empty ModelInfo and false.
func GetModelInfo(nameOrID string) (ModelInfo, bool) {
	if info, ok := Models[nameOrID]; ok {
		return info, true
	}

	for _, info := range Models {
		if info.ID == nameOrID {
			return info, true
		}
	}

	lowerName := strings.ToLower(nameOrID)
	for _, info := range Models {
		if strings.Contains(strings.ToLower(info.Name), lowerName) ||
			strings.Contains(strings.ToLower(info.ID), lowerName) {
			return info, true
		}
	}

	return ModelInfo{}, false
}

// ContextLengthFor returns the context window for a model, falling back
// to DefaultContextLength when the catalog does not know it.
func ContextLengthFor(nameOrID string) int {
	if info, ok := GetModelInfo(nameOrID); ok {
		return info.ContextLength
	}
	return DefaultContextLength
}

// GetModelsByProvider returns all models from a specific provider.
func GetModelsByProvider(provider string) []ModelInfo {
	result := []ModelInfo{}
	lowerProvider := strings.ToLower(provider)

	for _, info := range Models {
		if strings.ToLower(info.Provider) == lowerProvider {
			result = append(result, info)
		}
	}

	return result
}

// ModelShortNames returns a sorted slice of all model short names.
func ModelShortNames() []string {
	names := make([]string, 0, len(Models))
	for name := range Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
