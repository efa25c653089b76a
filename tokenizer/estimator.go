// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package tokenizer counts tokens for routing decisions. The default
// Estimator is a fast, deterministic approximation; Tiktoken wraps an exact
// BPE count for callers that opt into it.
package tokenizer

import (
	"math"
	"strings"
)

// Counter counts tokens in a prompt. Implementations must never undercount
// relative to the approximate floors used for routing thresholds.
type Counter interface {
	CountTokens(text string) int
}

// Estimator implements the approximate word/char-based floor formula: for
// space-containing text, max(word_count, ceil(0.75*words)); for text with
// no whitespace, ceil(len/4).
type Estimator struct{}

// NewEstimator returns the default approximate token counter.
func NewEstimator() Estimator { return Estimator{} }

// CountTokens implements Counter.
func (Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if strings.ContainsAny(text, " \t\n\r") {
		words := len(strings.Fields(text))
		byWords := words
		byRatio := int(math.Ceil(0.75 * float64(words)))
		if byRatio > byWords {
			return byRatio
		}
		return byWords
	}
	return int(math.Ceil(float64(len([]rune(text))) / 4.0))
}

// CountMessages counts tokens across a chat-shaped conversation, adding the
// small per-message and per-conversation overhead that most chat APIs
// charge for role framing.
func CountMessages(c Counter, contents []string) int {
	total := 0
	for _, content := range contents {
		total += c.CountTokens(content) + 4
	}
	if len(contents) > 0 {
		total += 3
	}
	return total
}
