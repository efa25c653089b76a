// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package intent classifies a prompt into a fixed, deterministic intent
// enum used by the Model Picker's heuristic cascade.
package intent

import "strings"

// Intent is one value from the fixed classification set.
type Intent string

const (
	Chat       Intent = "chat"
	Smalltalk  Intent = "smalltalk"
	Search     Intent = "search"
	Recall     Intent = "recall"
	Code       Intent = "code"
	Analysis   Intent = "analysis"
	Research   Intent = "research"
	Ops        Intent = "ops"
)

// Priority mirrors the relative urgency of the intent, independent of the
// heavy/light model tier decided by the Picker.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Heavy reports whether the intent is in the closed heavy-intent set. The
// set is deliberately fixed at {analysis, research} per spec; other
// intents are classified but never treated as heavy.
func (i Intent) Heavy() bool {
	return i == Analysis || i == Research
}

var smalltalkCues = []string{"hi", "hello", "hey", "how are you", "good morning", "good night", "thanks", "thank you"}
var codeCues = []string{"func ", "def ", "class ", "```", "compile", "stack trace", "exception", "segfault", "regex"}
var analysisCues = []string{"analyze", "analysis", "compare", "evaluate", "pros and cons", "trade-off", "tradeoff"}
var researchCues = []string{"research", "literature", "survey", "state of the art", "cite", "citation"}
var opsCues = []string{"deploy", "kubectl", "terraform", "ci/cd", "pipeline", "rollback", "provision", "infrastructure"}
var searchCues = []string{"find", "search", "look up", "where is", "latest news"}
var recallCues = []string{"remember", "recall", "earlier you said", "previous conversation", "what did i say"}

// Classify deterministically assigns an intent and priority to a prompt.
// Matching proceeds over a fixed, ordered cue table; the first match wins.
// Intentionally simple and keyword-based rather than model-backed, since
// routing only needs determinism and a fixed heavy-intent set.
func Classify(prompt string) (Intent, Priority) {
	p := strings.ToLower(prompt)

	switch {
	case len(strings.Fields(p)) <= 3 && containsAny(p, smalltalkCues):
		return Smalltalk, PriorityNormal
	case containsAny(p, codeCues):
		return Code, PriorityNormal
	case containsAny(p, analysisCues):
		return Analysis, PriorityHigh
	case containsAny(p, researchCues):
		return Research, PriorityHigh
	case containsAny(p, opsCues):
		return Ops, PriorityNormal
	case containsAny(p, recallCues):
		return Recall, PriorityNormal
	case containsAny(p, searchCues):
		return Search, PriorityNormal
	default:
		return Chat, PriorityNormal
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// KeywordHit returns the first case-insensitive substring match of keywords
// in prompt, or ("", false) if none match.
func KeywordHit(prompt string, keywords []string) (string, bool) {
	p := strings.ToLower(prompt)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(p, strings.ToLower(k)) {
			return k, true
		}
	}
	return "", false
}
