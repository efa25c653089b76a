package router

import (
	"strings"

	"github.com/BaSui01/agentflow-router/intent"
)

var reasoningCues = []string{"because", "therefore", "first,", "second,", "in conclusion", "step 1", "this means"}
var hedgeCues = []string{"i'm not sure", "i am not sure", "i don't know", "cannot determine", "as an ai"}

// targetLength is the rough expected response length (in words) per
// intent, used as one input to the deterministic self-check score.
func targetLength(i intent.Intent) int {
	switch i {
	case intent.Analysis, intent.Research:
		return 220
	case intent.Code:
		return 120
	case intent.Smalltalk:
		return 15
	default:
		return 60
	}
}

// Score computes a bounded [0,1] quality proxy from response length versus
// an intent-dependent target, token overlap against retrieved docs (a
// groundedness proxy), and the presence of reasoning cues. Short or hedged
// answers score low.
func Score(response string, i intent.Intent, retrievedDocs []string) float64 {
	words := len(strings.Fields(response))
	target := targetLength(i)

	lengthScore := float64(words) / float64(target)
	if lengthScore > 1 {
		lengthScore = 1
	}

	groundedness := overlapScore(response, retrievedDocs)

	reasoningScore := 0.0
	lower := strings.ToLower(response)
	for _, cue := range reasoningCues {
		if strings.Contains(lower, cue) {
			reasoningScore = 1.0
			break
		}
	}

	score := 0.5*lengthScore + 0.3*groundedness + 0.2*reasoningScore

	for _, cue := range hedgeCues {
		if strings.Contains(lower, cue) {
			score *= 0.5
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// overlapScore is a cheap bag-of-words Jaccard-style proxy for groundedness
// against retrieved context; it returns 1.0 (neutral) when there are no
// retrieved docs to compare against, since absence of RAG context should
// not itself penalize the score.
func overlapScore(response string, docs []string) float64 {
	if len(docs) == 0 {
		return 1.0
	}
	respWords := wordSet(response)
	if len(respWords) == 0 {
		return 0
	}
	docWords := map[string]struct{}{}
	for _, d := range docs {
		for w := range wordSet(d) {
			docWords[w] = struct{}{}
		}
	}
	hit := 0
	for w := range respWords {
		if _, ok := docWords[w]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(respWords))
}

func wordSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

// ShouldEscalate reports whether a response should be escalated to a
// stronger model: at most once, gated on budget pressure, and never
// when quota has been breached.
func ShouldEscalate(score, failThreshold float64, maxRetries int, quotaBreached, alreadyEscalated bool) bool {
	if alreadyEscalated || quotaBreached || maxRetries <= 0 {
		return false
	}
	return score < failThreshold
}
