// Package semcache implements the semantic response cache: stable cache-id
// construction, a two-level local-LRU + Redis store, and singleflight
// coalescing so concurrent requests for the same key fill the cache at
// most once.
package semcache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizePrompt folds case and collapses whitespace runs so that prompts
// differing only in casing or incidental spacing hash identically.
func NormalizePrompt(prompt string) string {
	folded := strings.ToLower(strings.TrimSpace(prompt))
	return whitespaceRun.ReplaceAllString(folded, " ")
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CacheID builds the stable cache identifier: v1|model|hash(normalized
// prompt)|sorted(hash(doc) for each retrieved doc). Hashing each document
// independently and sorting the resulting hashes before joining makes the
// id invariant to document reordering, while still depending on the exact
// document set.
func CacheID(model, prompt string, docs []string) string {
	promptHash := hashString(NormalizePrompt(prompt))

	docHashes := make([]string, len(docs))
	for i, d := range docs {
		docHashes[i] = hashString(NormalizePrompt(d))
	}
	sort.Strings(docHashes)

	parts := []string{"v1", model, promptHash}
	parts = append(parts, docHashes...)
	return strings.Join(parts, "|")
}
