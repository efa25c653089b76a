package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_SpaceContaining(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 3, e.CountTokens("one two three"))
	assert.Equal(t, 0, e.CountTokens(""))
}

func TestEstimator_NoSpaceFallsBackToCharFloor(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 3, e.CountTokens("abcdefghij")) // ceil(10/4)=3
}

func TestEstimator_MonotoneInConcatenation(t *testing.T) {
	e := NewEstimator()
	a := "the quick brown fox"
	b := "jumps over the lazy dog repeatedly and again"
	ca, cb, cab := e.CountTokens(a), e.CountTokens(b), e.CountTokens(a+" "+b)
	assert.GreaterOrEqual(t, cab, ca)
	assert.GreaterOrEqual(t, cab, cb)
}

func TestEstimator_NeverUndercounts(t *testing.T) {
	e := NewEstimator()
	for _, text := range []string{"a b c d", "hello", strings.Repeat("x", 37)} {
		got := e.CountTokens(text)
		assert.GreaterOrEqual(t, got, 1)
	}
}
