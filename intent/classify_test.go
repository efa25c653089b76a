package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_HeavySetIsFixed(t *testing.T) {
	i, _ := Classify("please analyze the trade-off between these two designs")
	assert.Equal(t, Analysis, i)
	assert.True(t, i.Heavy())

	i, _ = Classify("do a literature survey on transformer architectures")
	assert.Equal(t, Research, i)
	assert.True(t, i.Heavy())

	i, _ = Classify("hi there")
	assert.False(t, i.Heavy())
}

func TestClassify_Deterministic(t *testing.T) {
	prompt := "kubectl rollout restart deployment web"
	i1, p1 := Classify(prompt)
	i2, p2 := Classify(prompt)
	assert.Equal(t, i1, i2)
	assert.Equal(t, p1, p2)
	assert.Equal(t, Ops, i1)
}

func TestKeywordHit(t *testing.T) {
	hit, ok := KeywordHit("please write some SQL for this", []string{"code", "sql", "vector"})
	assert.True(t, ok)
	assert.Equal(t, "sql", hit)

	_, ok = KeywordHit("what's the weather", []string{"code", "sql"})
	assert.False(t, ok)
}
