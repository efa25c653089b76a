package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/agentflow-router/intent"
)

func TestScore_ShortHedgedAnswerScoresLow(t *testing.T) {
	low := Score("I'm not sure.", intent.Analysis, nil)
	high := Score(
		"Because the two designs trade off latency against consistency, first, we measure p99 latency, "+
			"second, we measure staleness under partition, therefore the quorum design wins for this workload. "+
			"This means the migration should proceed in two phases to de-risk rollout across regions and teams today.",
		intent.Analysis, nil)
	assert.Less(t, low, high)
}

func TestShouldEscalate_AtMostOnceAndQuotaGated(t *testing.T) {
	assert.True(t, ShouldEscalate(0.1, 0.4, 1, false, false))
	assert.False(t, ShouldEscalate(0.1, 0.4, 1, false, true), "must not escalate twice")
	assert.False(t, ShouldEscalate(0.1, 0.4, 1, true, false), "must not escalate under quota pressure")
	assert.False(t, ShouldEscalate(0.1, 0.4, 0, false, false), "must not escalate when retries disabled")
	assert.False(t, ShouldEscalate(0.9, 0.4, 1, false, false), "must not escalate a good score")
}
