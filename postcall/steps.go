package postcall

import "context"

// HistoryWriter persists the turn for later replay/inspection.
type HistoryWriter interface {
	WriteTurn(ctx context.Context, d Data) error
}

// AnalyticsSink records routing/outcome counters.
type AnalyticsSink interface {
	RecordOutcome(ctx context.Context, d Data) error
}

// MemoryExtractor derives durable facts from a completed turn.
type MemoryExtractor interface {
	Extract(ctx context.Context, d Data) error
}

// ClaimLogger records factual claims made in the response for later audit.
type ClaimLogger interface {
	LogClaims(ctx context.Context, d Data) error
}

// BuildSteps assembles the four standard post-call steps in the order
// they're described: history and analytics always run (even on client
// cancellation), memory and claims are skipped when the client
// disconnected before the call finished. Cache write-through is no
// longer one of these steps -- it happens inline in Cache.Fill during
// the call itself, so a concurrent identical miss can coalesce onto it.
func BuildSteps(history HistoryWriter, analytics AnalyticsSink, memory MemoryExtractor, claims ClaimLogger) []Step {
	return []Step{
		{
			Name:      "history",
			AlwaysRun: true,
			Run: func(ctx context.Context, d Data) error {
				if history == nil {
					return nil
				}
				return history.WriteTurn(ctx, d)
			},
		},
		{
			Name:      "analytics",
			AlwaysRun: true,
			Run: func(ctx context.Context, d Data) error {
				if analytics == nil {
					return nil
				}
				return analytics.RecordOutcome(ctx, d)
			},
		},
		{
			Name:      "memory",
			AlwaysRun: false,
			Run: func(ctx context.Context, d Data) error {
				if memory == nil || d.Err != nil {
					return nil
				}
				return memory.Extract(ctx, d)
			},
		},
		{
			Name:      "claims",
			AlwaysRun: false,
			Run: func(ctx context.Context, d Data) error {
				if claims == nil || d.Err != nil {
					return nil
				}
				return claims.LogClaims(ctx, d)
			},
		},
	}
}
