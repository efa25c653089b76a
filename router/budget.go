package router

import (
	"context"
	"time"
)

// RemainingBudget returns max(0, ROUTER_BUDGET_MS - elapsed_ms(start)).
func RemainingBudget(start time.Time, budgetMS int) time.Duration {
	elapsed := time.Since(start)
	remaining := time.Duration(budgetMS)*time.Millisecond - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeoutSeconds returns max(0.1, RemainingBudget/1000) in seconds, the
// floor guaranteeing adapters always get a minimal window to fail fast
// rather than being handed a zero or negative deadline.
func TimeoutSeconds(start time.Time, budgetMS int) float64 {
	remaining := RemainingBudget(start, budgetMS).Seconds()
	if remaining < 0.1 {
		return 0.1
	}
	return remaining
}

// AdapterDeadline derives ctx with a deadline of now + min(vendorTimeoutMS,
// remaining budget), so every adapter call's deadline never exceeds the
// remaining request budget at the call site.
func AdapterDeadline(ctx context.Context, start time.Time, budgetMS, vendorTimeoutMS int) (context.Context, context.CancelFunc) {
	remaining := RemainingBudget(start, budgetMS)
	vendorTimeout := time.Duration(vendorTimeoutMS) * time.Millisecond
	window := remaining
	if vendorTimeout < window {
		window = vendorTimeout
	}
	return context.WithTimeout(ctx, window)
}
