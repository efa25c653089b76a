package router

import (
	"context"
	"time"

	"github.com/BaSui01/agentflow-router/intent"
	"github.com/BaSui01/agentflow-router/policy"
)

// Reason is the closed set of explanations a RoutingDecision may carry.
type Reason string

const (
	ReasonExplicitOverride     Reason = "explicit_override"
	ReasonHeavyLength          Reason = "heavy_length"
	ReasonKeyword              Reason = "keyword"
	ReasonHeavyIntent          Reason = "heavy_intent"
	ReasonAttachments          Reason = "attachments"
	ReasonLongContext          Reason = "long_context"
	ReasonOpsSimple            Reason = "ops_simple"
	ReasonOpsComplex           Reason = "ops_complex"
	ReasonLightDefault         Reason = "light_default"
	ReasonFallbackPrimaryHealth   Reason = "fallback_primary_health"
	ReasonFallbackSecondaryHealth Reason = "fallback_secondary_health"
	ReasonCacheHit             Reason = "cache_hit"
)

// RoutingDecision is immutable once produced. A fallback decision is a
// distinct value with AllowFallback=false to prevent recursive fallback.
type RoutingDecision struct {
	Vendor        policy.Vendor
	Model         string
	Reason        Reason
	KeywordHit    string
	Stream        bool
	AllowFallback bool
	RequestID     string
}

// Shape is how the entrypoint normalized the inbound payload.
type Shape string

const (
	ShapeText   Shape = "text"
	ShapeChat   Shape = "chat"
	ShapeNested Shape = "nested"
)

// RequestContext is created at entry and lives until response completion.
// It is passed by pointer so the cancellation handle and budget remain
// shared across the vendor call, the streaming writer, and the post-call
// pipeline.
type RequestContext struct {
	RequestID      string
	UserID         string // "anon" if unauthenticated
	Scopes         map[string]struct{}
	StartMonotonic time.Time
	BudgetMS       int
	Intent         intent.Intent
	TokensEst      int
	Shape          Shape
	NormalizedFrom string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRequestContext creates a context bound to parent, applying the wall
// budget as a deadline. Both client disconnect (via parent cancellation)
// and the deadline cancel the same handle, per the concurrency model.
func NewRequestContext(parent context.Context, requestID, userID string, budgetMS int) *RequestContext {
	deadline := time.Duration(budgetMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(parent, deadline)
	return &RequestContext{
		RequestID:      requestID,
		UserID:         userID,
		Scopes:         map[string]struct{}{},
		StartMonotonic: time.Now(),
		BudgetMS:       budgetMS,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Context returns the cancellation-bearing context.Context for this request.
func (r *RequestContext) Context() context.Context { return r.ctx }

// Cancel releases resources associated with the request's context. Safe to
// call multiple times.
func (r *RequestContext) Cancel() { r.cancel() }

// HasScope reports whether the identity collaborator granted scope.
func (r *RequestContext) HasScope(scope string) bool {
	_, ok := r.Scopes[scope]
	return ok
}

// IsAnonymous reports whether no identity was resolved for this request.
func (r *RequestContext) IsAnonymous() bool { return r.UserID == "" || r.UserID == "anon" }
