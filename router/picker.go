package router

import (
	"strings"

	"github.com/BaSui01/agentflow-router/intent"
	"github.com/BaSui01/agentflow-router/policy"
)

// PickInput bundles everything the Picker's ordered rule cascade needs.
type PickInput struct {
	Prompt          string
	Intent          intent.Intent
	Tokens          int
	Override        string
	HasAttachments  bool
	RetrievedTokens int
	RetrievedChars  int
	OpsFilesCount   int
	AllowFallback   bool
	RequestID       string
	Stream          bool
}

// Picker selects (vendor, model, reason) deterministically from prompt
// features, overrides, and health, per the ordered rule list: override
// first, then heuristics in a fixed order, then a final health-driven
// fallback swap.
type Picker struct {
	Rules  policy.Rules
	Health *HealthMonitor
}

// Pick implements the three numbered rule groups verbatim.
func (p *Picker) Pick(in PickInput) (RoutingDecision, error) {
	rules := p.Rules

	// 1. Explicit override.
	if in.Override != "" {
		vendor, known := policy.InferVendor(in.Override)
		if !known {
			return RoutingDecision{}, NewError(ErrModelNotAllowed, "override model has no known vendor").WithRetryable(false)
		}
		if rules.ValidateModel(vendor, in.Override) != policy.ValidationOK {
			return RoutingDecision{}, NewError(ErrModelNotAllowed, "override model not in allow-list").WithRetryable(false)
		}
		if !p.Health.IsHealthy(vendor) {
			fallbackVendor := opposite(vendor)
			model := p.defaultModelFor(fallbackVendor)
			if rules.ValidateModel(fallbackVendor, model) != policy.ValidationOK {
				return RoutingDecision{}, NewError(ErrModelNotAllowed, "fallback default model not allowed").WithRetryable(false)
			}
			return RoutingDecision{
				Vendor: fallbackVendor, Model: model,
				Reason: fallbackReason(vendor), Stream: in.Stream,
				AllowFallback: false, RequestID: in.RequestID,
			}, nil
		}
		return RoutingDecision{
			Vendor: vendor, Model: in.Override, Reason: ReasonExplicitOverride,
			Stream: in.Stream, AllowFallback: in.AllowFallback, RequestID: in.RequestID,
		}, nil
	}

	// 2. Heuristics, in order; first match wins.
	decision := p.heuristic(in, rules)

	// 3. Final health-driven fallback swap.
	if !p.Health.IsHealthy(decision.Vendor) {
		if !in.AllowFallback {
			return RoutingDecision{}, NewError(ErrVendorUnavailable, "chosen vendor unhealthy, fallback disallowed").WithRetryable(true)
		}
		fallbackVendor := opposite(decision.Vendor)
		if !p.Health.IsHealthy(fallbackVendor) {
			return RoutingDecision{}, NewError(ErrAllVendorsUnavailable, "both vendors unhealthy").WithRetryable(true)
		}
		model := p.defaultModelFor(fallbackVendor)
		decision = RoutingDecision{
			Vendor: fallbackVendor, Model: model,
			Reason: fallbackReason(decision.Vendor), Stream: in.Stream,
			AllowFallback: false, RequestID: in.RequestID,
		}
	}

	return decision, nil
}

func (p *Picker) heuristic(in PickInput, rules policy.Rules) RoutingDecision {
	words := len(strings.Fields(in.Prompt))

	base := RoutingDecision{Stream: in.Stream, AllowFallback: in.AllowFallback, RequestID: in.RequestID}

	switch {
	case words > rules.HeavyWordCount || in.Tokens > rules.HeavyTokens:
		base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryHeavyModel, ReasonHeavyLength

	case func() bool {
		if hit, ok := intent.KeywordHit(in.Prompt, rules.Keywords); ok {
			base.KeywordHit = hit
			return true
		}
		return false
	}():
		base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryHeavyModel, ReasonKeyword

	case in.Intent.Heavy():
		base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryHeavyModel, ReasonHeavyIntent

	case in.HasAttachments:
		base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryMidModel, ReasonAttachments

	case in.RetrievedTokens > rules.RAGLongContextTokens || in.RetrievedChars > rules.RAGLongContextChars:
		base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryMidModel, ReasonLongContext

	case in.Intent == intent.Ops:
		if in.OpsFilesCount <= rules.OpsMaxFilesSimple {
			base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryBaselineModel, ReasonOpsSimple
		} else {
			base.Vendor, base.Model, base.Reason = policy.VendorPrimary, rules.PrimaryMidModel, ReasonOpsComplex
		}

	default:
		base.Vendor, base.Model, base.Reason = policy.VendorSecondary, rules.SecondaryBaselineModel, ReasonLightDefault
	}

	return base
}

func (p *Picker) defaultModelFor(vendor policy.Vendor) string {
	if vendor == policy.VendorPrimary {
		return p.Rules.PrimaryBaselineModel
	}
	return p.Rules.SecondaryBaselineModel
}

func opposite(v policy.Vendor) policy.Vendor {
	if v == policy.VendorPrimary {
		return policy.VendorSecondary
	}
	return policy.VendorPrimary
}

func fallbackReason(from policy.Vendor) Reason {
	if from == policy.VendorPrimary {
		return ReasonFallbackPrimaryHealth
	}
	return ReasonFallbackSecondaryHealth
}
