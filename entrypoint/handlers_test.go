package entrypoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-router/intent"
	"github.com/BaSui01/agentflow-router/policy"
	"github.com/BaSui01/agentflow-router/router"
	"github.com/BaSui01/agentflow-router/semcache"
	"github.com/BaSui01/agentflow-router/trace"
	"github.com/BaSui01/agentflow-router/vendor"
)

type fakeAdapter struct {
	name     string
	response vendor.Response
	err      error
	calls    int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Call(ctx context.Context, req vendor.Request) (vendor.Response, error) {
	f.calls++
	return f.response, f.err
}

func baseRules() policy.Rules {
	return policy.Rules{
		PrimaryHeavyModel:      "gpt-4o",
		PrimaryMidModel:        "gpt-4o-mini",
		PrimaryBaselineModel:   "gpt-4o-mini",
		SecondaryBaselineModel: "local-7b",
		RouterBudgetMS:         5000,
		PrimaryTimeoutMS:       4000,
		SecondaryTimeoutMS:     4000,
		SelfCheckFailThreshold: 0.6,
		MaxRetriesPerRequest:   1,
	}
}

func TestMaybeEscalate_SkipsWhenScoreAboveThreshold(t *testing.T) {
	h := &Handler{Adapters: map[policy.Vendor]vendor.Adapter{}}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}
	rec := &trace.Record{}

	longConfidentText := "This is a long, well-reasoned answer. Therefore it should score well above the escalation threshold because it covers the topic in depth, step 1 being context, step 2 being analysis, and step 3 being a conclusion that resolves the question the user asked, with concrete detail throughout."

	text, out := h.maybeEscalate(context.Background(), baseRules(), decision, Normalized{}, intent.Chat, longConfidentText, time.Now(), rec)

	assert.Equal(t, longConfidentText, text)
	assert.Equal(t, decision, out)
	require.NotNil(t, rec.SelfCheckScore)
	require.NotNil(t, rec.Escalated)
	assert.False(t, *rec.Escalated)
}

func TestMaybeEscalate_EscalatesOnLowScore(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", response: vendor.Response{Text: "stronger model answer"}}
	h := &Handler{Adapters: map[policy.Vendor]vendor.Adapter{policy.VendorPrimary: adapter}}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}
	rec := &trace.Record{}

	text, out := h.maybeEscalate(context.Background(), baseRules(), decision, Normalized{}, intent.Analysis, "too short", time.Now(), rec)

	assert.Equal(t, "stronger model answer", text)
	assert.Equal(t, "gpt-4o", out.Model)
	assert.Equal(t, 1, adapter.calls)
	require.NotNil(t, rec.Escalated)
	assert.True(t, *rec.Escalated)
	assert.Equal(t, "gpt-4o", rec.FinalModel)
}

func TestMaybeEscalate_NoStrongerModelAvailable(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", response: vendor.Response{Text: "stronger model answer"}}
	h := &Handler{Adapters: map[policy.Vendor]vendor.Adapter{policy.VendorPrimary: adapter}}
	rules := baseRules()
	rules.PrimaryHeavyModel = "gpt-4o-mini"
	rules.PrimaryMidModel = "gpt-4o-mini"
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}
	rec := &trace.Record{}

	text, out := h.maybeEscalate(context.Background(), rules, decision, Normalized{}, intent.Analysis, "too short", time.Now(), rec)

	assert.Equal(t, "too short", text)
	assert.Equal(t, decision, out)
	assert.Equal(t, 0, adapter.calls)
}

func TestMaybeEscalate_AdapterErrorKeepsOriginal(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", err: assert.AnError}
	h := &Handler{Adapters: map[policy.Vendor]vendor.Adapter{policy.VendorPrimary: adapter}}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}
	rec := &trace.Record{}

	text, out := h.maybeEscalate(context.Background(), baseRules(), decision, Normalized{}, intent.Analysis, "too short", time.Now(), rec)

	assert.Equal(t, "too short", text)
	assert.Equal(t, decision, out)
	assert.False(t, *rec.Escalated)
}

func TestApplyBreakerFallback_SwapsToHealthySecondary(t *testing.T) {
	h := &Handler{Global: router.NewGlobalBreaker(1, time.Minute)}
	rules := baseRules()
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini", AllowFallback: true}

	out, err := h.applyBreakerFallback(decision, rules)

	require.NoError(t, err)
	assert.Equal(t, policy.VendorSecondary, out.Vendor)
	assert.Equal(t, "local-7b", out.Model)
	assert.False(t, out.AllowFallback)
	assert.Equal(t, router.ReasonFallbackPrimaryHealth, out.Reason)
}

func TestApplyBreakerFallback_FailsWhenFallbackDisallowed(t *testing.T) {
	h := &Handler{Global: router.NewGlobalBreaker(1, time.Minute)}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, AllowFallback: false}

	_, err := h.applyBreakerFallback(decision, baseRules())

	require.Error(t, err)
	assert.Equal(t, router.ErrVendorUnavailable, router.CodeOf(err))
}

func TestApplyBreakerFallback_FailsWhenBothBreakersOpen(t *testing.T) {
	global := router.NewGlobalBreaker(1, time.Minute)
	global.RecordFailure(policy.VendorSecondary)
	h := &Handler{Global: global}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, AllowFallback: true}

	_, err := h.applyBreakerFallback(decision, baseRules())

	require.Error(t, err)
	assert.Equal(t, router.ErrAllVendorsUnavailable, router.CodeOf(err))
}

func TestRecordBreakerState_NilMetricsIsNoop(t *testing.T) {
	h := &Handler{Global: router.NewGlobalBreaker(1, time.Minute)}
	assert.NotPanics(t, func() { h.recordBreakerState(policy.VendorPrimary) })
}

func TestVendorTimeoutMS(t *testing.T) {
	rules := baseRules()
	rules.PrimaryTimeoutMS = 1234
	rules.SecondaryTimeoutMS = 5678

	assert.Equal(t, 1234, vendorTimeoutMS(rules, policy.VendorPrimary))
	assert.Equal(t, 5678, vendorTimeoutMS(rules, policy.VendorSecondary))
}

func TestTriggersFallback(t *testing.T) {
	assert.True(t, triggersFallback(router.NewError(router.ErrTimeout, "x")))
	assert.True(t, triggersFallback(router.NewError(router.ErrDownstreamError, "x")))
	assert.True(t, triggersFallback(router.NewError(router.ErrVendorUnavailable, "x")))
	assert.False(t, triggersFallback(router.NewError(router.ErrAuthError, "x")))
	assert.False(t, triggersFallback(router.NewError(router.ErrRateLimited, "x")))
	assert.False(t, triggersFallback(router.NewError(router.ErrInvalidRequest, "x")))
}

func TestAttemptCallFallback_SwapsVendorOnTransientFailure(t *testing.T) {
	secondary := &fakeAdapter{name: "secondary", response: vendor.Response{Text: "fallback answer"}}
	h := &Handler{
		Global:   router.NewGlobalBreaker(5, time.Minute),
		Users:    router.NewUserBreaker(5, time.Minute),
		Health:   router.NewHealthMonitor(zap.NewNop()),
		Adapters: map[policy.Vendor]vendor.Adapter{policy.VendorSecondary: secondary},
	}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini", AllowFallback: true}
	rec := &trace.Record{}

	out, text, err, attempted := h.attemptCallFallback(context.Background(), time.Now(), baseRules(), decision, Normalized{}, router.NewError(router.ErrTimeout, "slow"), nil, rec)

	require.True(t, attempted)
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", text)
	assert.Equal(t, policy.VendorSecondary, out.Vendor)
	assert.Equal(t, "local-7b", out.Model)
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, router.ReasonFallbackSecondaryHealth, out.Reason)
	assert.Equal(t, "fallback_secondary_health", rec.FallbackReason)
}

func TestAttemptCallFallback_NotAttemptedForNonFallbackCategory(t *testing.T) {
	h := &Handler{Global: router.NewGlobalBreaker(5, time.Minute)}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, AllowFallback: true}
	rec := &trace.Record{}

	_, _, _, attempted := h.attemptCallFallback(context.Background(), time.Now(), baseRules(), decision, Normalized{}, router.NewError(router.ErrAuthError, "bad key"), nil, rec)

	assert.False(t, attempted)
}

func TestAttemptCallFallback_NotAttemptedWhenDisallowed(t *testing.T) {
	h := &Handler{Global: router.NewGlobalBreaker(5, time.Minute)}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, AllowFallback: false}
	rec := &trace.Record{}

	_, _, _, attempted := h.attemptCallFallback(context.Background(), time.Now(), baseRules(), decision, Normalized{}, router.NewError(router.ErrTimeout, "slow"), nil, rec)

	assert.False(t, attempted)
}

func TestAttemptCallFallback_NotAttemptedWhenFallbackBreakerOpen(t *testing.T) {
	global := router.NewGlobalBreaker(1, time.Minute)
	global.RecordFailure(policy.VendorSecondary)
	h := &Handler{Global: global}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, AllowFallback: true}
	rec := &trace.Record{}

	_, _, _, attempted := h.attemptCallFallback(context.Background(), time.Now(), baseRules(), decision, Normalized{}, router.NewError(router.ErrTimeout, "slow"), nil, rec)

	assert.False(t, attempted)
}

func newTestCache(t *testing.T) *semcache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return semcache.New(semcache.DefaultConfig(), client, zap.NewNop())
}

func TestResolveResponse_CacheMissInvokesAdapterAndFillsCache(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", response: vendor.Response{Text: "fresh answer"}}
	cache := newTestCache(t)
	h := &Handler{Cache: cache}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}

	text, wasHit, err := h.resolveResponse(context.Background(), context.Background(), adapter, decision, Normalized{Prompt: "hi"}, "cache-key", nil)

	require.NoError(t, err)
	assert.False(t, wasHit)
	assert.Equal(t, "fresh answer", text)
	assert.Equal(t, 1, adapter.calls)

	entry, getErr := cache.Get(context.Background(), "cache-key")
	require.NoError(t, getErr)
	assert.Equal(t, "fresh answer", entry.Text)
}

func TestResolveResponse_CacheHitSkipsAdapter(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", response: vendor.Response{Text: "should not be called"}}
	cache := newTestCache(t)
	require.NoError(t, cache.Set(context.Background(), "cache-key", semcache.Entry{Text: "cached answer"}))
	h := &Handler{Cache: cache}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}

	text, wasHit, err := h.resolveResponse(context.Background(), context.Background(), adapter, decision, Normalized{Prompt: "hi"}, "cache-key", nil)

	require.NoError(t, err)
	assert.True(t, wasHit)
	assert.Equal(t, "cached answer", text)
	assert.Equal(t, 0, adapter.calls)
}

func TestResolveResponse_NoCacheAlwaysCallsAdapter(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", response: vendor.Response{Text: "direct answer"}}
	h := &Handler{}
	decision := router.RoutingDecision{Vendor: policy.VendorPrimary, Model: "gpt-4o-mini"}

	text, wasHit, err := h.resolveResponse(context.Background(), context.Background(), adapter, decision, Normalized{Prompt: "hi"}, "cache-key", nil)

	require.NoError(t, err)
	assert.False(t, wasHit)
	assert.Equal(t, "direct answer", text)
	assert.Equal(t, 1, adapter.calls)
}
