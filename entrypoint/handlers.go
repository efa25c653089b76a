package entrypoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow-router/intent"
	"github.com/BaSui01/agentflow-router/internal/metrics"
	"github.com/BaSui01/agentflow-router/policy"
	"github.com/BaSui01/agentflow-router/postcall"
	"github.com/BaSui01/agentflow-router/router"
	"github.com/BaSui01/agentflow-router/semcache"
	"github.com/BaSui01/agentflow-router/tokenizer"
	"github.com/BaSui01/agentflow-router/trace"
	"github.com/BaSui01/agentflow-router/vendor"
)

// Handler wires every routing collaborator into the HTTP surface.
type Handler struct {
	Rules    *policy.Manager
	Health   *router.HealthMonitor
	Global   *router.GlobalBreaker
	Users    *router.UserBreaker
	Counter  tokenizer.Counter
	Adapters map[policy.Vendor]vendor.Adapter
	Cache    *semcache.Cache
	Steps    []postcall.Step
	Store    trace.Store
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}

// RegisterRoutes mounts the router's HTTP surface onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /ask", h.handleAsk)
	mux.HandleFunc("POST /ask/dry-explain", h.handleDryExplain)
	mux.HandleFunc("POST /ask/stream", h.handleAskStream)
	mux.HandleFunc("GET /ask/replay/{rid}", h.handleReplay)
}

func writeError(w http.ResponseWriter, err error) {
	code := router.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": string(code), "message": err.Error()},
	})
}

func gateContentType(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return router.NewError(router.ErrUnsupportedMediaType, "only application/json bodies are accepted")
	}
	return nil
}

// handleAsk implements the aggregate (non-streaming) path.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false, false)
}

func (h *Handler) handleDryExplain(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false, true)
}

func (h *Handler) handleAskStream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true, false)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, forceStream bool, dryRun bool) {
	requestID := RequestIDFromContext(r.Context())
	start := time.Now()
	rec := trace.Record{RequestID: requestID, Path: r.URL.Path}
	clientCancelled := false
	emitter := trace.NewEmitter(h.Store, nil)

	defer func() {
		rec.LatencyMS = time.Since(start).Milliseconds()
		emitter.Emit(rec)
	}()

	if err := gateContentType(r); err != nil {
		writeError(w, err)
		rec.ChosenVendor, rec.ChosenModel = "", ""
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, router.NewError(router.ErrInvalidRequest, "failed to read request body"))
		return
	}

	n, err := NormalizeBody(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if forceStream {
		n.Stream = true
	}
	if dryRun {
		n.DryRun = true
	}

	rec.Shape = string(n.Shape)
	rec.NormalizedFrom = n.NormalizedFrom
	rec.Stream = n.Stream
	rec.DryRun = n.DryRun

	if err := SafetyPrecheck(n.Prompt); err != nil {
		writeError(w, err)
		return
	}

	userID := "anon"
	if claims, ok := IdentityFromContext(r.Context()); ok && claims.Subject != "" {
		userID = claims.Subject
	}
	rec.UserID = userID

	rules := h.Rules.RulesSnapshot()
	reqCtx := router.NewRequestContext(r.Context(), requestID, userID, rules.RouterBudgetMS)
	defer reqCtx.Cancel()

	tokensEst := tokenizer.CountMessages(h.Counter, []string{n.Prompt})
	rec.TokensEst = tokensEst
	detectedIntent, _ := intent.Classify(n.Prompt)
	rec.Intent = string(detectedIntent)

	userOpen := h.Users.IsOpen(userID)
	rec.CBUserOpen = userOpen
	if h.Metrics != nil {
		h.Metrics.SetBreakerState("user", userID, userOpen)
	}
	if userOpen {
		writeError(w, router.NewError(router.ErrVendorUnavailable, "user circuit breaker is open").WithRetryable(true))
		return
	}

	pick := router.Picker{Rules: rules, Health: h.Health}
	decision, err := pick.Pick(router.PickInput{
		Prompt: n.Prompt, Intent: detectedIntent, Tokens: tokensEst,
		Override: n.Override, HasAttachments: n.HasAttachments,
		RetrievedTokens: tokenizer.CountMessages(h.Counter, n.RetrievedDocs),
		RetrievedChars:  sumLen(n.RetrievedDocs),
		OpsFilesCount:   n.OpsFilesCount, AllowFallback: true,
		RequestID: requestID, Stream: n.Stream,
	})
	if err != nil {
		h.Users.RecordFailure(userID)
		writeError(w, err)
		return
	}
	rec.PickerReason = string(decision.Reason)
	rec.ChosenVendor = string(decision.Vendor)
	rec.ChosenModel = decision.Model
	rec.KeywordHit = decision.KeywordHit
	rec.AllowFallback = decision.AllowFallback
	rec.CBGlobalOpen = h.Global.IsOpen(decision.Vendor)
	h.recordBreakerState(decision.Vendor)

	if h.Global.IsOpen(decision.Vendor) {
		fromVendor := decision.Vendor
		decision, err = h.applyBreakerFallback(decision, rules)
		if err != nil {
			writeError(w, err)
			return
		}
		rec.PickerReason = string(decision.Reason)
		rec.ChosenVendor = string(decision.Vendor)
		rec.ChosenModel = decision.Model
		rec.FallbackReason = string(decision.Reason)
		if h.Metrics != nil {
			h.Metrics.RecordFallback(string(fromVendor), string(decision.Vendor), string(decision.Reason))
		}
	}

	cacheID := semcache.CacheID(decision.Model, n.Prompt, n.RetrievedDocs)

	if dryRun {
		h.writeDryExplain(w, decision, cacheID, tokensEst, detectedIntent)
		return
	}

	adapter := h.Adapters[decision.Vendor]
	if adapter == nil {
		writeError(w, router.NewError(router.ErrVendorUnavailable, "no adapter registered for vendor").WithVendor(string(decision.Vendor)))
		return
	}

	deadline, cancel := router.AdapterDeadline(reqCtx.Context(), start, rules.RouterBudgetMS, vendorTimeoutMS(rules, decision.Vendor))
	defer cancel()
	rec.TimeoutMS = int64(rules.RouterBudgetMS)

	var stream streamWriter
	if n.Stream {
		if forceStream {
			sw := newSSEWriter(w, decision)
			sw.writeRoute()
			stream = sw
		} else {
			stream = newPlainStreamWriter(w, requestID)
		}
	}

	callStart := time.Now()
	text, cacheHit, callErr := h.resolveResponse(reqCtx.Context(), deadline, adapter, decision, n, cacheID, stream)
	callDuration := time.Since(callStart)

	select {
	case <-r.Context().Done():
		clientCancelled = true
	default:
	}

	if cacheHit {
		if h.Metrics != nil {
			h.Metrics.RecordCacheHit("semantic")
		}
		rec.CacheHit = true
		decision.Vendor = policy.VendorCache
		decision.Reason = router.ReasonCacheHit
		rec.ChosenVendor = string(decision.Vendor)
		rec.PickerReason = string(decision.Reason)
		if stream != nil {
			stream.writeDone()
		} else {
			h.writeAggregate(w, text, decision, true)
		}
		h.runPostCall(reqCtx.Context(), n, text, decision, cacheID, userID, tokensEst, false, nil)
		return
	}
	if h.Cache != nil && callErr == nil && h.Metrics != nil {
		h.Metrics.RecordCacheMiss("semantic")
	}

	if callErr != nil {
		h.Global.RecordFailure(decision.Vendor)
		h.Users.RecordFailure(userID)
		h.Health.MarkResult(decision.Vendor, false)
		if h.Metrics != nil {
			h.Metrics.RecordVendorRequest(string(decision.Vendor), decision.Model, "error", callDuration, tokensEst, 0)
		}

		if fbDecision, fbText, fbErr, attempted := h.attemptCallFallback(reqCtx.Context(), start, rules, decision, n, callErr, stream, &rec); attempted {
			decision = fbDecision
			if fbErr == nil {
				rec.ChosenVendor = string(decision.Vendor)
				rec.ChosenModel = decision.Model
				if stream != nil {
					stream.writeDone()
				} else {
					h.writeAggregate(w, fbText, decision, false)
				}
				h.runPostCall(reqCtx.Context(), n, fbText, decision, cacheID, userID, tokensEst, clientCancelled, nil)
				return
			}
			callErr = fbErr
		}

		if stream != nil {
			stream.writeError(callErr)
		} else {
			writeError(w, callErr)
		}
		h.runPostCall(context.Background(), n, "", decision, cacheID, userID, tokensEst, clientCancelled, callErr)
		return
	}
	h.Global.RecordSuccess(decision.Vendor)
	h.Users.RecordSuccess(userID)
	h.Health.MarkResult(decision.Vendor, true)
	if h.Metrics != nil {
		completionTokens := tokenizer.CountMessages(h.Counter, []string{text})
		h.Metrics.RecordVendorRequest(string(decision.Vendor), decision.Model, "success", callDuration, tokensEst, completionTokens)
	}

	finalText, finalDecision := text, decision
	if stream == nil && decision.Vendor == policy.VendorPrimary {
		finalText, finalDecision = h.maybeEscalate(reqCtx.Context(), rules, decision, n, detectedIntent, text, start, &rec)
	}

	if stream != nil {
		stream.writeDone()
	} else {
		h.writeAggregate(w, finalText, finalDecision, false)
	}
	h.runPostCall(reqCtx.Context(), n, finalText, finalDecision, cacheID, userID, tokensEst, clientCancelled, nil)
}

// resolveResponse returns the response text for decision's vendor/model,
// from the semantic cache when present or else by invoking adapter. When
// a cache is configured, a miss is routed through Cache.Fill so that
// concurrent identical misses share one in-flight adapter call instead of
// each issuing its own.
func (h *Handler) resolveResponse(ctx context.Context, deadline context.Context, adapter vendor.Adapter, decision router.RoutingDecision, n Normalized, cacheID string, stream streamWriter) (string, bool, error) {
	call := func() (vendor.Response, error) {
		return adapter.Call(deadline, vendor.Request{
			Prompt: n.Prompt, Model: decision.Model, Stream: n.Stream,
			OnToken: func(chunk string) {
				if stream != nil {
					stream.writeDelta(chunk)
				}
			},
		})
	}

	if h.Cache == nil {
		resp, err := call()
		if err != nil {
			return "", false, err
		}
		return resp.Text, false, nil
	}

	entry, wasHit, err := h.Cache.Fill(ctx, cacheID, func(context.Context) (semcache.Entry, error) {
		resp, cerr := call()
		if cerr != nil {
			return semcache.Entry{}, cerr
		}
		return semcache.Entry{Text: resp.Text, Vendor: string(decision.Vendor), Model: decision.Model}, nil
	})
	if err != nil {
		return "", false, err
	}
	if wasHit && stream != nil {
		stream.writeDelta(entry.Text)
	}
	return entry.Text, wasHit, nil
}

// triggersFallback reports whether a vendor error's closed category is
// one spec'd as fallback-eligible (timeout, provider 5xx, network). 4xx
// and auth/quota classes never qualify.
func triggersFallback(err error) bool {
	switch router.CodeOf(err) {
	case router.ErrTimeout, router.ErrDownstreamError, router.ErrVendorUnavailable:
		return true
	default:
		return false
	}
}

// attemptCallFallback retries a transient vendor failure against the
// opposite vendor exactly once. It returns attempted=false when the
// failure, the decision, or the fallback vendor's breaker rules it out,
// leaving the original error untouched for the caller to surface.
func (h *Handler) attemptCallFallback(ctx context.Context, start time.Time, rules policy.Rules, decision router.RoutingDecision, n Normalized, callErr error, stream streamWriter, rec *trace.Record) (router.RoutingDecision, string, error, bool) {
	if !decision.AllowFallback || !triggersFallback(callErr) {
		return decision, "", nil, false
	}
	fallback := policy.VendorSecondary
	reason := router.ReasonFallbackSecondaryHealth
	if decision.Vendor == policy.VendorSecondary {
		fallback = policy.VendorPrimary
		reason = router.ReasonFallbackPrimaryHealth
	}
	if h.Global.IsOpen(fallback) {
		return decision, "", nil, false
	}
	adapter := h.Adapters[fallback]
	if adapter == nil {
		return decision, "", nil, false
	}
	model := rules.SecondaryBaselineModel
	if fallback == policy.VendorPrimary {
		model = rules.PrimaryBaselineModel
	}

	fbDecision := router.RoutingDecision{
		Vendor: fallback, Model: model, Reason: reason,
		Stream: decision.Stream, AllowFallback: false, RequestID: decision.RequestID,
	}
	rec.FallbackReason = string(reason)
	if h.Metrics != nil {
		h.Metrics.RecordFallback(string(decision.Vendor), string(fallback), string(reason))
	}

	fbDeadline, cancel := router.AdapterDeadline(ctx, start, rules.RouterBudgetMS, vendorTimeoutMS(rules, fallback))
	defer cancel()

	resp, err := adapter.Call(fbDeadline, vendor.Request{
		Prompt: n.Prompt, Model: fbDecision.Model, Stream: n.Stream,
		OnToken: func(chunk string) {
			if stream != nil {
				stream.writeDelta(chunk)
			}
		},
	})
	if err != nil {
		h.Global.RecordFailure(fallback)
		h.Users.RecordFailure(rec.UserID)
		h.Health.MarkResult(fallback, false)
		return fbDecision, "", err, true
	}
	h.Global.RecordSuccess(fallback)
	h.Users.RecordSuccess(rec.UserID)
	h.Health.MarkResult(fallback, true)
	return fbDecision, resp.Text, nil, true
}

// maybeEscalate scores a successful primary-vendor response and, if the
// score falls below threshold and budget allows, re-issues the call once
// against a stronger model. The escalated result (if any) replaces the
// original for both the client response and the trace.
func (h *Handler) maybeEscalate(ctx context.Context, rules policy.Rules, decision router.RoutingDecision, n Normalized, i intent.Intent, text string, start time.Time, rec *trace.Record) (string, router.RoutingDecision) {
	score := router.Score(text, i, n.RetrievedDocs)
	rec.SelfCheckScore = &score
	escalated := false
	rec.Escalated = &escalated
	if h.Metrics != nil {
		h.Metrics.RecordSelfCheck(string(i), score)
	}

	if !router.ShouldEscalate(score, rules.SelfCheckFailThreshold, rules.MaxRetriesPerRequest, rules.BudgetQuotaBreached, false) {
		return text, decision
	}

	strongerModel := rules.PrimaryHeavyModel
	if strongerModel == "" || strongerModel == decision.Model {
		strongerModel = rules.PrimaryMidModel
	}
	if strongerModel == "" || strongerModel == decision.Model {
		return text, decision
	}

	adapter := h.Adapters[decision.Vendor]
	if adapter == nil {
		return text, decision
	}

	deadline, cancel := router.AdapterDeadline(ctx, start, rules.RouterBudgetMS, vendorTimeoutMS(rules, decision.Vendor))
	defer cancel()

	resp, err := adapter.Call(deadline, vendor.Request{Prompt: n.Prompt, Model: strongerModel})
	if err != nil {
		return text, decision
	}

	escalated = true
	rec.FinalModel = strongerModel
	if h.Metrics != nil {
		h.Metrics.RecordEscalation(decision.Model, strongerModel)
	}
	escalatedDecision := decision
	escalatedDecision.Model = strongerModel
	return resp.Text, escalatedDecision
}

func (h *Handler) writeAggregate(w http.ResponseWriter, text string, decision router.RoutingDecision, cacheHit bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Trace-ID", decision.RequestID)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"text":      text,
		"vendor":    string(decision.Vendor),
		"model":     decision.Model,
		"reason":    string(decision.Reason),
		"cache_hit": cacheHit,
	})
}

func (h *Handler) writeDryExplain(w http.ResponseWriter, decision router.RoutingDecision, cacheID string, tokensEst int, i intent.Intent) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"vendor":     string(decision.Vendor),
		"model":      decision.Model,
		"reason":     string(decision.Reason),
		"keyword_hit": decision.KeywordHit,
		"cache_id":   cacheID,
		"tokens_est": tokensEst,
		"intent":     string(i),
		"dry_run":    true,
	})
}

func (h *Handler) runPostCall(ctx context.Context, n Normalized, text string, decision router.RoutingDecision, cacheID string, userID string, promptTokens int, clientCancelled bool, callErr error) {
	if h.Steps == nil {
		return
	}
	completionTokens := tokenizer.CountMessages(h.Counter, []string{text})
	postcall.Run(ctx, h.Steps, postcall.Data{
		RequestID: decision.RequestID, UserID: userID, Prompt: n.Prompt, Response: text,
		Vendor: string(decision.Vendor), Model: decision.Model, CacheID: cacheID,
		RetrievedDocs: n.RetrievedDocs, PromptTokens: promptTokens, CompletionTokens: completionTokens,
		ClientCancelled: clientCancelled, Err: callErr,
	}, h.logger())
}

// handleReplay re-runs the model picker against whatever rules/health state
// is current and reports whether it would decide differently than the
// original recorded trace. It is read-only: no vendor call, cache write,
// or analytics increment ever happens here. The original prompt text is
// not part of the golden trace (only derived features are), so a faithful
// keyword-sensitive re-pick requires the caller to resupply it via
// ?prompt=; without it, replay still compares everything derivable from
// the stored trace (intent, token estimate, fallback eligibility).
func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	if rid == "" {
		writeError(w, router.NewError(router.ErrInvalidRequest, "missing replay id"))
		return
	}
	if h.Store == nil {
		writeError(w, router.NewError(router.ErrInvalidRequest, "replay requires a configured trace store"))
		return
	}

	rules := h.Rules.RulesSnapshot()
	pick := router.Picker{Rules: rules, Health: h.Health}
	pickFn := func(prompt, intentStr string, tokens int, override string, hasAttachments bool, retrievedTokens, retrievedChars, opsFiles int, allowFallback bool) (string, string, string, error) {
		decision, err := pick.Pick(router.PickInput{
			Prompt: prompt, Intent: intent.Intent(intentStr), Tokens: tokens,
			Override: override, HasAttachments: hasAttachments,
			RetrievedTokens: retrievedTokens, RetrievedChars: retrievedChars,
			OpsFilesCount: opsFiles, AllowFallback: allowFallback, RequestID: rid,
		})
		if err != nil {
			return "", "", "", err
		}
		return string(decision.Vendor), decision.Model, string(decision.Reason), nil
	}

	diff, ok := trace.Replay(h.Store, rid, pickFn, r.URL.Query().Get("prompt"))
	if !ok {
		writeError(w, router.NewError(router.ErrInvalidRequest, "no trace recorded for this request id"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(diff)
}

// applyBreakerFallback handles a globally open circuit breaker for the
// picked vendor: swap to the opposite vendor when fallback is allowed and
// its breaker is closed, otherwise fail closed with vendor_unavailable.
func (h *Handler) applyBreakerFallback(decision router.RoutingDecision, rules policy.Rules) (router.RoutingDecision, error) {
	if !decision.AllowFallback {
		return decision, router.NewError(router.ErrVendorUnavailable, "vendor circuit breaker open, fallback disallowed").WithVendor(string(decision.Vendor)).WithRetryable(true)
	}
	fallback := policy.VendorSecondary
	if decision.Vendor == policy.VendorSecondary {
		fallback = policy.VendorPrimary
	}
	if h.Global.IsOpen(fallback) {
		return decision, router.NewError(router.ErrAllVendorsUnavailable, "both vendor circuit breakers open").WithRetryable(true)
	}
	model := rules.SecondaryBaselineModel
	if fallback == policy.VendorPrimary {
		model = rules.PrimaryBaselineModel
	}
	reason := router.ReasonFallbackSecondaryHealth
	if decision.Vendor == policy.VendorPrimary {
		reason = router.ReasonFallbackPrimaryHealth
	}
	return router.RoutingDecision{
		Vendor: fallback, Model: model, Reason: reason,
		Stream: decision.Stream, AllowFallback: false, RequestID: decision.RequestID,
	}, nil
}

// recordBreakerState reports the global breaker's current state for vendor.
func (h *Handler) recordBreakerState(v policy.Vendor) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.SetBreakerState("global", string(v), h.Global.IsOpen(v))
}

func vendorTimeoutMS(rules policy.Rules, v policy.Vendor) int {
	if v == policy.VendorSecondary {
		return rules.SecondaryTimeoutMS
	}
	return rules.PrimaryTimeoutMS
}

func sumLen(docs []string) int {
	total := 0
	for _, d := range docs {
		total += len(d)
	}
	return total
}
