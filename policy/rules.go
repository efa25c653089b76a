// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package policy resolves the allow-lists, thresholds, and keyword tables
// that gate and steer routing decisions. Rules are sourced with precedence
// in-process constants <- environment variables <- rules file, and the
// rules file hot-reloads on mtime change between reads.
package policy

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Rules is an immutable snapshot of the policy config in effect for a
// request. Callers must never mutate a Rules value; Manager hands out a
// fresh snapshot on each reload.
type Rules struct {
	AllowedPrimaryModels   []string
	AllowedSecondaryModels []string
	PrimaryHeavyModel      string
	PrimaryMidModel        string
	PrimaryBaselineModel   string
	SecondaryBaselineModel string

	RouterBudgetMS       int
	PrimaryTimeoutMS     int
	SecondaryTimeoutMS   int
	HeavyWordCount       int
	HeavyTokens          int
	Keywords             []string
	RAGLongContextTokens int
	RAGLongContextChars  int
	OpsMaxFilesSimple    int

	UserCBThreshold int
	UserCBCooldown  time.Duration

	SelfCheckFailThreshold float64
	MaxRetriesPerRequest   int
	BudgetQuotaBreached    bool

	SimThreshold        float64
	StartupVendorPings  bool
	GlobalCBThreshold   int
	GlobalCBCooldown    time.Duration
	AdapterMaxConcurrent int
}

// Vendor is one of the two modeled backends.
type Vendor string

const (
	VendorPrimary   Vendor = "primary"
	VendorSecondary Vendor = "secondary"
	VendorCache     Vendor = "cache"
)

// ValidationResult is the outcome of ValidateModel.
type ValidationResult int

const (
	ValidationOK ValidationResult = iota
	ValidationUnknownVendor
	ValidationModelNotAllowed
)

// ValidateModel checks a (vendor, model) pair against the current allow-lists.
func (r Rules) ValidateModel(vendor Vendor, model string) ValidationResult {
	var list []string
	switch vendor {
	case VendorPrimary:
		list = r.AllowedPrimaryModels
	case VendorSecondary:
		list = r.AllowedSecondaryModels
	default:
		return ValidationUnknownVendor
	}
	for _, m := range list {
		if m == model {
			return ValidationOK
		}
	}
	return ValidationModelNotAllowed
}

// InferVendor maps a model name prefix to its vendor for override routing
// only; it never bypasses the allow-list check in ValidateModel.
func InferVendor(model string) (Vendor, bool) {
	switch {
	case strings.HasPrefix(model, "gpt"):
		return VendorPrimary, true
	case strings.HasPrefix(model, "llama"):
		return VendorSecondary, true
	default:
		return "", false
	}
}

// defaultRules are the in-process constants, the lowest-precedence source.
func defaultRules() Rules {
	return Rules{
		AllowedPrimaryModels:   []string{"gpt-4o", "gpt-4o-mini"},
		AllowedSecondaryModels: []string{"llama-3.1-8b", "llama-3.1-70b"},
		PrimaryHeavyModel:      "gpt-4o",
		PrimaryMidModel:        "gpt-4o-mini",
		PrimaryBaselineModel:   "gpt-4o-mini",
		SecondaryBaselineModel: "llama-3.1-8b",

		RouterBudgetMS:     7000,
		PrimaryTimeoutMS:   6000,
		SecondaryTimeoutMS: 4000,

		HeavyWordCount:       400,
		HeavyTokens:          900,
		Keywords:             []string{"code", "analyze", "sql", "benchmark", "vector"},
		RAGLongContextTokens: 3000,
		RAGLongContextChars:  12000,
		OpsMaxFilesSimple:    3,

		UserCBThreshold: 3,
		UserCBCooldown:  30 * time.Second,

		SelfCheckFailThreshold: 0.4,
		MaxRetriesPerRequest:   1,
		BudgetQuotaBreached:    false,

		SimThreshold:         0.92,
		StartupVendorPings:   false,
		GlobalCBThreshold:    5,
		GlobalCBCooldown:     20 * time.Second,
		AdapterMaxConcurrent: 32,
	}
}

// envOverlay applies the rules' environment variables (ALLOWED_PRIMARY_MODELS,
// ROUTER_BUDGET_MS, MODEL_ROUTER_* and the rest, most without a ROUTER_
// prefix) on top of base, matching the keys documented for the HTTP surface.
func envOverlay(base Rules) Rules {
	r := base
	if v, ok := csvEnv("ALLOWED_PRIMARY_MODELS"); ok {
		r.AllowedPrimaryModels = v
	}
	if v, ok := csvEnv("ALLOWED_SECONDARY_MODELS"); ok {
		r.AllowedSecondaryModels = v
	}
	if v, ok := intEnv("ROUTER_BUDGET_MS"); ok {
		r.RouterBudgetMS = v
	}
	if v, ok := intEnv("PRIMARY_TIMEOUT_MS"); ok {
		r.PrimaryTimeoutMS = v
	}
	if v, ok := intEnv("SECONDARY_TIMEOUT_MS"); ok {
		r.SecondaryTimeoutMS = v
	}
	if v, ok := intEnv("MODEL_ROUTER_HEAVY_WORDS"); ok {
		r.HeavyWordCount = v
	}
	if v, ok := intEnv("MODEL_ROUTER_HEAVY_TOKENS"); ok {
		r.HeavyTokens = v
	}
	if v, ok := csvEnv("MODEL_ROUTER_KEYWORDS"); ok {
		r.Keywords = v
	}
	if v, ok := intEnv("USER_CB_THRESHOLD"); ok {
		r.UserCBThreshold = v
	}
	if v, ok := durationEnv("USER_CB_COOLDOWN"); ok {
		r.UserCBCooldown = v
	}
	if v, ok := floatEnv("SELF_CHECK_FAIL_THRESHOLD"); ok {
		r.SelfCheckFailThreshold = v
	}
	if v, ok := intEnv("MAX_RETRIES_PER_REQUEST"); ok {
		r.MaxRetriesPerRequest = v
	}
	if v, ok := boolEnv("BUDGET_QUOTA_BREACHED"); ok {
		r.BudgetQuotaBreached = v
	}
	if v, ok := floatEnv("SIM_THRESHOLD"); ok {
		r.SimThreshold = v
	}
	if v, ok := boolEnv("STARTUP_VENDOR_PINGS"); ok {
		r.StartupVendorPings = v
	}
	return r
}

func csvEnv(key string) ([]string, bool) {
	v := os.Getenv(key)
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func floatEnv(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func boolEnv(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func durationEnv(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
