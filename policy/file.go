package policy

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileRules is the YAML shape of the rules file, the highest-precedence
// source. Every field is optional; zero values leave the lower-precedence
// value untouched.
type fileRules struct {
	AllowedPrimaryModels   []string `yaml:"allowed_primary_models"`
	AllowedSecondaryModels []string `yaml:"allowed_secondary_models"`
	PrimaryHeavyModel      string   `yaml:"primary_heavy_model"`
	PrimaryMidModel        string   `yaml:"primary_mid_model"`
	PrimaryBaselineModel   string   `yaml:"primary_baseline_model"`
	SecondaryBaselineModel string   `yaml:"secondary_baseline_model"`

	RouterBudgetMS       int `yaml:"router_budget_ms"`
	PrimaryTimeoutMS     int `yaml:"primary_timeout_ms"`
	SecondaryTimeoutMS   int `yaml:"secondary_timeout_ms"`
	HeavyWordCount       int `yaml:"heavy_word_count"`
	HeavyTokens          int `yaml:"heavy_tokens"`
	RAGLongContextTokens int `yaml:"rag_long_context_tokens"`
	RAGLongContextChars  int `yaml:"rag_long_context_chars"`
	OpsMaxFilesSimple    int `yaml:"ops_max_files_simple"`

	Keywords []string `yaml:"keywords"`

	UserCBThreshold string `yaml:"user_cb_threshold"`
	UserCBCooldown  string `yaml:"user_cb_cooldown"`

	SelfCheckFailThreshold float64 `yaml:"self_check_fail_threshold"`
	MaxRetriesPerRequest   int     `yaml:"max_retries_per_request"`
	BudgetQuotaBreached    bool    `yaml:"budget_quota_breached"`

	SimThreshold         float64 `yaml:"sim_threshold"`
	StartupVendorPings   bool    `yaml:"startup_vendor_pings"`
	GlobalCBThreshold    int     `yaml:"global_cb_threshold"`
	GlobalCBCooldown     string  `yaml:"global_cb_cooldown"`
	AdapterMaxConcurrent int     `yaml:"adapter_max_concurrent"`
}

// applyFile merges a parsed rules file on top of base. Zero-valued fields
// in the file are treated as "not set" and leave base untouched, so a
// malformed or absent file field simply keeps the existing default.
func applyFile(base Rules, f fileRules) Rules {
	r := base
	if len(f.AllowedPrimaryModels) > 0 {
		r.AllowedPrimaryModels = f.AllowedPrimaryModels
	}
	if len(f.AllowedSecondaryModels) > 0 {
		r.AllowedSecondaryModels = f.AllowedSecondaryModels
	}
	if f.PrimaryHeavyModel != "" {
		r.PrimaryHeavyModel = f.PrimaryHeavyModel
	}
	if f.PrimaryMidModel != "" {
		r.PrimaryMidModel = f.PrimaryMidModel
	}
	if f.PrimaryBaselineModel != "" {
		r.PrimaryBaselineModel = f.PrimaryBaselineModel
	}
	if f.SecondaryBaselineModel != "" {
		r.SecondaryBaselineModel = f.SecondaryBaselineModel
	}
	if f.RouterBudgetMS > 0 {
		r.RouterBudgetMS = f.RouterBudgetMS
	}
	if f.PrimaryTimeoutMS > 0 {
		r.PrimaryTimeoutMS = f.PrimaryTimeoutMS
	}
	if f.SecondaryTimeoutMS > 0 {
		r.SecondaryTimeoutMS = f.SecondaryTimeoutMS
	}
	if f.HeavyWordCount > 0 {
		r.HeavyWordCount = f.HeavyWordCount
	}
	if f.HeavyTokens > 0 {
		r.HeavyTokens = f.HeavyTokens
	}
	if f.RAGLongContextTokens > 0 {
		r.RAGLongContextTokens = f.RAGLongContextTokens
	}
	if f.RAGLongContextChars > 0 {
		r.RAGLongContextChars = f.RAGLongContextChars
	}
	if f.OpsMaxFilesSimple > 0 {
		r.OpsMaxFilesSimple = f.OpsMaxFilesSimple
	}
	if len(f.Keywords) > 0 {
		r.Keywords = f.Keywords
	}
	if f.UserCBThreshold != "" {
		if d, err := strconv.Atoi(f.UserCBThreshold); err == nil {
			r.UserCBThreshold = d
		}
	}
	if f.UserCBCooldown != "" {
		if d, err := time.ParseDuration(f.UserCBCooldown); err == nil {
			r.UserCBCooldown = d
		}
	}
	if f.SelfCheckFailThreshold > 0 {
		r.SelfCheckFailThreshold = f.SelfCheckFailThreshold
	}
	if f.MaxRetriesPerRequest > 0 {
		r.MaxRetriesPerRequest = f.MaxRetriesPerRequest
	}
	if f.BudgetQuotaBreached {
		r.BudgetQuotaBreached = true
	}
	if f.SimThreshold > 0 {
		r.SimThreshold = f.SimThreshold
	}
	r.StartupVendorPings = r.StartupVendorPings || f.StartupVendorPings
	if f.GlobalCBThreshold > 0 {
		r.GlobalCBThreshold = f.GlobalCBThreshold
	}
	if f.GlobalCBCooldown != "" {
		if d, err := time.ParseDuration(f.GlobalCBCooldown); err == nil {
			r.GlobalCBCooldown = d
		}
	}
	if f.AdapterMaxConcurrent > 0 {
		r.AdapterMaxConcurrent = f.AdapterMaxConcurrent
	}
	return r
}

func statMTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func loadRulesFile(path string) (fileRules, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileRules{}, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileRules{}, time.Time{}, err
	}
	var f fileRules
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fileRules{}, time.Time{}, err
	}
	return f, info.ModTime(), nil
}
