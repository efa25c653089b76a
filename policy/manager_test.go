package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_DefaultsWithoutFile(t *testing.T) {
	m := NewManager("", zap.NewNop())
	r := m.RulesSnapshot()
	assert.Equal(t, 7000, r.RouterBudgetMS)
	assert.Contains(t, r.AllowedPrimaryModels, "gpt-4o")
}

func TestManager_ReloadsOnMTimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router_budget_ms: 1234\n"), 0o644))

	m := NewManager(path, zap.NewNop())
	assert.Equal(t, 1234, m.RulesSnapshot().RouterBudgetMS)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("router_budget_ms: 5555\n"), 0o644))
	assert.Equal(t, 5555, m.RulesSnapshot().RouterBudgetMS)
}

func TestManager_MalformedFileKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router_budget_ms: 4321\n"), 0o644))

	m := NewManager(path, zap.NewNop())
	require.Equal(t, 4321, m.RulesSnapshot().RouterBudgetMS)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))
	assert.Equal(t, 4321, m.RulesSnapshot().RouterBudgetMS)
}

func TestValidateModel(t *testing.T) {
	r := defaultRules()
	assert.Equal(t, ValidationOK, r.ValidateModel(VendorPrimary, "gpt-4o"))
	assert.Equal(t, ValidationModelNotAllowed, r.ValidateModel(VendorPrimary, "gpt-forbidden"))
	assert.Equal(t, ValidationUnknownVendor, r.ValidateModel(Vendor("tertiary"), "x"))
}

func TestInferVendor(t *testing.T) {
	v, ok := InferVendor("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, VendorPrimary, v)

	v, ok = InferVendor("llama-3.1-8b")
	assert.True(t, ok)
	assert.Equal(t, VendorSecondary, v)

	_, ok = InferVendor("claude-3")
	assert.False(t, ok)
}
