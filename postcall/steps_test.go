package postcall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeHistory struct{ calls int }

func (f *fakeHistory) WriteTurn(ctx context.Context, d Data) error { f.calls++; return nil }

type fakeAnalytics struct{ calls int }

func (f *fakeAnalytics) RecordOutcome(ctx context.Context, d Data) error { f.calls++; return nil }

type fakeMemory struct{ calls int }

func (f *fakeMemory) Extract(ctx context.Context, d Data) error { f.calls++; return nil }

type fakeClaims struct{ calls int }

func (f *fakeClaims) LogClaims(ctx context.Context, d Data) error { f.calls++; return nil }

func TestBuildSteps_MemoryAndClaimsSkippedOnError(t *testing.T) {
	history, analytics, memory, claims := &fakeHistory{}, &fakeAnalytics{}, &fakeMemory{}, &fakeClaims{}
	steps := BuildSteps(history, analytics, memory, claims)

	d := Data{CacheID: "k", Response: "text", Err: errors.New("downstream failed")}
	res := Run(context.Background(), steps, d, zap.NewNop())

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, history.calls)
	assert.Equal(t, 1, analytics.calls)
	assert.Equal(t, 0, memory.calls, "memory must not run when the call errored")
	assert.Equal(t, 0, claims.calls)
}

func TestBuildSteps_MemoryAndClaimsRunOnSuccess(t *testing.T) {
	history, analytics, memory, claims := &fakeHistory{}, &fakeAnalytics{}, &fakeMemory{}, &fakeClaims{}
	steps := BuildSteps(history, analytics, memory, claims)

	d := Data{CacheID: "k2", Response: "cached text", Vendor: "primary", Model: "gpt-4o"}
	res := Run(context.Background(), steps, d, zap.NewNop())

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, memory.calls)
	assert.Equal(t, 1, claims.calls)
}
