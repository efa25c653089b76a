package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_EmitsExactlyOnce(t *testing.T) {
	store := NewRingStore(10)
	var calls int
	e := NewEmitter(store, func(r Record) { calls++ })

	e.Emit(Record{RequestID: "r1", ChosenVendor: "primary"})
	e.Emit(Record{RequestID: "r1", ChosenVendor: "secondary"})

	assert.Equal(t, 1, calls)
	got, ok := store.Load("r1")
	require.True(t, ok)
	assert.Equal(t, "primary", got.ChosenVendor, "the first emit wins")
}

func TestEmitter_DeferredEmitStillFiresOnEarlyReturn(t *testing.T) {
	store := NewRingStore(10)
	emitted := false
	e := NewEmitter(store, func(r Record) { emitted = true })

	func() {
		defer func() { _ = recover() }()
		defer e.Emit(Record{RequestID: "r2"})
		panic("simulated downstream panic")
	}()

	assert.True(t, emitted)
	_, ok := store.Load("r2")
	assert.True(t, ok)
}

func TestRingStore_EvictsOldestBeyondCapacity(t *testing.T) {
	s := NewRingStore(2)
	s.Save(Record{RequestID: "a"})
	s.Save(Record{RequestID: "b"})
	s.Save(Record{RequestID: "c"})

	_, ok := s.Load("a")
	assert.False(t, ok)
	_, ok = s.Load("b")
	assert.True(t, ok)
	_, ok = s.Load("c")
	assert.True(t, ok)
}

func TestReplay_DetectsChangedDecision(t *testing.T) {
	store := NewRingStore(10)
	store.Save(Record{RequestID: "r3", ChosenVendor: "primary", ChosenModel: "gpt-4o", PickerReason: "heavy_length", Intent: "analysis", TokensEst: 500})

	pick := func(prompt, intent string, tokens int, override string, hasAttachments bool, rt, rc, of int, allowFallback bool) (string, string, string, error) {
		return "secondary", "llama-70b", "fallback_primary_health", nil
	}

	diff, ok := Replay(store, "r3", pick, "some prompt")
	assert.True(t, ok)
	assert.True(t, diff.Changed)
	assert.Equal(t, "primary", diff.OriginalVendor)
	assert.Equal(t, "secondary", diff.ReplayVendor)
}

func TestReplay_MissingTraceReturnsFalse(t *testing.T) {
	store := NewRingStore(10)
	_, ok := Replay(store, "missing", nil, "")
	if ok {
		t.Fatal("expected no trace found")
	}
}
