package trace

// Diff reports how a replayed decision differs from the one originally
// recorded.
type Diff struct {
	RequestID      string
	OriginalVendor string
	OriginalModel  string
	OriginalReason string
	ReplayVendor   string
	ReplayModel    string
	ReplayReason   string
	Changed        bool
	Note           string
}

// PickFunc is the side-effect-free decision function replay re-invokes,
// satisfied by router.Picker.Pick adapted to primitive inputs so this
// package never imports router (avoiding a cycle, since router records
// traces but must not depend on replaying them).
type PickFunc func(prompt, intent string, tokens int, override string, hasAttachments bool, retrievedTokens, retrievedChars, opsFiles int, allowFallback bool) (vendor, model, reason string, err error)

// Replay looks up the stored trace for requestID and re-runs pick against
// whatever rules/health state the caller's PickFunc closure currently
// captures. It performs no vendor calls, cache writes, or analytics
// increments -- the caller is responsible for ensuring PickFunc is pure.
func Replay(store Store, requestID string, pick PickFunc, originalPrompt string) (Diff, bool) {
	rec, ok := store.Load(requestID)
	if !ok {
		return Diff{}, false
	}

	vendor, model, reason, err := pick(originalPrompt, rec.Intent, rec.TokensEst, "", false, 0, 0, 0, rec.AllowFallback)
	d := Diff{
		RequestID:      requestID,
		OriginalVendor: rec.ChosenVendor,
		OriginalModel:  rec.ChosenModel,
		OriginalReason: rec.PickerReason,
		ReplayVendor:   vendor,
		ReplayModel:    model,
		ReplayReason:   reason,
	}
	if err != nil {
		d.Note = err.Error()
		d.Changed = true
		return d, true
	}
	d.Changed = vendor != rec.ChosenVendor || model != rec.ChosenModel || reason != rec.PickerReason
	return d, true
}
