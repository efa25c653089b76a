// Package postcall runs the independent, best-effort bookkeeping steps
// that follow a completed (or cancelled) routing call: conversation
// history, analytics counters, memory extraction, and claim logging.
// Cache write-through is not a step here; it happens inside
// semcache.Cache.Fill. Each step is isolated; one step's failure must
// never prevent the others from running.
package postcall

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Data carries everything a post-call step might need. Steps read from it
// but never mutate shared fields concurrently with each other.
type Data struct {
	RequestID        string
	UserID           string
	SessionID        string
	Prompt           string
	Response         string
	Vendor           string
	Model            string
	CacheID          string
	RetrievedDocs    []string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	SelfCheckScore   float64
	ClientCancelled  bool
	Err              error
	Metadata         map[string]string
}

// Step is one independent post-call action.
type Step struct {
	Name string
	Run  func(ctx context.Context, d Data) error
	// AlwaysRun steps execute even when the client disconnected mid-call
	// (history and analytics, per the always-run requirement). Steps
	// with AlwaysRun=false are skipped on client cancellation.
	AlwaysRun bool
}

// Result reports the outcome of each step by name.
type Result struct {
	Errors  map[string]error
	Skipped []string
}

// Run executes every step concurrently and waits for all to finish. A
// step that panics is recovered and recorded as an error rather than
// crashing the others; this mirrors the fan-out/wait-group pattern used
// for parallel subtask execution, generalized so a single failure cannot
// starve its siblings.
func Run(ctx context.Context, steps []Step, d Data, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := Result{Errors: make(map[string]error)}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, step := range steps {
		if d.ClientCancelled && !step.AlwaysRun {
			mu.Lock()
			res.Skipped = append(res.Skipped, step.Name)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(s Step) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					logger.Error("postcall step panicked", zap.String("step", s.Name), zap.Any("recover", r))
					res.Errors[s.Name] = panicError{s.Name, r}
					mu.Unlock()
				}
			}()

			if err := s.Run(ctx, d); err != nil {
				logger.Warn("postcall step failed", zap.String("step", s.Name), zap.Error(err))
				mu.Lock()
				res.Errors[s.Name] = err
				mu.Unlock()
			}
		}(step)
	}

	wg.Wait()
	return res
}

type panicError struct {
	step string
	v    any
}

func (p panicError) Error() string {
	return "postcall step " + p.step + " panicked"
}
