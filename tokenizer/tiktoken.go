package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps a model name to its tiktoken BPE encoding.
var modelEncodings = map[string]string{
	"gpt-4o":      "o200k_base",
	"gpt-4o-mini": "o200k_base",
	"gpt-4-turbo": "cl100k_base",
	"gpt-4":       "cl100k_base",
}

// Tiktoken is an exact BPE-based Counter, used when a deployment opts into
// TOKENIZER=tiktoken instead of the default Estimator. It falls back to the
// Estimator if the requested encoding cannot be loaded (e.g. offline with no
// cached BPE ranks), since routing must never fail for lack of a tokenizer.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback Counter
}

// NewTiktoken builds a Tiktoken counter for the given model name, defaulting
// to the cl100k_base encoding for unrecognized models.
func NewTiktoken(model string) *Tiktoken {
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "cl100k_base"
	}
	return &Tiktoken{encoding: encoding, fallback: NewEstimator()}
}

func (t *Tiktoken) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			return
		}
		t.enc = enc
	})
}

// CountTokens implements Counter.
func (t *Tiktoken) CountTokens(text string) int {
	t.init()
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
