package llm

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// budgetEncoding is the tokenizer used to estimate usage when a provider
// response carries no usage block.
const budgetEncoding = "cl100k_base"

// Budget enforces shared iteration and token limits across every LLM call in
// a single review run. One Budget is created per run and attached to each
// Request; the client checks it before dispatch and records usage after.
//
// Budget is safe for concurrent use.
type Budget struct {
	maxIterations int
	maxTokens     int

	mu         sync.Mutex
	iterations int
	tokens     int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewBudget creates a budget allowing at most maxIterations LLM calls and
// maxTokens total tokens. Zero or negative limits mean unlimited for that
// dimension.
func NewBudget(maxIterations, maxTokens int) *Budget {
	return &Budget{
		maxIterations: maxIterations,
		maxTokens:     maxTokens,
	}
}

// BudgetExceededError reports which limits were exhausted when a call was
// refused.
type BudgetExceededError struct {
	Iterations    int
	MaxIterations int
	Tokens        int
	MaxTokens     int
}

// Error formats the exhausted dimensions only.
func (e *BudgetExceededError) Error() string {
	var parts []string
	if e.MaxIterations > 0 && e.Iterations >= e.MaxIterations {
		parts = append(parts, fmt.Sprintf("iterations %d/%d", e.Iterations, e.MaxIterations))
	}
	if e.MaxTokens > 0 && e.Tokens >= e.MaxTokens {
		parts = append(parts, fmt.Sprintf("tokens %d/%d", e.Tokens, e.MaxTokens))
	}
	return "LLM budget exhausted: " + strings.Join(parts, ", ")
}

// IsBudgetExceeded reports whether err is (or wraps) a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// CheckBeforeCall returns a BudgetExceededError if either limit is already
// exhausted. Call this before dispatching an LLM request.
func (b *Budget) CheckBeforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exhaustedLocked() {
		return &BudgetExceededError{
			Iterations:    b.iterations,
			MaxIterations: b.maxIterations,
			Tokens:        b.tokens,
			MaxTokens:     b.maxTokens,
		}
	}
	return nil
}

// RecordCompletion counts one iteration and adds the response's token usage.
// When the provider reported no usage, usage is estimated by tokenizing the
// request messages and the response content.
func (b *Budget) RecordCompletion(resp *Response, messages []Message) {
	total := 0
	if resp != nil {
		total = resp.Usage.TotalTokens
		if total == 0 {
			total = resp.TokensUsed
		}
		if total == 0 {
			total = b.estimateTokens(messages, resp.Content)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.iterations++
	b.tokens += total
}

// Exhausted reports whether either limit has been reached.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exhaustedLocked()
}

func (b *Budget) exhaustedLocked() bool {
	if b.maxIterations > 0 && b.iterations >= b.maxIterations {
		return true
	}
	if b.maxTokens > 0 && b.tokens >= b.maxTokens {
		return true
	}
	return false
}

// RemainingIterations returns how many LLM calls remain, or -1 if unlimited.
func (b *Budget) RemainingIterations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxIterations <= 0 {
		return -1
	}
	return max(0, b.maxIterations-b.iterations)
}

// RemainingTokens returns how many tokens remain, or -1 if unlimited.
func (b *Budget) RemainingTokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxTokens <= 0 {
		return -1
	}
	return max(0, b.maxTokens-b.tokens)
}

// Usage returns the iterations and tokens consumed so far.
func (b *Budget) Usage() (iterations, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.iterations, b.tokens
}

// estimateTokens tokenizes message contents plus the response text. When the
// encoding cannot be loaded, it falls back to a chars/4 heuristic.
func (b *Budget) estimateTokens(messages []Message, response string) int {
	b.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(budgetEncoding)
		if err == nil {
			b.enc = enc
		}
	})

	chars := len(response)
	if b.enc == nil {
		for _, m := range messages {
			chars += len(m.Content)
		}
		return chars / 4
	}

	total := len(b.enc.Encode(response, nil, nil))
	for _, m := range messages {
		total += len(b.enc.Encode(m.Content, nil, nil))
	}
	return total
}
