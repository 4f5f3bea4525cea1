// Package generation is the orchestration core: it turns typed menu requests
// into provider calls with quota enforcement, ordered fallback, cost accrual
// and ledger writes.
package generation

import (
	"errors"

	"github.com/waiterai/menuai/internal/prompt"
)

// The closed set of error kinds callers can observe. Retryable provider
// failures are handled inside the orchestrator and never cross this boundary
// individually.
var (
	// ErrInvalidInput marks a malformed request. Non-retryable; surfaced
	// immediately without contacting any provider beyond the failing one.
	ErrInvalidInput = errors.New("invalid input")

	// ErrQuotaExceeded is a policy denial, raised before any provider is
	// contacted. No cost is incurred.
	ErrQuotaExceeded = errors.New("monthly quota exceeded")

	// ErrAllProvidersFailed is terminal: every configured provider failed
	// with a retryable error. The wrapped message carries the last cause for
	// diagnostics; handlers must not forward it to callers verbatim.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrStreamInterrupted is delivered as a terminal chat fragment when a
	// provider fails after fragments have already been sent. Already
	// delivered output cannot be un-sent, so no fallback happens.
	ErrStreamInterrupted = errors.New("chat stream interrupted")
)

type DescriptionRequest struct {
	ItemName       string
	Ingredients    []string
	Cuisine        string
	Dietary        []string
	Allergens      []string
	SpiceLevel     string
	TargetLanguage string
}

type TranslationRequest struct {
	ItemName       string
	Description    string
	TargetLanguage string
	Cuisine        string
}

type ChatRequest struct {
	Query      string
	Menu       []prompt.MenuItem
	Restaurant prompt.RestaurantInfo
	History    []prompt.ChatMessage
}

// Result is an immutable generation outcome; ownership transfers to the
// caller.
type Result struct {
	Text         string
	ProviderUsed string
	Model        string
	TokensUsed   int
	CostUSD      float64
}

// TranslationResult carries the parsed NAME/DESCRIPTION pair.
type TranslationResult struct {
	Name         string
	Description  string
	ProviderUsed string
	TokensUsed   int
	CostUSD      float64
}

// Fragment is one incremental piece of a chat stream. The sequence ends with
// either Done or Err set; after that no further fragments arrive.
type Fragment struct {
	Delta string
	Done  bool
	Err   error
}
