package provider

import (
	"context"
	"errors"
)

// Classified failure modes. Adapters wrap every terminal error in exactly one
// of these so the orchestrator can decide whether falling back to the next
// provider makes sense.
var (
	// ErrUnavailable covers network failures, timeouts, auth rejections and
	// rate limiting. Retryable via fallback.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrMalformedResponse covers responses that came back 200 but could not
	// be parsed into text + usage. Retryable via fallback.
	ErrMalformedResponse = errors.New("provider returned malformed response")
)

// Retryable reports whether err should advance fallback to the next provider.
// Anything outside the two classified kinds is a caller bug and aborts.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedResponse)
}

type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Stream      bool
	// Metadata for tracing and usage attribution
	TenantID  string
	RequestID string
}

type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

type Response struct {
	ID           string
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
	LatencyMs    int64
}

// TotalTokens is the blended count used for cost estimation.
func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// TaskModels maps each generation task to the model an adapter should use.
type TaskModels struct {
	Description string
	Translation string
	Chat        string
}

func (m TaskModels) For(task string) string {
	switch task {
	case "translation":
		return m.Translation
	case "chat":
		return m.Chat
	default:
		return m.Description
	}
}

type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	// CompleteStream returns a finite, non-restartable sequence of chunks.
	// Failures before the first delta arrive as a Chunk with Err set; after
	// delivery has begun a failure is a terminal error chunk, never silence.
	CompleteStream(ctx context.Context, req *Request) (<-chan *Chunk, error)
	Name() string
	Models() TaskModels
}
